package dirty

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/hookkit/image"
)

// setupTestImage writes a 16KB file and opens it as an image.
func setupTestImage(t testing.TB) (*image.Image, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "host.exe")
	data := make([]byte, 4*standardPageSize)
	copy(data, []byte("MZ"))
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write test image: %v", err)
	}

	img, err := image.Open(path, 0x400000)
	if err != nil {
		t.Fatalf("Failed to open test image: %v", err)
	}
	t.Cleanup(func() { img.Close() })

	return img, path
}

func Test_DirtyTracker_PageAlignment(t *testing.T) {
	img, _ := setupTestImage(t)
	tracker := NewTracker(img)

	tracker.Add(100, 200)

	coalesced := tracker.coalesce()
	require.Len(t, coalesced, 1)
	require.Equal(t, int64(0), coalesced[0].Off)
	require.Equal(t, int64(4096), coalesced[0].Len)
}

func Test_DirtyTracker_Coalesce_AdjacentAndOverlapping(t *testing.T) {
	img, _ := setupTestImage(t)
	tracker := NewTracker(img)

	tracker.Add(8192, 10)
	tracker.Add(4096, 4096)
	tracker.Add(4100, 20)

	coalesced := tracker.DebugCoalescedRanges()
	require.Equal(t, []Range{{Off: 4096, Len: 8192}}, coalesced)

	// raw ranges are untouched
	require.Len(t, tracker.DebugRanges(), 3)
}

func Test_DirtyTracker_Coalesce_Separate(t *testing.T) {
	img, _ := setupTestImage(t)
	tracker := NewTracker(img)

	tracker.Add(12288, 1)
	tracker.Add(0, 1)

	require.Equal(t, []Range{
		{Off: 0, Len: 4096},
		{Off: 12288, Len: 4096},
	}, tracker.DebugCoalescedRanges())
}

func Test_DirtyTracker_Coalesce_ClampsToImage(t *testing.T) {
	img := image.New(0, make([]byte, 5000))
	tracker := NewTracker(img)

	tracker.Add(4990, 10)
	require.Equal(t, []Range{{Off: 4096, Len: 904}}, tracker.DebugCoalescedRanges())
}

func Test_DirtyTracker_IgnoresEmptyRanges(t *testing.T) {
	tracker := NewTracker(image.New(0, make([]byte, 16)))
	tracker.Add(4, 0)
	require.False(t, tracker.Pending())
}

func Test_DirtyTracker_FlushPersists(t *testing.T) {
	img, path := setupTestImage(t)
	tracker := NewTracker(img)

	_, err := img.WriteAt([]byte{0x90, 0x90}, 0x400000+5000)
	require.NoError(t, err)
	tracker.Add(5000, 2)
	require.True(t, tracker.Pending())

	require.NoError(t, tracker.Flush(context.Background(), FlushFull))
	require.False(t, tracker.Pending())

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte{0x90, 0x90}, onDisk[5000:5002])
}

func Test_DirtyTracker_FlushMemoryImage(t *testing.T) {
	tracker := NewTracker(image.New(0, make([]byte, 64)))
	tracker.Add(0, 8)

	require.NoError(t, tracker.Flush(context.Background(), FlushDataOnly))
	require.False(t, tracker.Pending())
}

func Test_DirtyTracker_FlushCancelled(t *testing.T) {
	img, _ := setupTestImage(t)
	tracker := NewTracker(img)
	tracker.Add(4096, 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tracker.Flush(ctx, FlushDataOnly)
	require.True(t, errors.Is(err, context.Canceled), "expected context.Canceled, got: %v", err)

	// still pending so a later flush retries
	require.True(t, tracker.Pending())
}

func Test_DirtyTracker_Reset(t *testing.T) {
	tracker := NewTracker(image.New(0, make([]byte, 64)))
	tracker.Add(0, 8)
	tracker.Reset()
	require.Empty(t, tracker.DebugRanges())
	require.Nil(t, tracker.DebugCoalescedRanges())
}
