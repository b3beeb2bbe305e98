package mmfile

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "host.exe")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestMap(t *testing.T) {
	want := []byte{0x4d, 0x5a, 0x90, 0x00, 0x03}
	data, cleanup, err := Map(writeTemp(t, want))
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	defer func() {
		if cleanupErr := cleanup(); cleanupErr != nil {
			t.Fatalf("cleanup: %v", cleanupErr)
		}
	}()
	if string(data) != string(want) {
		t.Fatalf("got % x, want % x", data, want)
	}
}

func TestMapPrivate_DoesNotWriteThrough(t *testing.T) {
	want := []byte{0x74, 0x05, 0xe8, 0x00}
	path := writeTemp(t, want)

	data, cleanup, err := MapPrivate(path)
	if err != nil {
		t.Fatalf("MapPrivate: %v", err)
	}
	data[0] = 0x90
	data[1] = 0x90
	if err := cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(onDisk) != string(want) {
		t.Fatalf("file changed: % x", onDisk)
	}
}

func TestMap_ZeroLength(t *testing.T) {
	data, cleanup, err := Map(writeTemp(t, nil))
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("expected zero-length mapping, got %d", len(data))
	}
	if cleanupErr := cleanup(); cleanupErr != nil {
		t.Fatalf("cleanup: %v", cleanupErr)
	}
}

func TestMap_Missing(t *testing.T) {
	if _, _, err := Map(filepath.Join(t.TempDir(), "nope")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
