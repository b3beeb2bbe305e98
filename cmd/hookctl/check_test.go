package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckCommand(t *testing.T) {
	binary, patches := writeHost(t)

	t.Run("compatible", func(t *testing.T) {
		resetFlags()
		output, err := captureOutput(t, func() error {
			return runCheck(context.Background(), []string{patches, binary})
		})
		if err != nil {
			t.Fatalf("runCheck() error = %v", err)
		}
		assertContains(t, output, []string{
			"✓ " + binary,
			"skip_loading", "uncap_fps",
			"server_tweaks",
			"unsupported",
		})
		assertNotContains(t, output, []string{"✗"})
	})

	t.Run("json", func(t *testing.T) {
		resetFlags()
		jsonOut = true
		output, err := captureOutput(t, func() error {
			return runCheck(context.Background(), []string{patches, binary})
		})
		if err != nil {
			t.Fatalf("runCheck() error = %v", err)
		}
		assertJSON(t, output)
		assertContains(t, output, []string{
			`"compatible": true`,
			`"missing": [`,
			`"netcode"`,
			`"name": "server_tweaks"`,
		})
	})
}

func TestCheckCommand_MixedBuilds(t *testing.T) {
	binary, patches := writeHost(t)

	// A build without the required loading screen signature.
	other := filepath.Join(t.TempDir(), "other.exe")
	if err := os.WriteFile(other, bytes.Repeat([]byte{0xCC}, 128), 0644); err != nil {
		t.Fatal(err)
	}

	resetFlags()
	output, err := captureOutput(t, func() error {
		return runCheck(context.Background(), []string{patches, binary, other, binary})
	})
	if err == nil {
		t.Fatal("expected error for incompatible build")
	}
	if !strings.Contains(err.Error(), "1 of 3 binaries") {
		t.Errorf("error = %v, want 1 of 3 binaries", err)
	}

	// Reports keep argument order regardless of which check finished first.
	first := strings.Index(output, "✓ "+binary)
	bad := strings.Index(output, "✗ "+other)
	if first < 0 || bad < 0 || first > bad {
		t.Errorf("unexpected report order:\n%s", output)
	}
	assertContains(t, output, []string{"loading_screen"})
}

func TestCheckCommand_UnreadableBinary(t *testing.T) {
	_, patches := writeHost(t)

	resetFlags()
	jsonOut = true
	output, err := captureOutput(t, func() error {
		return runCheck(context.Background(), []string{patches, "/nonexistent/host.exe"})
	})
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	assertJSON(t, output)
	assertContains(t, output, []string{`"compatible": false`, `"error":`})
}

func TestCheckCommand_BadPatchFile(t *testing.T) {
	binary, _ := writeHost(t)
	patches := writeFile(t, "patches.yaml", "features:\n  - name: x\n    patches:\n      - signature: nowhere\n        nop: true\n")

	resetFlags()
	_, err := captureOutput(t, func() error {
		return runCheck(context.Background(), []string{patches, binary})
	})
	if err == nil {
		t.Fatal("expected error for undeclared signature")
	}
}
