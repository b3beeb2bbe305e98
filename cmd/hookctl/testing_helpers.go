package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// testPatchFile is a patch file matching the layout written by writeHost.
const testPatchFile = `signatures:
  - name: loading_screen
    pattern: "74 05 E8 ?? ?? ?? ??"
    required: true
  - name: fps_cap
    pattern: "83 F8 1E 7E ??"
  - name: netcode
    pattern: "0F 84 ?? ?? ?? ?? 5E 5B"

features:
  - name: skip_loading
    enabled: true
    patches:
      - signature: loading_screen
        nop: true
  - name: uncap_fps
    patches:
      - signature: fps_cap
        offset: 3
        bytes: "EB"
  - name: server_tweaks
    patches:
      - signature: netcode
        nop: true
        size: 2
`

// hostBytes returns a fake host binary. loading_screen sits at offset 0x10
// and fps_cap at 0x60; netcode is absent.
func hostBytes() []byte {
	data := bytes.Repeat([]byte{0xCC}, 256)
	copy(data[0x10:], []byte{0x74, 0x05, 0xE8, 0x11, 0x22, 0x33, 0x44})
	copy(data[0x60:], []byte{0x83, 0xF8, 0x1E, 0x7E, 0x05})
	return data
}

// writeHost writes the fake host binary and the patch file to a temp dir
// and returns their paths.
func writeHost(t *testing.T) (binary, patches string) {
	t.Helper()
	dir := t.TempDir()
	binary = filepath.Join(dir, "host.exe")
	patches = filepath.Join(dir, "patches.yaml")
	if err := os.WriteFile(binary, hostBytes(), 0644); err != nil {
		t.Fatalf("failed to write binary: %v", err)
	}
	if err := os.WriteFile(patches, []byte(testPatchFile), 0644); err != nil {
		t.Fatalf("failed to write patch file: %v", err)
	}
	return binary, patches
}

// writeFile writes content to name in a temp dir and returns its path.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// resetFlags restores every global flag to its default.
func resetFlags() {
	verbose = false
	quiet = false
	jsonOut = false
	baseFlag = "0x400000"
	findAll = false
	findLimit = 100
	checkJobs = 2
	applyFeatures = nil
	applyAll = false
	applyDryRun = false
	applyPID = 0
	applyMatch = ""
	mapsMatch = ""
	mapsExecOnly = false
}

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	fnErr := fn()

	w.Close()
	os.Stdout = origStdout

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	return buf.String(), fnErr
}

// assertJSON checks that output is valid JSON
func assertJSON(t *testing.T, output string) {
	t.Helper()
	var result any
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Errorf("invalid JSON output: %v\nOutput: %s", err, output)
	}
}

// assertContains checks that output contains all expected strings
func assertContains(t *testing.T, output string, expected []string) {
	t.Helper()
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("output missing expected string %q\nGot: %s", want, output)
		}
	}
}

// assertNotContains checks that output doesn't contain unwanted strings
func assertNotContains(t *testing.T, output string, unwanted []string) {
	t.Helper()
	for _, dont := range unwanted {
		if strings.Contains(output, dont) {
			t.Errorf("output contains unwanted string %q\nGot: %s", dont, output)
		}
	}
}
