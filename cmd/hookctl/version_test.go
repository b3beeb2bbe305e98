package main

import (
	"runtime"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		resetFlags()
		output, err := captureOutput(t, func() error {
			return versionCmd.RunE(versionCmd, nil)
		})
		if err != nil {
			t.Fatalf("version error = %v", err)
		}
		assertContains(t, output, []string{"hookctl ", "commit:", "built:", runtime.Version(), runtime.GOOS + "/" + runtime.GOARCH})
	})

	t.Run("json", func(t *testing.T) {
		resetFlags()
		jsonOut = true
		output, err := captureOutput(t, func() error {
			return versionCmd.RunE(versionCmd, nil)
		})
		if err != nil {
			t.Fatalf("version error = %v", err)
		}
		assertJSON(t, output)
		assertContains(t, output, []string{`"go": "` + runtime.Version() + `"`, `"os": "` + runtime.GOOS + `"`})
	})
}

func TestCurrentVersion_LdflagsWin(t *testing.T) {
	defer func(v, c, d string) { version, commit, date = v, c, d }(version, commit, date)
	version, commit, date = "v1.2.3", "abc123", "2026-01-02"

	info := currentVersion()
	if info.Version != "v1.2.3" || info.Commit != "abc123" || info.Date != "2026-01-02" {
		t.Errorf("ldflags values overridden: %+v", info)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("go = %q, want %q", info.GoVersion, runtime.Version())
	}
}
