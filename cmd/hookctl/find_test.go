package main

import (
	"testing"
)

func TestFindCommand(t *testing.T) {
	binary, _ := writeHost(t)

	tests := []struct {
		name           string
		pattern        string
		all            bool
		limit          int
		base           string
		wantErr        bool
		wantContain    []string
		wantNotContain []string
		wantJSON       bool
	}{
		{
			name:        "first match",
			pattern:     "74 05 E8 ?? ?? ?? ??",
			wantContain: []string{"0x00400010", "offset 0x10"},
		},
		{
			name:        "custom base",
			pattern:     "83 F8 1E",
			base:        "0x10000000",
			wantContain: []string{"0x10000060"},
		},
		{
			name:           "only first without --all",
			pattern:        "CC CC",
			wantContain:    []string{"0x00400000"},
			wantNotContain: []string{"0x00400001", "more"},
		},
		{
			name:        "all with limit",
			pattern:     "CC CC",
			all:         true,
			limit:       3,
			wantContain: []string{"0x00400000", "0x00400001", "0x00400002", "more"},
		},
		{
			name:        "json",
			pattern:     "83 F8 1E 7E ??",
			wantJSON:    true,
			wantContain: []string{`"address": "0x00400060"`, `"offset": 96`, `"total": 1`},
		},
		{
			name:    "not found",
			pattern: "DE AD BE EF",
			wantErr: true,
		},
		{
			name:    "invalid pattern",
			pattern: "7G",
			wantErr: true,
		},
		{
			name:    "invalid base",
			pattern: "74 05",
			base:    "nope",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags()
			jsonOut = tt.wantJSON
			findAll = tt.all
			if tt.limit > 0 {
				findLimit = tt.limit
			}
			if tt.base != "" {
				baseFlag = tt.base
			}

			output, err := captureOutput(t, func() error {
				return runFind([]string{binary, tt.pattern})
			})

			if (err != nil) != tt.wantErr {
				t.Fatalf("runFind() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.wantJSON {
				assertJSON(t, output)
			}
			assertContains(t, output, tt.wantContain)
			assertNotContains(t, output, tt.wantNotContain)
		})
	}
}

func TestFindCommand_MissingFile(t *testing.T) {
	resetFlags()
	_, err := captureOutput(t, func() error {
		return runFind([]string{"/nonexistent/host.exe", "74 05"})
	})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
