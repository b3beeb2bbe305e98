package main

import (
	"strings"
	"testing"

	"github.com/joshuapare/hookkit/internal/procmaps"
)

const testMaps = `00400000-00452000 r-xp 00000000 08:02 173521      /games/haloce/haloce.exe
00651000-00652000 rw-p 00051000 08:02 173521      /games/haloce/haloce.exe
7f2c4a000000-7f2c4a021000 rw-p 00000000 00:00 0
7f2c4c0b3000-7f2c4c25b000 r-xp 00000000 08:02 135522      /usr/lib/libc.so.6
`

func TestPrintMaps(t *testing.T) {
	maps, err := procmaps.Parse(strings.NewReader(testMaps))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		name           string
		match          string
		execOnly       bool
		wantJSON       bool
		wantContain    []string
		wantNotContain []string
	}{
		{
			name:        "all",
			wantContain: []string{"0x00400000-0x00452000 r-xp", "0x00651000", "libc.so.6"},
		},
		{
			name:           "exec only",
			execOnly:       true,
			wantContain:    []string{"haloce.exe", "libc.so.6"},
			wantNotContain: []string{"0x00651000"},
		},
		{
			name:           "match",
			match:          "haloce",
			execOnly:       true,
			wantContain:    []string{"0x00400000"},
			wantNotContain: []string{"libc"},
		},
		{
			name:        "json",
			match:       "libc",
			wantJSON:    true,
			wantContain: []string{`"permissions": "r-xp"`, `"size": 1736704`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags()
			jsonOut = tt.wantJSON
			mapsMatch = tt.match
			mapsExecOnly = tt.execOnly

			output, err := captureOutput(t, func() error {
				return printMaps(maps)
			})
			if err != nil {
				t.Fatalf("printMaps() error = %v", err)
			}
			if tt.wantJSON {
				assertJSON(t, output)
			}
			assertContains(t, output, tt.wantContain)
			assertNotContains(t, output, tt.wantNotContain)
		})
	}
}
