package main

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuapare/hookkit/internal/procmaps"
)

var (
	mapsMatch    string
	mapsExecOnly bool
)

func init() {
	rootCmd.AddCommand(newMapsCmd())
}

func newMapsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maps <pid>",
		Short: "List the memory mappings of a running process",
		Long: `The maps command lists the mappings of a running process, which is how to
pick the --match value for "apply --pid".

Example:
  hookctl maps 4242
  hookctl maps 4242 --exec --match haloce`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := strconv.Atoi(args[0])
			if err != nil {
				return err
			}
			maps, err := procmaps.Read(pid)
			if err != nil {
				return err
			}
			return printMaps(maps)
		},
	}
	cmd.Flags().StringVar(&mapsMatch, "match", "", "Only list mappings whose path contains this")
	cmd.Flags().BoolVar(&mapsExecOnly, "exec", false, "Only list executable mappings")
	return cmd
}

type mapEntry struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	Size        uint64 `json:"size"`
	Permissions string `json:"permissions"`
	Path        string `json:"path"`
}

func printMaps(maps []procmaps.Map) error {
	entries := []mapEntry{}
	for _, m := range maps {
		if mapsExecOnly && !m.Permissions.Has(procmaps.PermissionExecute) {
			continue
		}
		if mapsMatch != "" && !strings.Contains(m.Path, mapsMatch) {
			continue
		}
		entries = append(entries, mapEntry{
			Start:       hexAddr(m.Start),
			End:         hexAddr(m.End),
			Size:        m.Len(),
			Permissions: m.Permissions.String(),
			Path:        m.Path,
		})
	}

	if jsonOut {
		return printJSON(entries)
	}
	for _, e := range entries {
		printInfo("%s-%s %s %8d %s\n", e.Start, e.End, e.Permissions, e.Size, e.Path)
	}
	printVerbose("%d mappings\n", len(entries))
	return nil
}
