package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/hookkit/image"
	"github.com/joshuapare/hookkit/internal/mmfile"
	"github.com/joshuapare/hookkit/pattern"
)

var (
	findAll   bool
	findLimit int
)

func init() {
	rootCmd.AddCommand(newFindCmd())
}

func newFindCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find <binary> <pattern>",
		Short: "Search a binary for a byte pattern",
		Long: `The find command scans a binary for a byte pattern with "??" wildcards
and prints the address of the first match, or of every match with --all.

Example:
  hookctl find haloce.exe "74 05 E8 ?? ?? ?? ??"
  hookctl find haloce.exe "D9 05 ?? ?? ?? ?? D8 0D" --all --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFind(args)
		},
	}
	cmd.Flags().BoolVar(&findAll, "all", false, "List every match, not just the first")
	cmd.Flags().IntVar(&findLimit, "limit", 100, "Maximum matches listed with --all")
	return cmd
}

type findMatch struct {
	Address string `json:"address"`
	Offset  int    `json:"offset"`
}

type findResult struct {
	File    string      `json:"file"`
	Pattern string      `json:"pattern"`
	Matches []findMatch `json:"matches"`
	Total   int         `json:"total"`
}

func runFind(args []string) error {
	path := args[0]
	p, err := pattern.Parse(args[1])
	if err != nil {
		return err
	}
	base, err := loadBase()
	if err != nil {
		return err
	}

	printVerbose("Mapping %s\n", path)
	data, cleanup, err := mmfile.Map(path)
	if err != nil {
		return fmt.Errorf("failed to map binary: %w", err)
	}
	defer cleanup()
	img := image.New(base, data)

	result := findResult{File: path, Pattern: p.String(), Matches: []findMatch{}}
	limit := 1
	if findAll {
		limit = findLimit
		result.Total = pattern.Count(data, p)
	}

	for addr := img.Base(); len(result.Matches) < limit; addr++ {
		match, ok := img.FindIn(addr, int(img.End()-addr), p)
		if !ok {
			break
		}
		result.Matches = append(result.Matches, findMatch{
			Address: hexAddr(match),
			Offset:  int(match - img.Base()),
		})
		addr = match
	}
	if !findAll {
		result.Total = len(result.Matches)
	}

	if jsonOut {
		return printJSON(result)
	}

	if len(result.Matches) == 0 {
		return fmt.Errorf("pattern %s not found in %s", result.Pattern, path)
	}
	for _, m := range result.Matches {
		printInfo("%s  (offset 0x%x)\n", m.Address, m.Offset)
	}
	if findAll && result.Total > len(result.Matches) {
		printInfo("... %d more\n", result.Total-len(result.Matches))
	}
	return nil
}
