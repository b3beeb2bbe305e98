package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/hookkit/image"
	"github.com/joshuapare/hookkit/internal/logger"
	"github.com/joshuapare/hookkit/internal/mmfile"
	"github.com/joshuapare/hookkit/patchfile"
	"github.com/joshuapare/hookkit/session"
	"github.com/joshuapare/hookkit/signature"
)

var checkJobs int

func init() {
	rootCmd.AddCommand(newCheckCmd())
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <patches.yaml> <binary>...",
		Short: "Report which features of a patch file each binary supports",
		Long: `The check command resolves the signatures of a patch file against one or
more binaries, in parallel, and reports for each binary which signatures are
missing and which features could be enabled. Nothing is written.

Example:
  hookctl check patches.yaml haloce-1.0.10.exe haloce-1.0.9.exe
  hookctl check patches.yaml builds/*.exe --json`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), args)
		},
	}
	cmd.Flags().IntVarP(&checkJobs, "jobs", "j", runtime.NumCPU(), "Binaries checked at once")
	return cmd
}

type checkReport struct {
	File       string                  `json:"file"`
	Compatible bool                    `json:"compatible"`
	Missing    []string                `json:"missing"`
	Features   []session.FeatureStatus `json:"features"`
	Error      string                  `json:"error,omitempty"`
}

func runCheck(ctx context.Context, args []string) error {
	pf, err := patchfile.LoadFile(args[0])
	if err != nil {
		return err
	}
	base, err := loadBase()
	if err != nil {
		return err
	}

	binaries := args[1:]
	reports := make([]checkReport, len(binaries))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(checkJobs, 1))
	for i, path := range binaries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			reports[i] = checkBinary(pf, path, base)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if jsonOut {
		if err := printJSON(reports); err != nil {
			return err
		}
	} else {
		for _, r := range reports {
			printCheckReport(r)
		}
	}

	for _, r := range reports {
		if !r.Compatible {
			return fmt.Errorf("%d of %d binaries are not compatible", countIncompatible(reports), len(reports))
		}
	}
	return nil
}

// checkBinary resolves the patch file against one binary. Each call owns
// its own mapping and session.
func checkBinary(pf *patchfile.File, path string, base uint64) checkReport {
	r := checkReport{File: path, Missing: []string{}, Features: []session.FeatureStatus{}}

	data, cleanup, err := mmfile.Map(path)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	defer cleanup()

	s := session.New(image.New(base, data), session.Options{Logger: logger.L})
	pf.Install(s)
	err = s.Attach()

	var me *signature.MissingError
	if err != nil && !errors.As(err, &me) {
		r.Error = err.Error()
		return r
	}
	r.Compatible = err == nil
	r.Missing = append(r.Missing, s.Missing()...)
	r.Features = s.Features()
	if me != nil {
		r.Error = me.Error()
	}
	return r
}

func printCheckReport(r checkReport) {
	mark := "✓"
	if !r.Compatible {
		mark = "✗"
	}
	printInfo("%s %s\n", mark, r.File)
	if r.Error != "" {
		printInfo("    %s\n", r.Error)
	}
	for _, f := range r.Features {
		state := "supported"
		if !f.Supported {
			state = "unsupported"
		}
		printInfo("    %-28s %s\n", f.Name, state)
	}
	if len(r.Missing) > 0 {
		printVerbose("    missing signatures: %v\n", r.Missing)
	}
}

func countIncompatible(reports []checkReport) int {
	n := 0
	for _, r := range reports {
		if !r.Compatible {
			n++
		}
	}
	return n
}
