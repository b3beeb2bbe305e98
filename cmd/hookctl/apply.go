package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/hookkit/image"
	"github.com/joshuapare/hookkit/image/dirty"
	"github.com/joshuapare/hookkit/internal/logger"
	"github.com/joshuapare/hookkit/internal/mmfile"
	"github.com/joshuapare/hookkit/patchfile"
	"github.com/joshuapare/hookkit/session"
)

var (
	applyFeatures []string
	applyAll      bool
	applyDryRun   bool
	applyPID      int
	applyMatch    string
)

func init() {
	rootCmd.AddCommand(newApplyCmd())
}

func newApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <patches.yaml> [binary]",
		Short: "Enable features of a patch file on a binary or running process",
		Long: `The apply command resolves a patch file against a binary and enables its
features, writing the patched bytes back to the file. Without --feature or
--all, the features the patch file marks enabled are applied.

With --pid the patches go into the memory of a running process instead of a
file; --match selects the mapping (defaults to the first executable one).

Example:
  hookctl apply patches.yaml haloce.exe
  hookctl apply patches.yaml haloce.exe --feature widescreen --feature uncap_fps
  hookctl apply patches.yaml haloce.exe --all --dry-run
  hookctl apply patches.yaml --pid 4242 --match haloce`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd.Context(), args)
		},
	}
	cmd.Flags().StringSliceVarP(&applyFeatures, "feature", "f", nil, "Feature to enable (repeatable)")
	cmd.Flags().BoolVar(&applyAll, "all", false, "Enable every supported feature")
	cmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Show what would be written without changing the file")
	cmd.Flags().IntVar(&applyPID, "pid", 0, "Patch the running process with this pid")
	cmd.Flags().StringVar(&applyMatch, "match", "", "Mapping path substring used with --pid")
	return cmd
}

type appliedPatch struct {
	Address  string `json:"address"`
	Owner    string `json:"owner"`
	Original string `json:"original"`
	Applied  string `json:"applied"`
}

type applyResult struct {
	Target  string         `json:"target"`
	DryRun  bool           `json:"dry_run"`
	Enabled []string       `json:"enabled"`
	Skipped []string       `json:"skipped"`
	Patches []appliedPatch `json:"patches"`
	Missing []string       `json:"missing"`
}

func runApply(ctx context.Context, args []string) error {
	pf, err := patchfile.LoadFile(args[0])
	if err != nil {
		return err
	}

	img, tracker, cleanup, err := openTarget(args)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := session.Options{Logger: logger.L}
	if tracker != nil {
		opts.Tracker = tracker
	}
	s := session.New(img, opts)
	pf.Install(s)
	if err := s.Attach(); err != nil {
		return err
	}

	result := applyResult{
		Target:  targetName(img, args),
		DryRun:  applyDryRun,
		Enabled: []string{},
		Skipped: []string{},
		Patches: []appliedPatch{},
		Missing: append([]string{}, s.Missing()...),
	}

	known := make(map[string]bool)
	for _, fs := range s.Features() {
		known[fs.Name] = true
	}

	var errs []error
	for _, name := range selectFeatures(pf, s) {
		if !known[name] {
			errs = append(errs, fmt.Errorf("%w: %s", session.ErrUnknownFeature, name))
			continue
		}
		if !s.Supported(name) {
			result.Skipped = append(result.Skipped, name)
			printVerbose("Skipping %s: unsupported by this build\n", name)
			continue
		}
		if err := s.Enable(name); err != nil {
			errs = append(errs, err)
			continue
		}
		result.Enabled = append(result.Enabled, name)
	}

	l := s.Ledger()
	for _, h := range l.ActiveHandles() {
		r, _ := l.Lookup(h)
		result.Patches = append(result.Patches, appliedPatch{
			Address:  hexAddr(r.Addr),
			Owner:    r.Owner,
			Original: hex.EncodeToString(r.Original),
			Applied:  hex.EncodeToString(r.Applied),
		})
	}

	// The session is left attached: detaching would restore the original
	// bytes before they reach the file or process.
	if tracker != nil {
		if err := tracker.Flush(ctx, dirty.FlushFull); err != nil {
			errs = append(errs, fmt.Errorf("flush: %w", err))
		}
	}
	logger.Info("apply finished", "target", result.Target, "enabled", len(result.Enabled),
		"patches", len(result.Patches), "dry_run", applyDryRun)

	if jsonOut {
		if err := printJSON(result); err != nil {
			return err
		}
	} else {
		printApplyResult(result)
	}
	return errors.Join(errs...)
}

// openTarget opens the image named by the arguments and flags. The tracker
// is nil when nothing needs persisting.
func openTarget(args []string) (*image.Image, *dirty.Tracker, func(), error) {
	if applyPID != 0 {
		if len(args) > 1 {
			return nil, nil, nil, fmt.Errorf("--pid and a binary path are mutually exclusive")
		}
		if applyDryRun {
			return nil, nil, nil, fmt.Errorf("--dry-run is not supported with --pid")
		}
		printVerbose("Attaching to pid %d\n", applyPID)
		img, err := image.OpenProcess(applyPID, applyMatch)
		if err != nil {
			return nil, nil, nil, err
		}
		return img, nil, func() { _ = img.Close() }, nil
	}

	if len(args) < 2 {
		return nil, nil, nil, fmt.Errorf("a binary path or --pid is required")
	}
	path := args[1]
	base, err := loadBase()
	if err != nil {
		return nil, nil, nil, err
	}

	if applyDryRun {
		data, unmap, err := mmfile.MapPrivate(path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to map binary: %w", err)
		}
		return image.New(base, data), nil, func() { _ = unmap() }, nil
	}

	img, err := image.Open(path, base)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open binary: %w", err)
	}
	return img, dirty.NewTracker(img), func() { _ = img.Close() }, nil
}

func targetName(img *image.Image, args []string) string {
	if img.Name() != "memory" {
		return img.Name()
	}
	return args[len(args)-1]
}

// selectFeatures returns the features to enable: the --feature list, every
// feature with --all, or the patch file defaults.
func selectFeatures(pf *patchfile.File, s *session.Session) []string {
	switch {
	case applyAll:
		var names []string
		for _, fs := range s.Features() {
			names = append(names, fs.Name)
		}
		return names
	case len(applyFeatures) > 0:
		return applyFeatures
	default:
		return pf.Defaults()
	}
}

func printApplyResult(r applyResult) {
	if r.DryRun {
		printInfo("Dry run on %s, nothing written\n", r.Target)
	} else {
		printInfo("Patched %s\n", r.Target)
	}
	for _, name := range r.Enabled {
		printInfo("  ✓ %s\n", name)
	}
	for _, name := range r.Skipped {
		printInfo("  - %s (unsupported)\n", name)
	}
	if verbose {
		for _, p := range r.Patches {
			printVerbose("    %s  %s -> %s  [%s]\n", p.Address, p.Original, p.Applied, p.Owner)
		}
	}
	printInfo("\n%d features, %d patches\n", len(r.Enabled), len(r.Patches))
}
