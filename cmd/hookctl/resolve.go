package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/hookkit/image"
	"github.com/joshuapare/hookkit/internal/logger"
	"github.com/joshuapare/hookkit/internal/mmfile"
	"github.com/joshuapare/hookkit/signature"
)

func init() {
	rootCmd.AddCommand(newResolveCmd())
}

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <binary> <signatures.yaml>",
		Short: "Resolve every signature of a signature file against a binary",
		Long: `The resolve command scans a binary for every signature declared in a
signature file and prints where each one was found. Missing required
signatures are reported together and make the command fail.

Example:
  hookctl resolve haloce.exe signatures.yaml
  hookctl resolve haloce.exe signatures.yaml --base 0x400000 --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(args)
		},
	}
	return cmd
}

type resolvedSignature struct {
	Name     string `json:"name"`
	Found    bool   `json:"found"`
	Address  string `json:"address,omitempty"`
	Size     int    `json:"size"`
	Bytes    string `json:"bytes,omitempty"`
	Required bool   `json:"required"`
}

func runResolve(args []string) error {
	binPath, sigPath := args[0], args[1]

	defs, err := signature.LoadDefinitionsFile(sigPath)
	if err != nil {
		return err
	}
	base, err := loadBase()
	if err != nil {
		return err
	}

	printVerbose("Mapping %s at %s\n", binPath, hexAddr(base))
	data, cleanup, err := mmfile.Map(binPath)
	if err != nil {
		return fmt.Errorf("failed to map binary: %w", err)
	}
	defer cleanup()

	c := signature.NewCatalog(image.New(base, data))
	c.Declare(defs...)
	missing := c.ResolveAll()
	logger.Info("resolved signatures", "file", binPath, "declared", c.Len(), "missing", len(missing))

	results := make([]resolvedSignature, 0, c.Len())
	for _, s := range c.Signatures() {
		r := resolvedSignature{Name: s.Name(), Size: s.Size(), Required: s.Required()}
		if addr, ok := s.Address(); ok {
			r.Found = true
			r.Address = hexAddr(addr)
			r.Bytes = hex.EncodeToString(s.Bytes())
		}
		results = append(results, r)
	}

	if jsonOut {
		if err := printJSON(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Found {
				printInfo("  ✓ %-32s %s  %s\n", r.Name, r.Address, r.Bytes)
			} else {
				printInfo("  ✗ %-32s not found\n", r.Name)
			}
		}
		printInfo("\n%d of %d signatures resolved\n", len(results)-len(missing), len(results))
	}

	return signature.NewMissingError(c.MissingRequired())
}
