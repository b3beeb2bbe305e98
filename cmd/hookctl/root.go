package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joshuapare/hookkit/internal/logger"
)

// defaultBase is where 32-bit Windows executables are loaded unless
// relocated.
const defaultBase = 0x400000

var (
	// Global flags
	verbose  bool
	quiet    bool
	jsonOut  bool
	logDir   string
	logLevel string
	baseFlag string
)

var rootCmd = &cobra.Command{
	Use:   "hookctl",
	Short: "Find signatures in and patch host binaries",
	Long: `hookctl locates byte signatures in host executables, reports which
features a build supports, and applies patch files to binaries on disk or to a
running process.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Write a log file to this directory")
	rootCmd.PersistentFlags().
		StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); enables logging")
	rootCmd.PersistentFlags().
		StringVar(&baseFlag, "base", fmt.Sprintf("%#x", defaultBase), "Address the first byte of a binary is loaded at")
}

func initLogging() error {
	if logDir == "" && logLevel == "" {
		return logger.Init(logger.Options{})
	}
	level, err := logger.ParseLevel(orDefault(logLevel, "info"))
	if err != nil {
		return err
	}
	return logger.Init(logger.Options{Enabled: true, LogDir: logDir, Level: level, JSON: true})
}

func execute() {
	err := rootCmd.Execute()
	logger.Close()
	if err != nil {
		printError("%v\n", err)
		os.Exit(1)
	}
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printError prints an error message
func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format, args...)
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...any) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// loadBase parses --base; hex needs the 0x prefix.
func loadBase() (uint64, error) {
	base, err := strconv.ParseUint(baseFlag, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid --base %q: %w", baseFlag, err)
	}
	return base, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// hexAddr formats an address the way the rest of the output does.
func hexAddr(addr uint64) string {
	return fmt.Sprintf("0x%08x", addr)
}
