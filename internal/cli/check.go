package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/cachescope/internal/opener"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Indexed bool
}

// CheckResult is the JSON payload of the check command.
type CheckResult struct {
	Path      string `json:"path"`
	Indexed   bool   `json:"indexed"`
	Plausible bool   `json:"plausible"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <path>",
		Short: "Check whether a path could hold a cache",
		Long: `Report whether a path could hold a cache of the selected kind, without
opening it: an existing directory, or with --indexed an existing regular file.

Exits 1 if the path is not plausible.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Indexed, "indexed", false, "expect a single indexed file")

	return cmd
}

func runCheck(opts *CheckOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	plausible := opener.IsPlausible(path, opts.Indexed)

	if formatter.IsJSON() {
		if err := formatter.Success(CheckResult{Path: path, Indexed: opts.Indexed, Plausible: plausible}); err != nil {
			return err
		}
	} else if plausible {
		fmt.Fprintf(formatter.Writer, "✓ %s could be a cache\n", path)
	} else {
		fmt.Fprintf(formatter.Writer, "✗ %s is not a cache\n", path)
	}

	if !plausible {
		return NewExitError(ExitFailure, fmt.Sprintf("%s is not plausible", path))
	}
	return nil
}
