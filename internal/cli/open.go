package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cachescope/internal/session"
)

// OpenOptions holds flags for the open command.
type OpenOptions struct {
	*RootOptions
	Encrypted bool
	Indexed   bool
	Prefix    string
	Limit     int
	Timeout   time.Duration
}

// OpenResult is the JSON payload of a successful open.
type OpenResult struct {
	Variant string   `json:"variant"`
	Path    string   `json:"path"`
	Keys    []string `json:"keys"`
	Count   int      `json:"count"`
}

// NewOpenCommand creates the open command.
func NewOpenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OpenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "open <path>",
		Short: "Open a cache once and list its keys",
		Long: `Open a cache store read-only and list its keys.

The path is checked the same way the interactive shell checks it: a directory
for directory stores, a regular file for indexed stores. An implausible path
is rejected without touching the store. A store that cannot be opened, or
that holds no keys, is reported as "Couldn't open this cache".

Encrypted stores read their passphrase from the environment variable named
by passphrase_env in the config file (default CACHESCOPE_PASSPHRASE).

Example:
  cachescope open ./my-cache
  cachescope open --indexed --encrypted ./blobs.db --prefix user:`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpen(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Encrypted, "encrypted", false, "store is encrypted")
	cmd.Flags().BoolVar(&opts.Indexed, "indexed", false, "store is a single indexed file")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "only list keys with this prefix")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "list at most this many keys (0 = all)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "give up after this long")

	return cmd
}

func runOpen(opts *OpenOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, _, err := opts.LoadConfig()
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeNotFound, "invalid path", err)
	}
	sel := session.Selection{Path: abs, Encrypted: opts.Encrypted, Indexed: opts.Indexed}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithTimeout(parentCtx, opts.Timeout)
	defer cancel()

	d := startDialog(ctx, cfg, sel)
	defer func() {
		if closeErr := d.Close(); closeErr != nil {
			formatter.VerboseLog("error closing store: %v", closeErr)
		}
	}()

	formatter.VerboseLog("Opening %s as %s", abs, sel.Variant())
	outcome, err := d.openSelection(ctx, formatter)
	if err != nil {
		return err
	}

	cur, ok := d.state.Current()
	if !ok {
		return formatter.fail(ExitFailure, ErrCodeGeneric, "opened store is gone", nil)
	}

	keys, err := listKeys(ctx, cur.Handle, opts.Prefix, opts.Limit)
	if err != nil {
		return formatter.fail(ExitFailure, ErrCodeReadFailed, "failed to list keys", err)
	}

	if formatter.IsJSON() {
		return formatter.SuccessWithAttempt(outcome.Attempt.ID, OpenResult{
			Variant: sel.Variant().String(),
			Path:    abs,
			Keys:    keys,
			Count:   len(keys),
		})
	}

	for _, k := range keys {
		fmt.Fprintln(formatter.Writer, k)
	}
	fmt.Fprintln(formatter.Writer, plural(len(keys), "key"))
	return nil
}
