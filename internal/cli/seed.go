package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cachescope/internal/cachestore"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	Encrypted bool
	Indexed   bool
	TTL       time.Duration
	TypeName  string
	Encoding  string // "raw" | "msgpack"
}

// SeedResult is the JSON payload of the seed command.
type SeedResult struct {
	Variant string `json:"variant"`
	Path    string `json:"path"`
	Written int    `json:"written"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed <path> key=value...",
		Short: "Write entries into a cache fixture",
		Long: `Create or extend a cache store with the given entries.

With --encoding msgpack each value is parsed as JSON and stored as msgpack.
Encrypted stores use the passphrase from the environment variable named by
passphrase_env; an existing encrypted store must be reseeded with the same
passphrase.

Example:
  cachescope seed ./my-cache user:1=alice user:2=bob
  cachescope seed --indexed ./blobs.db --encoding msgpack 'profile={"age":41}'`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Encrypted, "encrypted", false, "encrypt the store")
	cmd.Flags().BoolVar(&opts.Indexed, "indexed", false, "write a single indexed file")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 0, "expire entries after this long (0 = never)")
	cmd.Flags().StringVar(&opts.TypeName, "type", "", "type name recorded with each entry (indexed only)")
	cmd.Flags().StringVar(&opts.Encoding, "encoding", "raw", "value encoding (raw|msgpack)")

	return cmd
}

func runSeed(opts *SeedOptions, path string, pairs []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, _, err := opts.LoadConfig()
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}

	entries, err := parseEntries(pairs, opts)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeInvalidEntry, err.Error(), nil)
	}

	var passphrase string
	if opts.Encrypted {
		passphrase = cfg.Passphrase()
		if passphrase == "" {
			return formatter.fail(ExitCommandError, ErrCodeConfig,
				fmt.Sprintf("encrypted store needs a passphrase in $%s", cfg.PassphraseEnv), nil)
		}
	}

	variant := cachestore.Select(opts.Encrypted, opts.Indexed)
	formatter.VerboseLog("Seeding %d entries into %s (%s)", len(entries), path, variant)

	if opts.Indexed {
		err = cachestore.SeedIndexed(path, entries, passphrase)
	} else {
		err = cachestore.SeedDirectory(path, entries, passphrase)
	}
	if err != nil {
		return formatter.fail(ExitFailure, ErrCodeWriteFailed, "failed to seed store", err)
	}

	if formatter.IsJSON() {
		return formatter.Success(SeedResult{Variant: variant.String(), Path: path, Written: len(entries)})
	}
	fmt.Fprintf(formatter.Writer, "✓ Wrote %s to %s store\n", pluralForm(len(entries), "entry", "entries"), variant)
	return nil
}

// parseEntries splits key=value arguments. The first '=' separates key
// from value; keys must be non-empty.
func parseEntries(pairs []string, opts *SeedOptions) ([]cachestore.Entry, error) {
	if opts.Encoding != "raw" && opts.Encoding != "msgpack" {
		return nil, fmt.Errorf("invalid encoding %q: must be raw or msgpack", opts.Encoding)
	}

	entries := make([]cachestore.Entry, 0, len(pairs))
	for i, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("entry[%d]: expected key=value, got %q", i, pair)
		}

		raw := []byte(value)
		if opts.Encoding == "msgpack" {
			encoded, err := encodeMsgpack(value)
			if err != nil {
				return nil, fmt.Errorf("entry[%d] %s: %w", i, key, err)
			}
			raw = encoded
		}

		entries = append(entries, cachestore.Entry{
			Key:      key,
			Value:    raw,
			TypeName: opts.TypeName,
			TTL:      opts.TTL,
		})
	}
	return entries, nil
}
