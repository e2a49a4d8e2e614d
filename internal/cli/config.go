package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/cachescope/internal/config"
)

// ConfigView is the JSON payload of config show.
type ConfigView struct {
	Path          string `json:"path"`
	Debounce      string `json:"debounce"`
	BrowseRoot    string `json:"browse_root"`
	PassphraseEnv string `json:"passphrase_env"`
	OpenAttempts  uint   `json:"open_attempts"`
	LogLevel      string `json:"log_level"`
}

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	cmd.AddCommand(newConfigInitCommand(rootOpts))
	cmd.AddCommand(newConfigShowCommand(rootOpts))

	return cmd
}

func newConfigInitCommand(rootOpts *RootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:           "init",
		Short:         "Write the default configuration file",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(rootOpts, force, cmd)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	return cmd
}

func runConfigInit(opts *RootOptions, force bool, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	path, err := opts.configPath()
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeConfig, "failed to locate config file", err)
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return formatter.fail(ExitCommandError, ErrCodeWriteFailed,
				fmt.Sprintf("%s already exists (use --force to overwrite)", path), nil)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return formatter.fail(ExitCommandError, ErrCodeConfig, "failed to stat config file", err)
		}
	}

	if err := config.Default().Write(path); err != nil {
		return formatter.fail(ExitFailure, ErrCodeWriteFailed, "failed to write config file", err)
	}

	if formatter.IsJSON() {
		return formatter.Success(map[string]string{"path": path})
	}
	fmt.Fprintf(formatter.Writer, "✓ Wrote %s\n", path)
	return nil
}

func newConfigShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show",
		Short:         "Print the effective configuration",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(rootOpts, cmd)
		},
	}
}

func runConfigShow(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, path, err := opts.LoadConfig()
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}

	if formatter.IsJSON() {
		return formatter.Success(ConfigView{
			Path:          path,
			Debounce:      cfg.Debounce.String(),
			BrowseRoot:    cfg.BrowseRoot,
			PassphraseEnv: cfg.PassphraseEnv,
			OpenAttempts:  cfg.OpenAttempts,
			LogLevel:      cfg.LogLevel,
		})
	}

	data, err := cfg.Marshal()
	if err != nil {
		return formatter.fail(ExitFailure, ErrCodeGeneric, "failed to encode config", err)
	}
	_, err = formatter.Writer.Write(data)
	return err
}
