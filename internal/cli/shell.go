package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/roach88/cachescope/internal/cachestore"
	"github.com/roach88/cachescope/internal/session"
)

// DefaultListLimit caps how many keys the shell prints at once.
const DefaultListLimit = 100

// ShellOptions holds flags for the shell command.
type ShellOptions struct {
	*RootOptions
	Path      string
	Encrypted bool
	Indexed   bool
	NoHistory bool
	Timeout   time.Duration
}

// NewShellCommand creates the interactive shell command.
func NewShellCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShellOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Pick, open and browse caches interactively",
		Long: `Start an interactive shell hosting one open dialog.

Edit the selection with path, encrypted and indexed (or pick a path with
browse), then open it. Once a store is open the shell switches to browsing
its contents until back is entered. Type help for the commands of each view.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Path, "path", "", "initial cache path")
	cmd.Flags().BoolVar(&opts.Encrypted, "encrypted", false, "initial encrypted flag")
	cmd.Flags().BoolVar(&opts.Indexed, "indexed", false, "initial indexed flag")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "do not read or write command history")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "give up on an open after this long")

	return cmd
}

// historyFile returns the path to the history file.
func historyFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "cachescope", "history")
}

func runShell(opts *ShellOptions, cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	cfg, _, err := opts.LoadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Set up liner for readline-style input
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	sh := &shell{out: out, timeout: opts.Timeout}
	line.SetCompleter(sh.complete)

	sel := session.Selection{Encrypted: opts.Encrypted, Indexed: opts.Indexed}
	if opts.Path != "" {
		sel.Path = resolvePath(opts.Path)
	}
	picker := newLinerPicker(line, out, sh.complete)
	sh.d = startDialog(ctx, cfg, sel, session.WithPicker(picker, cfg.BrowseRoot))
	defer func() {
		if closeErr := sh.d.Close(); closeErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error closing store: %v\n", closeErr)
		}
	}()

	history := ""
	if !opts.NoHistory {
		history = historyFile()
	}
	if history != "" {
		if f, err := os.Open(history); err == nil {
			_, _ = line.ReadHistory(f)
			f.Close()
		}
	}

	fmt.Fprintln(out, "cachescope - type 'help' for commands.")

	for {
		input, err := line.Prompt(sh.prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				break
			}
			return fmt.Errorf("reading input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if sh.execute(ctx, input) {
			break
		}
	}

	if history != "" {
		saveHistory(line, history)
	}
	return nil
}

// saveHistory persists command history to disk.
func saveHistory(line *liner.State, path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	if f, err := os.Create(path); err == nil {
		_, _ = line.WriteHistory(f)
		f.Close()
	}
}

// shell interprets one command line at a time against a dialog.
type shell struct {
	out      io.Writer
	d        *dialog
	timeout  time.Duration
	browsing bool // a store is open and its contents are shown
}

var (
	dialogCommands = []string{"path", "encrypted", "indexed", "browse", "open", "status", "help", "quit", "exit"}
	browseCommands = []string{"keys", "get", "count", "back", "status", "help", "quit", "exit"}
)

func (sh *shell) prompt() string {
	if sh.browsing {
		return "cachescope:keys> "
	}
	return "cachescope> "
}

// execute runs one command line and reports whether the shell should exit.
func (sh *shell) execute(ctx context.Context, input string) (quit bool) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return false
	}
	cmd := strings.ToLower(fields[0])
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), fields[0]))

	switch cmd {
	case "quit", "exit", "q":
		return true
	case "help", "?":
		sh.printHelp()
		return false
	case "status":
		sh.cmdStatus()
		return false
	}

	if sh.browsing {
		switch cmd {
		case "keys", "ls":
			sh.cmdKeys(ctx, rest)
		case "get":
			sh.cmdGet(ctx, rest)
		case "count":
			sh.cmdCount(ctx)
		case "back":
			sh.cmdBack()
		default:
			sh.unknown(cmd)
		}
		return false
	}

	switch cmd {
	case "path":
		sh.cmdPath(rest)
	case "encrypted":
		sh.cmdFlag("encrypted", rest, sh.d.sess.SetEncrypted)
	case "indexed":
		sh.cmdFlag("indexed", rest, sh.d.sess.SetIndexed)
	case "browse":
		sh.d.sess.Browse()
		if st, ok := sh.d.sess.Status(); ok {
			fmt.Fprintf(sh.out, "path: %s\n", displayPath(st.Selection.Path))
		}
	case "open":
		sh.cmdOpen(ctx)
	default:
		sh.unknown(cmd)
	}
	return false
}

func (sh *shell) unknown(cmd string) {
	fmt.Fprintf(sh.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
}

func (sh *shell) cmdPath(arg string) {
	if arg == "" {
		fmt.Fprintln(sh.out, "usage: path <path>")
		return
	}
	p := resolvePath(arg)
	sh.d.sess.SetPath(p)
	fmt.Fprintf(sh.out, "path: %s\n", p)
}

func (sh *shell) cmdFlag(name, arg string, set func(bool) bool) {
	var v bool
	switch strings.ToLower(arg) {
	case "on", "true", "yes":
		v = true
	case "off", "false", "no":
		v = false
	default:
		fmt.Fprintf(sh.out, "usage: %s on|off\n", name)
		return
	}
	set(v)
	fmt.Fprintf(sh.out, "%s: %s\n", name, onOff(v))
}

func (sh *shell) cmdOpen(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, sh.timeout)
	defer cancel()

	formatter := &OutputFormatter{Format: "text", Writer: sh.out}
	outcome, err := sh.d.openSelection(ctx, formatter)
	if err != nil {
		return
	}
	sh.browsing = true
	fmt.Fprintf(sh.out, "✓ Opened %s %s\n", outcome.Attempt.Selection.Variant(), outcome.Attempt.Selection.Path)
}

func (sh *shell) cmdStatus() {
	st, ok := sh.d.sess.Status()
	if !ok {
		fmt.Fprintln(sh.out, "session stopped")
		return
	}

	validity := "pending"
	if st.Validity.Seq > 0 && st.Validity.Selection == st.Selection {
		validity = "not plausible"
		if st.Validity.Valid {
			validity = "plausible"
		}
	}

	fmt.Fprintf(sh.out, "path:      %s\n", displayPath(st.Selection.Path))
	fmt.Fprintf(sh.out, "encrypted: %s\n", onOff(st.Selection.Encrypted))
	fmt.Fprintf(sh.out, "indexed:   %s\n", onOff(st.Selection.Indexed))
	fmt.Fprintf(sh.out, "variant:   %s\n", st.Selection.Variant())
	fmt.Fprintf(sh.out, "validity:  %s\n", validity)
	fmt.Fprintf(sh.out, "gate:      %s\n", st.Gate)
	if cur, ok := sh.d.state.Current(); ok {
		fmt.Fprintf(sh.out, "open:      %s %s\n", cur.Attempt.Selection.Variant(), cur.Attempt.Selection.Path)
	}
}

func (sh *shell) current() (cachestore.Handle, bool) {
	cur, ok := sh.d.state.Current()
	if !ok {
		fmt.Fprintln(sh.out, "no store is open")
		sh.browsing = false
		return nil, false
	}
	return cur.Handle, true
}

func (sh *shell) cmdKeys(ctx context.Context, prefix string) {
	h, ok := sh.current()
	if !ok {
		return
	}
	keys, err := listKeys(ctx, h, prefix, DefaultListLimit+1)
	if err != nil {
		fmt.Fprintf(sh.out, "Error [%s]: %v\n", ErrCodeReadFailed, err)
		return
	}

	more := len(keys) > DefaultListLimit
	if more {
		keys = keys[:DefaultListLimit]
	}
	for _, k := range keys {
		fmt.Fprintln(sh.out, k)
	}
	if more {
		fmt.Fprintf(sh.out, "(first %d shown; narrow with keys <prefix>)\n", DefaultListLimit)
		return
	}
	fmt.Fprintln(sh.out, plural(len(keys), "key"))
}

func (sh *shell) cmdGet(ctx context.Context, key string) {
	if key == "" {
		fmt.Fprintln(sh.out, "usage: get <key>")
		return
	}
	h, ok := sh.current()
	if !ok {
		return
	}

	v, resolved, err := lookupKey(ctx, h, key)
	if errors.Is(err, cachestore.ErrNotFound) {
		fmt.Fprintf(sh.out, "no such key: %s\n", key)
		return
	}
	if err != nil {
		fmt.Fprintf(sh.out, "Error [%s]: %v\n", ErrCodeReadFailed, err)
		return
	}

	encoding, text := renderValue(v)
	fmt.Fprintf(sh.out, "%s (%s, %s)\n", resolved, encoding, plural(len(v), "byte"))
	fmt.Fprintln(sh.out, strings.TrimRight(text, "\n"))
}

func (sh *shell) cmdCount(ctx context.Context) {
	h, ok := sh.current()
	if !ok {
		return
	}
	n, err := countKeys(ctx, h)
	if err != nil {
		fmt.Fprintf(sh.out, "Error [%s]: %v\n", ErrCodeReadFailed, err)
		return
	}
	fmt.Fprintln(sh.out, plural(n, "key"))
}

func (sh *shell) cmdBack() {
	if err := sh.d.state.Clear(); err != nil {
		fmt.Fprintf(sh.out, "error closing store: %v\n", err)
	}
	sh.browsing = false
	fmt.Fprintln(sh.out, "closed")
}

// complete provides tab completion for commands and, after "path ",
// filesystem paths.
func (sh *shell) complete(line string) []string {
	if !sh.browsing && strings.HasPrefix(line, "path ") {
		arg := strings.TrimLeft(strings.TrimPrefix(line, "path "), " ")
		var out []string
		for _, c := range completePath(arg) {
			out = append(out, "path "+c)
		}
		return out
	}

	commands := dialogCommands
	if sh.browsing {
		commands = browseCommands
	}

	var completions []string
	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}
	return completions
}

func (sh *shell) printHelp() {
	if sh.browsing {
		fmt.Fprintln(sh.out, "Commands:")
		fmt.Fprintln(sh.out, "  keys [prefix]          List keys, optionally by prefix")
		fmt.Fprintln(sh.out, "  get <key>              Show a value")
		fmt.Fprintln(sh.out, "  count                  Count keys")
		fmt.Fprintln(sh.out, "  back                   Close the store and return to the dialog")
		fmt.Fprintln(sh.out, "  status                 Show the dialog state")
		fmt.Fprintln(sh.out, "  help                   Show this help")
		fmt.Fprintln(sh.out, "  exit / quit / q        Exit")
		return
	}
	fmt.Fprintln(sh.out, "Commands:")
	fmt.Fprintln(sh.out, "  path <path>            Set the cache path")
	fmt.Fprintln(sh.out, "  encrypted on|off       Set whether the store is encrypted")
	fmt.Fprintln(sh.out, "  indexed on|off         Set whether the store is a single indexed file")
	fmt.Fprintln(sh.out, "  browse                 Pick the path interactively")
	fmt.Fprintln(sh.out, "  open                   Open the selected store")
	fmt.Fprintln(sh.out, "  status                 Show the dialog state")
	fmt.Fprintln(sh.out, "  help                   Show this help")
	fmt.Fprintln(sh.out, "  exit / quit / q        Exit")
}

func displayPath(p string) string {
	if p == "" {
		return "(none)"
	}
	return p
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
