package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peterh/liner"
)

// linerPicker asks for a path on the shell's line editor, with Tab
// completing filesystem entries.
//
// It runs on the session goroutine while the shell goroutine is blocked in
// Session.Browse, so the two never use the line editor at once.
type linerPicker struct {
	line    *liner.State
	out     io.Writer
	restore liner.Completer
}

func newLinerPicker(line *liner.State, out io.Writer, restore liner.Completer) *linerPicker {
	return &linerPicker{line: line, out: out, restore: restore}
}

// Choose implements session.Picker. An empty answer or Ctrl-C cancels.
func (p *linerPicker) Choose(initialPath, title string) (string, bool) {
	p.line.SetCompleter(completePath)
	defer p.line.SetCompleter(p.restore)

	fmt.Fprintf(p.out, "%s (Tab completes, empty line cancels)\n", title)

	suggestion := initialPath
	if suggestion != "" && !strings.HasSuffix(suggestion, string(filepath.Separator)) {
		suggestion += string(filepath.Separator)
	}

	answer, err := p.line.PromptWithSuggestion("path> ", suggestion, -1)
	if err != nil {
		return "", false
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", false
	}
	return resolvePath(answer), true
}

// completePath returns filesystem entries that extend partial. Directories
// get a trailing separator so completion can continue into them.
func completePath(partial string) []string {
	expanded := expandHome(partial)
	dir, base := filepath.Split(expanded)
	readDir := dir
	if readDir == "" {
		readDir = "."
	}

	entries, err := os.ReadDir(readDir)
	if err != nil {
		return nil
	}

	// Keep what the user typed in front of the completed name.
	typedDir, _ := filepath.Split(partial)

	var out []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, base) {
			continue
		}
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(base, ".") {
			continue
		}
		candidate := typedDir + name
		if isDirEntry(readDir, e) {
			candidate += string(filepath.Separator)
		}
		out = append(out, candidate)
	}
	sort.Strings(out)
	return out
}

func isDirEntry(dir string, e os.DirEntry) bool {
	if e.IsDir() {
		return true
	}
	if e.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, e.Name()))
	return err == nil && info.IsDir()
}

// expandHome replaces a leading "~/" with the home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// resolvePath expands "~" and makes path absolute. Paths that cannot be
// made absolute are returned as typed.
func resolvePath(path string) string {
	path = expandHome(path)
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
