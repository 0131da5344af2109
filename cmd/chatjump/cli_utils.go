package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/asheshgoplani/chatjump/internal/config"
	"github.com/asheshgoplani/chatjump/internal/engine"
	"github.com/asheshgoplani/chatjump/internal/statedb"
	"github.com/asheshgoplani/chatjump/internal/ui"
)

// normalizeArgs reorders args so flags come before positional arguments.
// Go's flag package stops parsing at the first non-flag argument, which means
// "scan page.html --json" silently ignores --json. This function moves all
// flags to the front so they get parsed correctly.
func normalizeArgs(fs *flag.FlagSet, args []string) []string {
	boolFlags := make(map[string]bool)
	fs.VisitAll(func(f *flag.Flag) {
		if bf, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && bf.IsBoolFlag() {
			boolFlags[f.Name] = true
		}
	})

	var flags, positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]

		// "--" terminates flag processing
		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}

		if strings.HasPrefix(arg, "-") && arg != "-" {
			flags = append(flags, arg)

			name := strings.TrimLeft(arg, "-")
			if strings.Contains(name, "=") {
				continue
			}

			// A non-bool flag takes the next arg as its value.
			if !boolFlags[name] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, arg)
		}
	}
	return append(flags, positional...)
}

// parseFlags normalizes and parses args. flag.ErrHelp is passed through so
// main can exit 0 after usage.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("flag parsing: %w", err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// terminalWidth returns stdout's width, or 0 when stdout is not a terminal.
func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	w, _, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return w
}

// printEntries writes the count line and one label per entry, clipped to
// width columns when width is positive.
func printEntries(w io.Writer, entries []engine.MessageEntry, width int) {
	fmt.Fprintln(w, ui.CountLine(len(entries)))
	for i, e := range entries {
		line := fmt.Sprintf("%3d  %s", i+1, ui.Label(e.Text))
		if width > 0 {
			line = runewidth.Truncate(line, width, "…")
		}
		fmt.Fprintln(w, line)
	}
}

// openState opens and migrates the profile's state database. It returns
// nil without error when storage is disabled.
func openState(profile string, cfg *config.Config) (*statedb.StateDB, error) {
	if cfg.Storage.Disabled {
		return nil, nil
	}
	path, err := cfg.StatePath(profile)
	if err != nil {
		return nil, err
	}
	db, err := statedb.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
