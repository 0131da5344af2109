// Package clipboard copies question text to the system clipboard.
package clipboard

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/asheshgoplani/chatjump/internal/platform"
)

// ErrEmpty is returned when there is nothing to copy.
var ErrEmpty = errors.New("no content to copy")

// Result describes a successful copy.
type Result struct {
	Method string // pbcopy, xclip, osc52, ...
	Bytes  int
}

type tool struct {
	name string
	args []string
}

// Overridable for tests.
var (
	lookPath = exec.LookPath
	runTool  = func(t tool, text string) error {
		cmd := exec.Command(t.name, t.args...)
		cmd.Stdin = strings.NewReader(text)
		return cmd.Run()
	}
	openTTY = func() (io.WriteCloser, error) {
		return os.OpenFile("/dev/tty", os.O_WRONLY, 0)
	}
)

// Copy tries the native clipboard tool first, then an OSC 52 escape
// sequence when allowOSC52 is set.
func Copy(text string, allowOSC52 bool) (*Result, error) {
	if text == "" {
		return nil, ErrEmpty
	}

	var nativeErr error
	for _, t := range nativeTools(platform.Detect(), os.Getenv("WAYLAND_DISPLAY") != "") {
		path, err := lookPath(t.name)
		if err != nil {
			continue
		}
		t.name = path
		if nativeErr = runTool(t, text); nativeErr == nil {
			return &Result{Method: baseName(path), Bytes: len(text)}, nil
		}
	}

	if allowOSC52 {
		if err := writeOSC52(text); err != nil {
			return nil, fmt.Errorf("osc52 clipboard: %w", err)
		}
		return &Result{Method: "osc52", Bytes: len(text)}, nil
	}

	if nativeErr != nil {
		return nil, fmt.Errorf("clipboard: %w", nativeErr)
	}
	return nil, errors.New("no clipboard method available (install pbcopy, xclip, xsel or wl-copy)")
}

// nativeTools lists candidate commands in preference order.
func nativeTools(p platform.Platform, wayland bool) []tool {
	switch p {
	case platform.PlatformMacOS:
		return []tool{{name: "pbcopy"}}
	case platform.PlatformWSL1, platform.PlatformWSL2, platform.PlatformWindows:
		return []tool{{name: "clip.exe"}}
	case platform.PlatformLinux:
		var tools []tool
		if wayland {
			tools = append(tools, tool{name: "wl-copy"})
		}
		return append(tools,
			tool{name: "xclip", args: []string{"-selection", "clipboard"}},
			tool{name: "xsel", args: []string{"--clipboard", "--input"}},
		)
	}
	return nil
}

func writeOSC52(text string) error {
	tty, err := openTTY()
	if err != nil {
		return fmt.Errorf("open tty: %w", err)
	}
	defer tty.Close()
	_, err = io.WriteString(tty, osc52(text, os.Getenv("TMUX") != ""))
	return err
}

// osc52 builds the escape sequence, wrapped in a DCS passthrough inside tmux.
func osc52(text string, inTmux bool) string {
	seq := "\x1b]52;c;" + base64.StdEncoding.EncodeToString([]byte(text)) + "\x07"
	if inTmux {
		return "\x1bPtmux;\x1b" + seq + "\x1b\\"
	}
	return seq
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
