package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/asheshgoplani/chatjump/internal/config"
	"github.com/asheshgoplani/chatjump/internal/logging"
	"github.com/asheshgoplani/chatjump/internal/ui"
)

// Version is set at build time with -ldflags.
var Version = "0.3.0"

var cliLog = logging.ForComponent(logging.CompCLI)

func main() {
	ui.InitColorProfile()

	explicitProfile, args := extractProfileFlag(os.Args[1:])
	profile := config.EffectiveProfile(explicitProfile)
	if len(args) == 0 {
		printHelp()
		return
	}

	cmd := args[0]
	switch cmd {
	case "version", "--version", "-v":
		fmt.Printf("chatjump v%s\n", Version)
		return
	case "help", "--help", "-h":
		printHelp()
		return
	}

	cfg, cfgErr := config.Load()
	if cfgErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", cfgErr)
	}

	stopLogging := initLogging(cfg, cmd)
	defer stopLogging()

	var err error
	switch cmd {
	case "serve":
		err = handleServe(profile, cfg, args[1:])
	case "scan":
		err = handleScan(cfg, args[1:], os.Stdout)
	case "index":
		err = handleIndex(profile, cfg, args[1:], os.Stdout)
	case "import":
		err = handleImport(profile, cfg, args[1:], os.Stdout)
	case "tui":
		err = handleTUI(profile, cfg, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", cmd)
		printHelp()
		stopLogging()
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		cliLog.Error("command_failed", slog.String("command", cmd), slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stopLogging()
		os.Exit(1)
	}
}

// initLogging routes logs to the base directory. Only serve and debug mode
// write a file; otherwise records are discarded so the TUI stays clean.
func initLogging(cfg *config.Config, cmd string) func() {
	baseDir, err := config.BaseDir()
	if err != nil {
		logging.Init(logging.Config{})
		return logging.Shutdown
	}

	debugMode := config.DebugEnabled()
	level := cfg.Logs.Level
	if debugMode {
		level = "debug"
	}

	logCfg := logging.Config{
		Debug:        debugMode,
		Level:        level,
		Format:       cfg.Logs.Format,
		MaxSizeMB:    cfg.Logs.MaxSizeMB,
		MaxBackups:   cfg.Logs.MaxBackups,
		MaxAgeDays:   cfg.Logs.MaxAgeDays,
		Compress:     cfg.Logs.Compress,
		PprofEnabled: cfg.Logs.Pprof,
		PprofAddr:    cfg.Logs.PprofAddr,
	}
	if debugMode || cmd == "serve" {
		if err := os.MkdirAll(baseDir, 0o700); err == nil {
			logCfg.LogDir = baseDir
		}
	}
	logging.Init(logCfg)
	logging.RedirectStdLog(logging.CompBrowser)

	if debugMode {
		cliLog.Info("process_started",
			slog.Int("pid", os.Getpid()),
			slog.String("command", cmd),
			slog.String("version", Version))
	}

	// SIGUSR1 dumps the most recent records for post-mortem debugging.
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	go func() {
		for range usr1 {
			dumpPath := filepath.Join(baseDir, fmt.Sprintf("crash-dump-%d.jsonl", time.Now().Unix()))
			if err := logging.DumpRecent(dumpPath); err != nil {
				cliLog.Error("crash_dump_failed", slog.String("error", err.Error()))
			} else {
				cliLog.Info("crash_dump_written", slog.String("path", dumpPath))
			}
		}
	}()

	return func() {
		signal.Stop(usr1)
		logging.Shutdown()
	}
}

// extractProfileFlag extracts -p or --profile from args, returning the profile and remaining args
func extractProfileFlag(args []string) (string, []string) {
	var profile string
	var remaining []string

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-p=") {
			profile = strings.TrimPrefix(arg, "-p=")
			continue
		}
		if strings.HasPrefix(arg, "--profile=") {
			profile = strings.TrimPrefix(arg, "--profile=")
			continue
		}

		if arg == "-p" || arg == "--profile" {
			if i+1 < len(args) {
				profile = args[i+1]
				i++
				continue
			}
		}

		remaining = append(remaining, arg)
	}

	return profile, remaining
}

func printHelp() {
	fmt.Printf("chatjump v%s\n", Version)
	fmt.Println("Question index and jump navigation for ChatGPT conversations")
	fmt.Println()
	fmt.Println("Usage: chatjump [-p profile] <command> [options]")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  -p, --profile <name>   Use specific profile (default: 'default')")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve            Index a live ChatGPT tab and serve the sidebar")
	fmt.Println("  scan <file>      Index a saved HTML snapshot")
	fmt.Println("  index            Print the persisted index")
	fmt.Println("  import <file>    Import a legacy JSON index export")
	fmt.Println("  tui              Terminal sidebar for a running server")
	fmt.Println("  version          Show version")
	fmt.Println("  help             Show this help")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  CHATJUMP_HOME    Base directory (default: ~/.chatjump)")
	fmt.Println("  CHATJUMP_PROFILE Profile used when -p is not given")
	fmt.Println("  CHATJUMP_DEBUG   Write debug logs to $CHATJUMP_HOME/debug.log")
	fmt.Println("  CHATJUMP_COLOR   Force color profile (truecolor, 256, 16, none)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  chatjump serve --debugger-url ws://127.0.0.1:9222/devtools/browser/...")
	fmt.Println("  chatjump scan conversation.html --watch")
	fmt.Println("  chatjump index --search docker")
	fmt.Println("  chatjump -p work tui")
}
