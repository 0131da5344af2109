package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/asheshgoplani/chatjump/internal/config"
	"github.com/asheshgoplani/chatjump/internal/statedb"
	"github.com/asheshgoplani/chatjump/internal/ui"
)

// handleTUI opens the terminal sidebar against a running serve process.
func handleTUI(profile string, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("tui", flag.ContinueOnError)
	addr := fs.String("addr", "", "Server address (default: newest running server, then [ui] addr)")
	token := fs.String("token", cfg.Web.Token, "Bearer token for API/WS access")

	fs.Usage = func() {
		fmt.Println("Usage: chatjump tui [options]")
		fmt.Println()
		fmt.Println("Browse and jump to indexed questions from the terminal.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
		fmt.Println()
		fmt.Println("Keys: / filter, j/k move, enter jump, y copy, r refresh, q quit")
	}

	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("tui needs an interactive terminal")
	}

	target := *addr
	if target == "" {
		target = discoverServer(profile, cfg)
	}
	cliLog.Info("tui_connecting", slog.String("addr", target))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return ui.Run(ctx, ui.Options{
		Addr:         target,
		Token:        *token,
		Theme:        cfg.ResolveTheme(),
		FollowSystem: cfg.UI.Theme == "system",
	})
}

// discoverServer picks the newest live server registered for profile. An
// explicit [ui] addr wins; the listen default is the last resort.
func discoverServer(profile string, cfg *config.Config) string {
	if cfg.UI.Addr != "" && cfg.UI.Addr != cfg.Web.Listen {
		return cfg.UI.Addr
	}
	if db, err := openState(profile, cfg); err == nil && db != nil {
		defer db.Close()
		if servers, err := db.AliveServers(serverStaleAfter); err == nil {
			if addr := newestServerAddr(servers); addr != "" {
				return addr
			}
		}
	}
	return cfg.Web.Listen
}

func newestServerAddr(servers []statedb.ServerRow) string {
	if len(servers) == 0 {
		return ""
	}
	return servers[0].Addr
}
