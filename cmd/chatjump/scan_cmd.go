package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asheshgoplani/chatjump/internal/config"
	"github.com/asheshgoplani/chatjump/internal/engine"
	"github.com/asheshgoplani/chatjump/internal/snapshot"
)

func handleScan(cfg *config.Config, args []string, w io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runScan(ctx, cfg, args, w)
}

// runScan indexes an HTML snapshot. With --watch it prints the index again
// after every change until ctx is cancelled.
func runScan(ctx context.Context, cfg *config.Config, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	watch := fs.Bool("watch", false, "Keep indexing as the file changes")
	policy := fs.String("policy", "", "Question policy (minimal-length, interrogative-pattern)")

	fs.Usage = func() {
		fmt.Println("Usage: chatjump scan <file> [options]")
		fmt.Println()
		fmt.Println("Index the user questions in a saved conversation page.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  chatjump scan conversation.html")
		fmt.Println("  chatjump scan conversation.html --json")
		fmt.Println("  chatjump scan conversation.html --watch --policy interrogative-pattern")
	}

	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("scan requires exactly one file")
	}

	engCfg := engine.FromSettings(cfg.Engine)
	switch *policy {
	case "":
	case engine.PolicyMinimalLength, engine.PolicyInterrogativePattern:
		engCfg.QuestionPolicy = *policy
	default:
		return fmt.Errorf("unknown policy %q", *policy)
	}
	// A snapshot is complete when opened; late sweeps only matter for live pages.
	engCfg.ResweepDelays = []time.Duration{}

	page, err := snapshot.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer page.Close()

	if !engine.IsChatHost(page.Location()) {
		cliLog.Debug("snapshot_not_chat_host", slog.String("location", page.Location()))
	}

	eng := engine.New(page, engCfg)
	defer eng.Close()
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	if err := printReply(ctx, eng, w, *jsonOutput); err != nil {
		return err
	}
	if !*watch {
		return nil
	}

	if err := page.Watch(ctx); err != nil {
		return err
	}
	if !*jsonOutput {
		fmt.Fprintf(w, "\nWatching %s (Ctrl+C to stop)\n", page.Path())
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-eng.Done():
			return nil
		case <-eng.Changes():
			if !*jsonOutput {
				fmt.Fprintln(w)
			}
			if err := printReply(ctx, eng, w, *jsonOutput); err != nil {
				return err
			}
		}
	}
}

func printReply(ctx context.Context, eng *engine.Engine, w io.Writer, jsonOutput bool) error {
	reply, err := eng.IndexReply(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(w, reply)
	}
	fmt.Fprintf(w, "Conversation: %s\n", reply.ConversationID)
	printEntries(w, reply.Index, terminalWidth())
	return nil
}
