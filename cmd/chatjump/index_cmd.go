package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/asheshgoplani/chatjump/internal/config"
	"github.com/asheshgoplani/chatjump/internal/engine"
	"github.com/asheshgoplani/chatjump/internal/statedb"
)

var errStorageDisabled = errors.New("storage is disabled ([storage] disabled = true)")

// handleIndex prints the persisted index.
func handleIndex(profile string, cfg *config.Config, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	search := fs.String("search", "", "Only show questions containing this text")

	fs.Usage = func() {
		fmt.Println("Usage: chatjump index [options]")
		fmt.Println()
		fmt.Println("Print the index saved by the last serve run.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}

	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	db, err := openState(profile, cfg)
	if err != nil {
		return err
	}
	if db == nil {
		return errStorageDisabled
	}
	defer db.Close()

	entries, err := db.LoadIndex(context.Background())
	if err != nil {
		return err
	}
	if *search != "" {
		entries = engine.FilterEntries(entries, *search)
	}
	if entries == nil {
		entries = []engine.MessageEntry{}
	}

	if *jsonOutput {
		return printJSON(w, entries)
	}
	printEntries(w, entries, terminalWidth())
	return nil
}

// handleImport replaces the persisted index with a legacy JSON export.
func handleImport(profile string, cfg *config.Config, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Println("Usage: chatjump import <file>")
		fmt.Println()
		fmt.Println("Import an index exported from the browser extension.")
		fmt.Println("The file may hold a bare array, {\"chatjump_index\": [...]} or {\"index\": [...]}.")
	}

	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("import requires exactly one file")
	}

	db, err := openState(profile, cfg)
	if err != nil {
		return err
	}
	if db == nil {
		return errStorageDisabled
	}
	defer db.Close()

	kept, skipped, err := statedb.ImportLegacyJSON(context.Background(), fs.Arg(0), db, cfg.Engine.MaxEntries)
	if err != nil {
		return err
	}
	cliLog.Info("index_imported",
		slog.String("path", fs.Arg(0)),
		slog.Int("kept", kept),
		slog.Int("skipped", skipped))

	fmt.Fprintf(w, "Imported %d question(s)", kept)
	if skipped > 0 {
		fmt.Fprintf(w, ", skipped %d", skipped)
	}
	fmt.Fprintln(w)
	return nil
}
