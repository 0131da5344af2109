package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/asheshgoplani/chatjump/internal/browser"
	"github.com/asheshgoplani/chatjump/internal/config"
	"github.com/asheshgoplani/chatjump/internal/engine"
	"github.com/asheshgoplani/chatjump/internal/license"
	"github.com/asheshgoplani/chatjump/internal/logging"
	"github.com/asheshgoplani/chatjump/internal/statedb"
	"github.com/asheshgoplani/chatjump/internal/web"
)

const (
	serverHeartbeatInterval = 10 * time.Second
	// serverStaleAfter drops registry rows whose process stopped beating.
	serverStaleAfter = 3 * serverHeartbeatInterval
	shutdownTimeout  = 5 * time.Second
)

type serveOptions struct {
	url         string
	debuggerURL string
	listen      string
	token       string
	headless    bool
	noLicense   bool
}

func parseServeFlags(cfg *config.Config, args []string) (serveOptions, error) {
	var opts serveOptions
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.StringVar(&opts.url, "url", cfg.Browser.URL, "Conversation URL to index (default: first open ChatGPT tab)")
	fs.StringVar(&opts.debuggerURL, "debugger-url", cfg.Browser.DebuggerURL, "Attach to a running Chrome (ws://.../devtools/browser/...)")
	fs.StringVar(&opts.listen, "listen", cfg.Web.Listen, "Listen address for the sidebar server")
	fs.StringVar(&opts.token, "token", cfg.Web.Token, "Bearer token for API/WS access")
	fs.BoolVar(&opts.headless, "headless", cfg.Browser.Headless, "Launch Chrome without a window")
	fs.BoolVar(&opts.noLicense, "no-license", false, "Skip license validation")

	fs.Usage = func() {
		fmt.Println("Usage: chatjump serve [options]")
		fmt.Println()
		fmt.Println("Index a live ChatGPT tab and serve the sidebar over HTTP/WebSocket.")
		fmt.Println("Without --debugger-url a new Chrome is launched.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  chatjump serve")
		fmt.Println("  chatjump serve --url https://chatgpt.com/c/abc123")
		fmt.Println("  chatjump -p work serve --listen 127.0.0.1:9000 --token secret")
	}

	if err := parseFlags(fs, args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

// handleServe runs Chrome, the engine and the web server until SIGINT or
// SIGTERM. The engine only starts once the license gate is passed.
func handleServe(profile string, cfg *config.Config, args []string) error {
	opts, err := parseServeFlags(cfg, args)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openState(profile, cfg)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	if db != nil {
		defer db.Close()
	}

	br, err := browser.Connect(ctx, browser.Options{
		DebuggerURL: opts.debuggerURL,
		Bin:         cfg.Browser.Bin,
		Headless:    opts.headless,
	})
	if err != nil {
		return err
	}
	defer br.Close()

	page, err := br.OpenPage(ctx, opts.url)
	if err != nil {
		return err
	}
	readyCtx, cancelReady := context.WithTimeout(ctx, time.Duration(cfg.Browser.ReadyTimeoutSecs)*time.Second)
	err = page.WaitReady(readyCtx)
	cancelReady()
	if err != nil {
		return err
	}

	location := page.Location()
	if !engine.IsChatHost(location) {
		fmt.Fprintf(os.Stderr, "Warning: %s is not a ChatGPT page; questions may not be found\n", location)
		cliLog.Warn("page_not_chat_host", slog.String("location", location))
	}

	var engOpts []engine.Option
	var store license.MetaStore
	if db != nil {
		engOpts = append(engOpts, engine.WithPersister(db))
		store = db
	}
	eng := engine.New(page, engine.FromSettings(cfg.Engine), engOpts...)
	defer eng.Close()

	var srv *web.Server
	var startOnce sync.Once
	var startErr error
	startEngine := func() error {
		startOnce.Do(func() {
			startErr = eng.Start(ctx)
			if startErr == nil {
				srv.SetSource(eng)
			}
		})
		return startErr
	}

	validator := license.NewValidator(cfg.License.APIURL, cfg.License.Key, store, cfg.License.Timeout())
	licenseRequired := !opts.noLicense && cfg.License.LicenseEnabled()

	webCfg := web.Config{
		ListenAddr:    opts.listen,
		Profile:       profile,
		Token:         opts.token,
		RatePerSecond: cfg.Web.RatePerSecond,
		Burst:         cfg.Web.Burst,
	}
	if licenseRequired {
		webCfg.Activate = func(reqCtx context.Context, key string) (license.Result, error) {
			res, err := validator.Activate(reqCtx, key)
			if err != nil || !res.Valid() {
				return res, err
			}
			if err := startEngine(); err != nil {
				return license.Result{Status: license.StatusFailed, Message: err.Error()}, err
			}
			return res, nil
		}
	}
	srv = web.NewServer(webCfg)

	if licenseRequired {
		if err := applyLicense(ctx, validator, srv, startEngine); err != nil {
			return err
		}
	} else if err := startEngine(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	fmt.Printf("Indexing %s\n", location)
	fmt.Printf("Sidebar: %s\n", sidebarURL(srv.Addr(), opts.token))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		eng.Close()
		return srv.Shutdown(shutdownCtx)
	})
	if db != nil {
		g.Go(func() error {
			runRegistry(gctx, db, srv.Addr(), location)
			return nil
		})
	}

	err = g.Wait()
	cliLog.Info("serve_stopped")
	return err
}

// applyLicense validates the stored or configured key. A valid key starts
// the engine; anything else leaves the server gated until a key is
// activated through the sidebar.
func applyLicense(ctx context.Context, v *license.Validator, srv *web.Server, startEngine func() error) error {
	res, err := v.Validate(ctx)
	switch {
	case err == nil && res.Valid():
		if err := startEngine(); err != nil {
			return fmt.Errorf("start engine: %w", err)
		}
		return nil
	case errors.Is(err, license.ErrNoLicenseKey):
		fmt.Println("License activation required: enter your key in the sidebar.")
	case err != nil:
		res = license.Result{Status: license.StatusFailed, Message: err.Error()}
		fmt.Fprintf(os.Stderr, "Warning: license check failed: %v\n", err)
	default:
		fmt.Printf("License not accepted: %s\n", res.Message)
	}
	srv.SetLicense(res)
	return nil
}

// runRegistry keeps this server listed for `chatjump tui` until ctx ends.
func runRegistry(ctx context.Context, db *statedb.StateDB, addr, pageURL string) {
	log := logging.ForComponent(logging.CompStorage)
	if err := db.RegisterServer(addr, pageURL); err != nil {
		log.Warn("server_register_failed", slog.String("error", err.Error()))
		return
	}
	defer func() {
		if err := db.UnregisterServer(); err != nil {
			log.Warn("server_unregister_failed", slog.String("error", err.Error()))
		}
	}()

	ticker := time.NewTicker(serverHeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := db.Heartbeat(); err != nil {
				logging.Aggregate(logging.CompStorage, "server_heartbeat_failed", slog.String("error", err.Error()))
			}
		}
	}
}

func sidebarURL(addr, token string) string {
	u := "http://" + addr + "/"
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	return u
}
