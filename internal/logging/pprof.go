package logging

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"time"
)

// DefaultPprofAddr is used when Config.PprofAddr is empty.
const DefaultPprofAddr = "localhost:6060"

// startPprof serves the profiling endpoints on their own mux so they never
// leak onto the sidebar server. Caller holds globalMu.
func startPprof(addr string) {
	if addr == "" {
		addr = DefaultPprofAddr
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	pprofServer = srv
	log := globalLogger
	go func() {
		log.Info("pprof_listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("pprof_failed", slog.String("error", err.Error()))
		}
	}()
}
