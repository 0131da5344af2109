package web

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/asheshgoplani/chatjump/internal/engine"
	"github.com/asheshgoplani/chatjump/internal/license"
	"github.com/asheshgoplani/chatjump/internal/logging"
)

var (
	indexEventsPollInterval      = 2 * time.Second
	indexEventsHeartbeatInterval = 15 * time.Second
)

type gateEvent struct {
	Message string `json:"message,omitempty"`
}

func (s *Server) handleIndexEvents(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, http.MethodGet) {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "stream unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	changes := s.subscribe()
	defer s.unsubscribe(changes)

	pollTicker := time.NewTicker(indexEventsPollInterval)
	defer pollTicker.Stop()

	heartbeatTicker := time.NewTicker(indexEventsHeartbeatInterval)
	defer heartbeatTicker.Stop()

	ctx := r.Context()
	lastFingerprint := ""
	emitIfChanged := func() error {
		src, gate := s.state()
		if src == nil {
			if lastFingerprint == "" && gate.Status == license.StatusActivationRequired {
				lastFingerprint = "gate"
				return writeSSEEvent(w, flusher, eventActivationRequired, gateEvent{Message: gate.Message})
			}
			return nil
		}

		reply, err := src.IndexReply(ctx)
		if err != nil {
			logging.ForComponent(logging.CompWeb).Debug("index_stream_refresh_failed",
				slog.String("error", err.Error()))
			return nil
		}

		next := indexFingerprint(reply)
		if next == lastFingerprint {
			return nil
		}
		if err := writeSSEEvent(w, flusher, eventIndex, reply); err != nil {
			return err
		}
		lastFingerprint = next
		return nil
	}

	if err := emitIfChanged(); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeatTicker.C:
			if err := writeSSEComment(w, flusher, "keepalive"); err != nil {
				return
			}
		case kind, ok := <-changes:
			if !ok {
				return
			}
			if kind == eventValidated {
				if err := writeSSEEvent(w, flusher, eventValidated, struct{}{}); err != nil {
					return
				}
			}
			if kind == eventActivationRequired {
				// Re-announce the gate on the next check.
				lastFingerprint = ""
			}
			if err := emitIfChanged(); err != nil {
				return
			}
		case <-pollTicker.C:
			if err := emitIfChanged(); err != nil {
				return
			}
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func writeSSEComment(w http.ResponseWriter, flusher http.Flusher, comment string) error {
	if _, err := fmt.Fprintf(w, ": %s\n\n", comment); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func indexFingerprint(reply engine.IndexReply) string {
	raw, err := json.Marshal(reply)
	if err != nil {
		return "marshal-error"
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
