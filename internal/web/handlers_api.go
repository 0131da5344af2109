package web

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/asheshgoplani/chatjump/internal/engine"
	"github.com/asheshgoplani/chatjump/internal/license"
	"github.com/asheshgoplani/chatjump/internal/logging"
)

const maxRequestBody = 64 << 10

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

type gotoRequest struct {
	ID string `json:"id"`
}

type gotoResponse struct {
	OK bool   `json:"ok"`
	ID string `json:"id"`
}

type activateRequest struct {
	Key string `json:"key"`
}

type activateResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// admit applies the method, token and rate checks shared by every API route.
func (s *Server) admit(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return false
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return false
	}
	if !s.limiters.allow(r) {
		logging.Aggregate(logging.CompWeb, "rate_limited", slog.String("client", clientHost(r)))
		writeAPIError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
		return false
	}
	return true
}

// indexSource writes the gate error when indexing has not started.
func (s *Server) indexSource(w http.ResponseWriter) (IndexSource, bool) {
	src, gate := s.state()
	if src != nil {
		return src, true
	}
	if gate.Status == license.StatusActivationRequired {
		msg := gate.Message
		if msg == "" {
			msg = license.DefaultMessage
		}
		writeAPIError(w, http.StatusServiceUnavailable, "ACTIVATION_REQUIRED", msg)
		return nil, false
	}
	writeAPIError(w, http.StatusServiceUnavailable, "NOT_READY", "indexing has not started")
	return nil, false
}

func (s *Server) handleAPIIndex(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, http.MethodGet) {
		return
	}
	src, ok := s.indexSource(w)
	if !ok {
		return
	}
	reply, err := src.IndexReply(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleAPISearch(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, http.MethodGet) {
		return
	}
	src, ok := s.indexSource(w)
	if !ok {
		return
	}
	reply, err := src.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleAPIGoto(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, http.MethodPost) {
		return
	}
	var req gotoRequest
	if err := decodeBody(r, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json payload")
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "id is required")
		return
	}
	src, ok := s.indexSource(w)
	if !ok {
		return
	}
	found, err := src.Goto(r.Context(), req.ID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gotoResponse{OK: found, ID: req.ID})
}

func (s *Server) handleAPIActivate(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, http.MethodPost) {
		return
	}
	if s.cfg.Activate == nil {
		writeAPIError(w, http.StatusNotFound, "NOT_SUPPORTED", "activation is not available")
		return
	}
	var req activateRequest
	if err := decodeBody(r, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json payload")
		return
	}

	res, err := s.activate(r, req.Key)
	if err != nil {
		writeAPIError(w, http.StatusBadGateway, "LICENSE_UNAVAILABLE", "license service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, activateResponse{Status: res.Status.String(), Message: res.Message})
}

// activate runs the configured activation. A missing key is reported as
// activation-required rather than an error.
func (s *Server) activate(r *http.Request, key string) (license.Result, error) {
	res, err := s.cfg.Activate(r.Context(), key)
	if errors.Is(err, license.ErrNoLicenseKey) {
		err = nil
	}
	if err != nil {
		logging.ForComponent(logging.CompWeb).Warn("activation_failed", slog.String("error", err.Error()))
		return res, err
	}
	if !res.Valid() {
		s.SetLicense(res)
	}
	return res, nil
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(v)
}

func writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrClosed) {
		writeAPIError(w, http.StatusServiceUnavailable, "ENGINE_CLOSED", "indexing stopped")
		return
	}
	writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiErrorResponse{
		Error: apiError{
			Code:    code,
			Message: message,
		},
	})
}
