// Package license validates an activation key against the remote license
// service before indexing is allowed to start.
package license

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/asheshgoplani/chatjump/internal/logging"
)

var licLog = logging.ForComponent(logging.CompLicense)

// DefaultMessage is shown when no reason is given.
const DefaultMessage = "License activation required"

// Metadata keys.
const (
	MetaDeviceID   = "device_id"
	MetaLicenseKey = "license_key"
)

// ErrNoLicenseKey means no key is configured or stored.
var ErrNoLicenseKey = errors.New("no license key")

// Status is the outcome of a validation.
type Status int

const (
	// StatusFailed is a network or decoding failure. Treated as not valid,
	// without prompting for activation.
	StatusFailed Status = iota
	// StatusActivationRequired asks the user for a (new) key.
	StatusActivationRequired
	// StatusValidated allows indexing.
	StatusValidated
)

func (s Status) String() string {
	switch s {
	case StatusValidated:
		return "validated"
	case StatusActivationRequired:
		return "activation-required"
	default:
		return "failed"
	}
}

// Result is what a validation concluded.
type Result struct {
	Status  Status
	Message string
}

// Valid reports whether indexing may start.
func (r Result) Valid() bool { return r.Status == StatusValidated }

// MetaStore persists small values (statedb.StateDB satisfies it).
type MetaStore interface {
	GetMeta(key string) (string, error)
	SetMeta(key, value string) error
}

type validateRequest struct {
	LicenseKey string `json:"licenseKey"`
	DeviceID   string `json:"deviceId"`
	Action     string `json:"action"`
}

type validateResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error"`
}

// Validator calls the license service.
type Validator struct {
	APIURL string
	Client *http.Client
	Store  MetaStore

	// Key is the configured key; when empty the stored key is used.
	Key string
}

// NewValidator creates a validator with a client bounded by timeout.
func NewValidator(apiURL, key string, store MetaStore, timeout time.Duration) *Validator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Validator{
		APIURL: apiURL,
		Key:    key,
		Store:  store,
		Client: &http.Client{Timeout: timeout},
	}
}

// LicenseKey returns the configured key or the one stored by Activate.
func (v *Validator) LicenseKey() string {
	if v.Key != "" {
		return v.Key
	}
	if v.Store == nil {
		return ""
	}
	key, err := v.Store.GetMeta(MetaLicenseKey)
	if err != nil {
		return ""
	}
	return key
}

// Validate checks the current key. Without a key it returns
// StatusActivationRequired and ErrNoLicenseKey. Transport and decoding
// errors return StatusFailed and the error.
func (v *Validator) Validate(ctx context.Context) (Result, error) {
	key := v.LicenseKey()
	if key == "" {
		licLog.Info("license_missing")
		return Result{Status: StatusActivationRequired, Message: DefaultMessage}, ErrNoLicenseKey
	}
	return v.validateKey(ctx, key)
}

// Activate validates key and stores it when the service accepts it.
func (v *Validator) Activate(ctx context.Context, key string) (Result, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Result{Status: StatusActivationRequired, Message: DefaultMessage}, ErrNoLicenseKey
	}
	res, err := v.validateKey(ctx, key)
	if err != nil || !res.Valid() {
		return res, err
	}
	if v.Store != nil {
		if err := v.Store.SetMeta(MetaLicenseKey, key); err != nil {
			return res, fmt.Errorf("store license key: %w", err)
		}
	}
	return res, nil
}

func (v *Validator) validateKey(ctx context.Context, key string) (Result, error) {
	deviceID, err := DeviceID(v.Store)
	if err != nil {
		return Result{Status: StatusFailed}, err
	}

	body, err := json.Marshal(validateRequest{LicenseKey: key, DeviceID: deviceID, Action: "validate"})
	if err != nil {
		return Result{Status: StatusFailed}, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.APIURL, bytes.NewReader(body))
	if err != nil {
		return Result{Status: StatusFailed}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := v.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		licLog.Warn("license_request_failed", slog.String("error", err.Error()))
		return Result{Status: StatusFailed}, fmt.Errorf("validate license: %w", err)
	}
	defer resp.Body.Close()

	var out validateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		licLog.Warn("license_decode_failed", slog.Int("status", resp.StatusCode), slog.String("error", err.Error()))
		return Result{Status: StatusFailed}, fmt.Errorf("decode license response: %w", err)
	}

	if out.Valid {
		licLog.Info("license_validated")
		return Result{Status: StatusValidated}, nil
	}
	msg := out.Error
	if msg == "" {
		msg = DefaultMessage
	}
	licLog.Info("license_invalid", slog.String("reason", msg))
	return Result{Status: StatusActivationRequired, Message: msg}, nil
}

// DeviceID returns the stored device id, creating and storing one on first
// use. A nil store yields a fresh id every call.
func DeviceID(store MetaStore) (string, error) {
	if store == nil {
		return newDeviceID(), nil
	}
	id, err := store.GetMeta(MetaDeviceID)
	if err != nil {
		return "", fmt.Errorf("read device id: %w", err)
	}
	if id != "" {
		return id, nil
	}
	id = newDeviceID()
	if err := store.SetMeta(MetaDeviceID, id); err != nil {
		return "", fmt.Errorf("store device id: %w", err)
	}
	return id, nil
}

func newDeviceID() string {
	return "device_" + uuid.NewString()
}
