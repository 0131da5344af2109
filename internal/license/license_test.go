package license

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu sync.Mutex
	m  map[string]string
}

func newMemStore() *memStore { return &memStore{m: make(map[string]string)} }

func (s *memStore) GetMeta(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[key], nil
}

func (s *memStore) SetMeta(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func licenseServer(t *testing.T, handler func(req validateRequest) (int, string)) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var req validateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		status, body := handler(req)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestValidateNoKey(t *testing.T) {
	v := NewValidator("http://unused.invalid", "", newMemStore(), time.Second)
	res, err := v.Validate(context.Background())
	assert.ErrorIs(t, err, ErrNoLicenseKey)
	assert.Equal(t, StatusActivationRequired, res.Status)
	assert.Equal(t, DefaultMessage, res.Message)
}

func TestValidateValid(t *testing.T) {
	var got validateRequest
	ts := licenseServer(t, func(req validateRequest) (int, string) {
		got = req
		return http.StatusOK, `{"valid":true}`
	})
	store := newMemStore()
	v := NewValidator(ts.URL, "KEY-1", store, time.Second)

	res, err := v.Validate(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Valid())
	assert.Equal(t, "KEY-1", got.LicenseKey)
	assert.Equal(t, "validate", got.Action)
	assert.True(t, strings.HasPrefix(got.DeviceID, "device_"))

	stored, _ := store.GetMeta(MetaDeviceID)
	assert.Equal(t, got.DeviceID, stored)
}

func TestValidateInvalidCarriesReason(t *testing.T) {
	ts := licenseServer(t, func(validateRequest) (int, string) {
		return http.StatusOK, `{"valid":false,"error":"License expired"}`
	})
	res, err := NewValidator(ts.URL, "KEY-1", nil, time.Second).Validate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusActivationRequired, res.Status)
	assert.Equal(t, "License expired", res.Message)
}

func TestValidateInvalidDefaultReason(t *testing.T) {
	ts := licenseServer(t, func(validateRequest) (int, string) {
		return http.StatusForbidden, `{"valid":false}`
	})
	res, err := NewValidator(ts.URL, "KEY-1", nil, time.Second).Validate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultMessage, res.Message)
}

func TestValidateFailsClosed(t *testing.T) {
	ts := licenseServer(t, func(validateRequest) (int, string) {
		return http.StatusBadGateway, `<html>bad gateway</html>`
	})
	res, err := NewValidator(ts.URL, "KEY-1", nil, time.Second).Validate(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.False(t, res.Valid())

	res, err = NewValidator("http://127.0.0.1:1", "KEY-1", nil, time.Second).Validate(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusFailed, res.Status)
}

func TestActivateStoresKey(t *testing.T) {
	ts := licenseServer(t, func(req validateRequest) (int, string) {
		if req.LicenseKey == "GOOD" {
			return http.StatusOK, `{"valid":true}`
		}
		return http.StatusOK, `{"valid":false,"error":"Unknown key"}`
	})
	store := newMemStore()
	v := NewValidator(ts.URL, "", store, time.Second)

	res, err := v.Activate(context.Background(), "BAD")
	require.NoError(t, err)
	assert.False(t, res.Valid())
	assert.Empty(t, v.LicenseKey())

	res, err = v.Activate(context.Background(), "  GOOD ")
	require.NoError(t, err)
	assert.True(t, res.Valid())
	assert.Equal(t, "GOOD", v.LicenseKey())

	res, err = v.Validate(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Valid())
}

func TestActivateEmptyKey(t *testing.T) {
	_, err := NewValidator("http://unused.invalid", "", nil, time.Second).Activate(context.Background(), " ")
	assert.True(t, errors.Is(err, ErrNoLicenseKey))
}

func TestDeviceIDStable(t *testing.T) {
	store := newMemStore()
	a, err := DeviceID(store)
	require.NoError(t, err)
	b, err := DeviceID(store)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "device_"))

	c, _ := DeviceID(nil)
	d, _ := DeviceID(nil)
	assert.NotEqual(t, c, d)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "validated", StatusValidated.String())
	assert.Equal(t, "activation-required", StatusActivationRequired.String())
	assert.Equal(t, "failed", StatusFailed.String())
}
