package secrets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const payload = `{
  "USERNAME": " automation.bot@example.com ",
  "PASSWORD": "ATATT3xFfGF0abcdefghijklmnopqrstuvwxyz",
  "UIPASSWORD": "hunter2",
  "DOPPLER_CONFIG": "dev"
}`

func quickRetry() backoff.BackOff {
	return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/configs/config/secrets/download", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "Bearer dp.st.dev.token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	s, err := Fetch(context.Background(), Options{BaseURL: srv.URL, Token: "dp.st.dev.token", NewBackOff: quickRetry})
	require.NoError(t, err)
	assert.Equal(t, "automation.bot@example.com", s.Email)
	assert.Equal(t, "ATATT3xFfGF0abcdefghijklmnopqrstuvwxyz", s.APIToken)
	assert.Equal(t, "hunter2", s.UIPassword)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	_, err := Fetch(context.Background(), Options{BaseURL: srv.URL, Token: "t", NewBackOff: quickRetry})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, `{"messages":["Invalid Auth token"]}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := Fetch(context.Background(), Options{BaseURL: srv.URL, Token: "bad", NewBackOff: quickRetry})
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.Contains(t, se.Body, "Invalid Auth token")
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := Fetch(context.Background(), Options{BaseURL: srv.URL, Token: "t", NewBackOff: quickRetry})
	require.Error(t, err)
	assert.Equal(t, int32(4), calls.Load())
}

func TestFetchNoToken(t *testing.T) {
	_, err := Fetch(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{name: "complete", body: payload},
		{name: "ui password optional", body: `{"USERNAME":"a@b.c","PASSWORD":"p"}`},
		{name: "missing password", body: `{"USERNAME":"a@b.c"}`, wantErr: ErrMissingSecret},
		{name: "blank username", body: `{"USERNAME":"  ","PASSWORD":"p"}`, wantErr: ErrMissingSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}

	_, err := Parse([]byte("<html>"))
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	t.Setenv(EnvEmail, "")
	t.Setenv(EnvAPIToken, "")
	t.Setenv(EnvUIPassword, "")

	s := &Secrets{Email: "a@b.c", APIToken: "tok", UIPassword: "ui"}
	require.NoError(t, s.Export())
	assert.Equal(t, "a@b.c", os.Getenv(EnvEmail))
	assert.Equal(t, "tok", os.Getenv(EnvAPIToken))
	assert.Equal(t, "ui", os.Getenv(EnvUIPassword))
}

func TestMask(t *testing.T) {
	assert.Equal(t, "aut...example.com", MaskEmail("automation.bot@example.com"))
	assert.Equal(t, "ab...example.com", MaskEmail("ab@example.com"))
	assert.Equal(t, "nob...", MaskEmail("nobody"))
	assert.Equal(t, "ATATT3...uvwxyz", MaskToken("ATATT3xFfGF0abcdefghijklmnopqrstuvwxyz"))
	assert.Equal(t, "*****", MaskToken("short"))
}
