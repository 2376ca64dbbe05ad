// Package secrets fetches login credentials from Doppler and exposes them to
// the rest of the run through the process environment.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.doppler.com"
	downloadPath   = "/v3/configs/config/secrets/download?format=json"

	fetchMaxElapsed = 30 * time.Second
)

var (
	// ErrNoToken is returned when no service token is configured
	ErrNoToken = errors.New("doppler token is not set")
	// ErrMissingSecret is returned when USERNAME or PASSWORD is absent
	ErrMissingSecret = errors.New("USERNAME or PASSWORD not found in Doppler secrets")
)

// Options configures Fetch
type Options struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Logger     *zap.Logger
	// NewBackOff overrides the retry policy; a fresh policy is used per call
	NewBackOff func() backoff.BackOff
}

// Secrets are the credentials a UI run needs
type Secrets struct {
	Email      string // USERNAME
	APIToken   string // PASSWORD
	UIPassword string // UIPASSWORD, optional
}

// StatusError is a non-200 response from the secrets service
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("doppler returned %d: %s", e.Code, e.Body)
}

func newFetchBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = fetchMaxElapsed
	return bo
}

// Fetch downloads the secrets of the config the token is scoped to. Network
// errors and 5xx/429 responses are retried; other failures are returned at once.
func Fetch(ctx context.Context, opts Options) (*Secrets, error) {
	if opts.Token == "" {
		return nil, ErrNoToken
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.NewBackOff == nil {
		opts.NewBackOff = newFetchBackoff
	}

	url := strings.TrimRight(opts.BaseURL, "/") + downloadPath
	var body []byte
	attempt := 0

	err := backoff.Retry(func() error {
		attempt++
		b, err := download(ctx, opts.HTTPClient, url, opts.Token)
		if err == nil {
			body = b
			return nil
		}

		var se *StatusError
		if errors.As(err, &se) && se.Code < 500 && se.Code != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		opts.Logger.Debug("doppler fetch failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		return err
	}, backoff.WithContext(opts.NewBackOff(), ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch secrets: %w", err)
	}

	s, err := Parse(body)
	if err != nil {
		return nil, err
	}
	opts.Logger.Info("secrets fetched",
		zap.String("email", MaskEmail(s.Email)),
		zap.String("api_token", MaskToken(s.APIToken)))
	return s, nil
}

func download(ctx context.Context, client *http.Client, url, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

// Parse reads the secrets download format: a flat JSON object of name to value
func Parse(data []byte) (*Secrets, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("doppler response is not valid JSON")
	}
	doc := gjson.ParseBytes(data)
	s := &Secrets{
		Email:      strings.TrimSpace(doc.Get("USERNAME").String()),
		APIToken:   strings.TrimSpace(doc.Get("PASSWORD").String()),
		UIPassword: strings.TrimSpace(doc.Get("UIPASSWORD").String()),
	}
	if s.Email == "" || s.APIToken == "" {
		return nil, ErrMissingSecret
	}
	return s, nil
}

// Env variable names Export sets
const (
	EnvEmail      = "EMAIL"
	EnvAPIToken   = "API_TOKEN"
	EnvUIPassword = "UI_PASSWORD"
)

// Export sets EMAIL, API_TOKEN and UI_PASSWORD for the rest of the process
func (s *Secrets) Export() error {
	for k, v := range map[string]string{
		EnvEmail:      s.Email,
		EnvAPIToken:   s.APIToken,
		EnvUIPassword: s.UIPassword,
	} {
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return nil
}

// MaskEmail keeps the first three characters and the domain
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return maskPrefix(email, 3)
	}
	return prefix(email[:at], 3) + "..." + email[at+1:]
}

// MaskToken keeps the first and last six characters. Short tokens are fully
// masked.
func MaskToken(token string) string {
	if len(token) <= 12 {
		return "*****"
	}
	return token[:6] + "..." + token[len(token)-6:]
}

func maskPrefix(s string, n int) string {
	return prefix(s, n) + "..."
}

func prefix(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}
