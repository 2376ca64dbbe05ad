package browser

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// ErrNoCookieFile is returned when the saved session cookie file is missing
var ErrNoCookieFile = errors.New("cookie file not found")

// Cookie is one entry of a saved cookie file
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"` // Unix seconds, -1 for session cookies
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"` // Strict, Lax or None
}

// ReadCookies parses a cookie file
func ReadCookies(path string) ([]Cookie, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoCookieFile, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}

	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("parse cookies %s: %w", path, err)
	}
	return cookies, nil
}

// WriteCookies saves cookies to path, readable only by the owner
func WriteCookies(path string, cookies []Cookie) error {
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write cookies: %w", err)
	}
	return nil
}

// LoadCookies clears the browser's cookies and installs the ones saved at path
func (s *Session) LoadCookies(path string) (int, error) {
	cookies, err := ReadCookies(path)
	if err != nil {
		return 0, err
	}

	if err := s.browser.SetCookies(nil); err != nil {
		s.log.Warn("clearing cookies failed, continuing", zap.Error(err))
	}

	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, c.param())
	}
	if err := s.browser.SetCookies(params); err != nil {
		return 0, fmt.Errorf("set cookies: %w", err)
	}

	s.log.Debug("cookies loaded", zap.String("path", path), zap.Int("count", len(params)))
	return len(params), nil
}

// SaveCookies writes every cookie the browser holds to path
func (s *Session) SaveCookies(path string) (int, error) {
	raw, err := s.browser.GetCookies()
	if err != nil {
		return 0, fmt.Errorf("get cookies: %w", err)
	}

	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, fromNetworkCookie(c))
	}
	if err := WriteCookies(path, cookies); err != nil {
		return 0, err
	}
	return len(cookies), nil
}

func (c Cookie) param() *proto.NetworkCookieParam {
	p := &proto.NetworkCookieParam{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
		SameSite: sameSite(c.SameSite),
	}
	if c.Expires > 0 {
		p.Expires = proto.TimeSinceEpoch(c.Expires)
	}
	return p
}

func fromNetworkCookie(c *proto.NetworkCookie) Cookie {
	expires := float64(c.Expires)
	if c.Session {
		expires = -1
	}
	return Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  expires,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
		SameSite: string(c.SameSite),
	}
}

func sameSite(v string) proto.NetworkCookieSameSite {
	switch strings.ToLower(v) {
	case "strict":
		return proto.NetworkCookieSameSiteStrict
	case "lax":
		return proto.NetworkCookieSameSiteLax
	case "none":
		return proto.NetworkCookieSameSiteNone
	default:
		return ""
	}
}
