// Package tracker drives the issue tracker's web UI. Every workflow is a
// sequence of resilient action requests against one browser session.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/v0xg/issuebot/internal/browser"
	"github.com/v0xg/issuebot/internal/resilient"
)

var (
	// ErrSessionExpired is returned when the site redirects to its login page
	ErrSessionExpired = errors.New("session expired: redirected to login")
	// ErrIssueMismatch is returned when the opened page shows another issue
	ErrIssueMismatch = errors.New("page shows a different issue")
)

// Options configures a Tracker
type Options struct {
	BaseURL     string
	ProjectKey  string
	ProjectName string
	// CookieFile is loaded into the browser by Open when set
	CookieFile string

	// StepTimeout and ConfirmWindow apply to every action request
	StepTimeout   time.Duration
	ConfirmWindow time.Duration

	Logger *zap.Logger
	// Progress receives one line per step when set
	Progress io.Writer
}

// Tracker runs workflows against the tracker's web UI
type Tracker struct {
	s    *browser.Session
	exec *resilient.Executor
	opts Options
	log  *zap.Logger
}

// New creates a Tracker driving s through exec
func New(s *browser.Session, exec *resilient.Executor, opts Options) *Tracker {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = resilient.DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Progress == nil {
		opts.Progress = io.Discard
	}
	return &Tracker{s: s, exec: exec, opts: opts, log: opts.Logger}
}

// Open installs the saved session cookies and loads the site root
func (t *Tracker) Open(ctx context.Context) error {
	if t.opts.CookieFile != "" {
		n, err := t.s.LoadCookies(t.opts.CookieFile)
		if err != nil {
			return err
		}
		t.log.Debug("session cookies installed", zap.Int("count", n))
	}
	return t.navigate(ctx, t.opts.BaseURL)
}

// navigate loads u and fails with ErrSessionExpired on a login redirect
func (t *Tracker) navigate(ctx context.Context, u string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.s.Navigate(ctx, u); err != nil {
		return err
	}
	return t.checkSession(ctx)
}

func (t *Tracker) checkSession(ctx context.Context) error {
	current, err := t.s.URL(ctx)
	if err != nil {
		return err
	}
	if isLoginURL(current) {
		t.log.Warn("redirected to login", zap.String("url", current))
		return fmt.Errorf("%w (%s)", ErrSessionExpired, current)
	}
	return nil
}

func isLoginURL(u string) bool {
	return strings.Contains(strings.ToLower(u), "login")
}

func (t *Tracker) issueURL(key string) string {
	return t.opts.BaseURL + "/browse/" + key
}

// do runs one step. Steps stop early only between requests: ctx is checked
// before each one, the executor itself runs to its own deadline.
func (t *Tracker) do(ctx context.Context, req resilient.Request) (*resilient.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Timeout <= 0 {
		req.Timeout = t.opts.StepTimeout
	}
	if req.ConfirmWindow <= 0 {
		req.ConfirmWindow = t.opts.ConfirmWindow
	}

	res, err := t.exec.Execute(ctx, req)
	if err != nil {
		fmt.Fprintf(t.opts.Progress, "  %s ✗ (%v)\n", req.Name, err)
		return res, err
	}
	fmt.Fprintf(t.opts.Progress, "  %s ✓\n", req.Name)
	return res, nil
}

func (t *Tracker) click(ctx context.Context, name string, l resilient.Locator, indicators ...resilient.Locator) error {
	_, err := t.do(ctx, resilient.Request{
		Name:       name,
		Locator:    l,
		Kind:       resilient.Click,
		Indicators: indicators,
	})
	return err
}

func (t *Tracker) fill(ctx context.Context, name string, l resilient.Locator, text, commit string, indicators ...resilient.Locator) error {
	_, err := t.do(ctx, resilient.Request{
		Name:       name,
		Locator:    l,
		Kind:       resilient.Fill,
		Text:       text,
		Commit:     commit,
		Indicators: indicators,
	})
	return err
}

func (t *Tracker) read(ctx context.Context, name string, l resilient.Locator) (string, error) {
	res, err := t.do(ctx, resilient.Request{
		Name:    name,
		Locator: l,
		Kind:    resilient.ReadText,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Text), nil
}

// expectIssue reads the breadcrumb of the open issue view and checks it names key
func (t *Tracker) expectIssue(ctx context.Context, key string) error {
	crumb, err := t.read(ctx, "read breadcrumb", t.s.TestID(tidBreadcrumb).Within(t.s.CSS("span")))
	if err != nil {
		return err
	}
	if !strings.Contains(crumb, key) {
		return fmt.Errorf("%w: want %s, breadcrumb %q", ErrIssueMismatch, key, crumb)
	}
	return nil
}

// xpathLiteral quotes s as an XPath 1.0 string literal
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	return "concat('" + strings.Join(strings.Split(s, "'"), `', "'", '`) + "')"
}

// hrefID returns the last path segment of an issue link, e.g. DEMO-7 for
// https://site/browse/DEMO-7?focused=1
func hrefID(href string) string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil || u.Path == "" {
		return ""
	}
	id := path.Base(u.Path)
	if id == "/" || id == "." {
		return ""
	}
	return id
}
