package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Options configures the browser session
type Options struct {
	Headless   bool
	NoSandbox  bool
	SlowMotion time.Duration // Delay inserted before each input action
	Width      int
	Height     int
	ProfileDir string // Chrome/Chromium profile directory for authenticated sessions
	Bin        string // Browser binary; looked up on PATH when empty

	// ResolveWait bounds how long a locator waits for its element to attach
	ResolveWait time.Duration
	// SettleTimeout bounds the network-idle and SPA render waits after navigation
	SettleTimeout time.Duration

	Logger *zap.Logger
}

var (
	// ErrNoBrowser is returned when no Chrome/Chromium binary can be found
	ErrNoBrowser = errors.New("no chrome or chromium binary found")
	// ErrNoPopup is returned by FollowPopup when the action opened no page
	ErrNoPopup = errors.New("no popup opened")
)

// Session owns one browser and the page workflows drive. It is not safe for
// concurrent use: one workflow drives one page at a time.
type Session struct {
	browser *rod.Browser
	page    *rod.Page
	opts    Options
	log     *zap.Logger

	pointer    image.Point
	hasPointer bool
}

// Launch starts a browser and opens a blank page
func Launch(opts Options) (*Session, error) {
	opts = withDefaults(opts)

	path := opts.Bin
	if path == "" {
		found, ok := launcher.LookPath()
		if !ok {
			return nil, ErrNoBrowser
		}
		path = found
	}

	l := launcher.New().Bin(path).Headless(opts.Headless)
	if opts.NoSandbox {
		l = l.NoSandbox(true)
	}
	if opts.ProfileDir != "" {
		l = l.UserDataDir(opts.ProfileDir)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(u)
	if opts.SlowMotion > 0 {
		b = b.SlowMotion(opts.SlowMotion)
	}
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.Width,
		Height:            opts.Height,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	opts.Logger.Debug("browser launched",
		zap.String("bin", path),
		zap.Bool("headless", opts.Headless),
		zap.Duration("slow_motion", opts.SlowMotion))

	return &Session{browser: b, page: page, opts: opts, log: opts.Logger}, nil
}

func withDefaults(opts Options) Options {
	if opts.Width == 0 {
		opts.Width = 1280
	}
	if opts.Height == 0 {
		opts.Height = 720
	}
	if opts.ResolveWait == 0 {
		opts.ResolveWait = 5 * time.Second
	}
	if opts.SettleTimeout == 0 {
		opts.SettleTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return opts
}

// Close cleans up browser resources
func (s *Session) Close() {
	if s.page != nil {
		_ = s.page.Close()
	}
	if s.browser != nil {
		_ = s.browser.Close()
	}
}

// Navigate loads url and waits for the page to settle
func (s *Session) Navigate(ctx context.Context, url string) error {
	page := s.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	s.settle(ctx)
	s.log.Debug("navigated", zap.String("url", url))
	return nil
}

// Reload reloads the current page and waits for it to settle
func (s *Session) Reload(ctx context.Context) error {
	page := s.page.Context(ctx)
	if err := page.Reload(); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load after reload: %w", err)
	}
	s.settle(ctx)
	return nil
}

// URL returns the address of the current page
func (s *Session) URL(ctx context.Context) (string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, nil
}

// FollowPopup runs action and makes the page it opens the active page. When
// no page opens within wait after action returns, the current page stays
// active and ErrNoPopup is returned.
func (s *Session) FollowPopup(ctx context.Context, wait time.Duration, action func() error) error {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var target proto.TargetTargetID
	opener := s.page.TargetID
	opened := s.browser.Context(wctx).EachEvent(func(e *proto.TargetTargetCreated) bool {
		if e.TargetInfo.OpenerID != opener {
			return false
		}
		target = e.TargetInfo.TargetID
		return true
	})

	if err := action(); err != nil {
		return err
	}
	timer := time.AfterFunc(wait, cancel)
	defer timer.Stop()
	opened()
	if target == "" {
		return ErrNoPopup
	}

	// Attached through the session's browser so the page outlives ctx
	popup, err := s.browser.PageFromTarget(target)
	if err != nil {
		return fmt.Errorf("attach popup: %w", err)
	}
	if err := popup.Context(ctx).WaitLoad(); err != nil {
		return fmt.Errorf("wait popup load: %w", err)
	}
	s.page = popup
	s.settle(ctx)
	s.log.Debug("switched to popup", zap.String("target", string(target)))
	return nil
}

// Screenshot captures the viewport
func (s *Session) Screenshot(ctx context.Context) (image.Image, error) {
	quality := 90
	data, err := s.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatPng,
		Quality: &quality,
	})
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	return img, nil
}

// Pointer returns where the last element interaction happened
func (s *Session) Pointer() (image.Point, bool) {
	return s.pointer, s.hasPointer
}

func (s *Session) setPointer(x, y int) {
	s.pointer = image.Pt(x, y)
	s.hasPointer = true
}
