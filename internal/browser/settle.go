package browser

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// settle waits for pending requests and, on single page apps, for the first
// interactive elements to render. Both waits are bounded and best-effort.
func (s *Session) settle(ctx context.Context) {
	page := s.page.Context(ctx)

	// Persistent connections (websockets, polling) never go idle, so bound it
	timed := page.Timeout(s.opts.SettleTimeout)
	timed.WaitRequestIdle(500*time.Millisecond, nil, nil, nil)()
	timed.CancelTimeout()

	if s.detectSPA(ctx) {
		s.waitForInteractiveElements(ctx, s.opts.SettleTimeout)
	}
}

// waitForInteractiveElements polls until interactive elements appear or timeout
func (s *Session) waitForInteractiveElements(ctx context.Context, timeout time.Duration) {
	page := s.page.Context(ctx)
	deadline := time.Now().Add(timeout)
	checkInterval := 200 * time.Millisecond

	for time.Now().Before(deadline) {
		res, err := page.Eval(`() => {
			const candidates = document.querySelectorAll(
				'button, [role="button"], input:not([type="hidden"]), textarea, a[href]');
			let visible = 0;
			candidates.forEach(el => { if (el.offsetParent) visible++; });
			return visible;
		}`)
		if err != nil {
			s.log.Debug("interactive element probe failed", zap.Error(err))
			return
		}

		if res.Value.Int() > 0 {
			// Found elements, wait a tiny bit more for any final renders
			time.Sleep(300 * time.Millisecond)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(checkInterval):
		}
	}
}

// detectSPA checks for common client-side framework markers
func (s *Session) detectSPA(ctx context.Context) bool {
	res, err := s.page.Context(ctx).Eval(`() => {
		if (window.__REACT_DEVTOOLS_GLOBAL_HOOK__ || document.querySelector('[data-reactroot]') || document.querySelector('#__next')) return true;
		if (window.__VUE__ || document.querySelector('[data-v-app]')) return true;
		if (window.ng || document.querySelector('[ng-version]')) return true;
		if (document.querySelector('[data-testid]')) return true;
		return false;
	}`)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}
