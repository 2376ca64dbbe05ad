package resilient

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	errDetached = errors.New("element detached")
	errCovered  = errors.New("element covered by overlay")
)

// fakeClock only moves when something sleeps on it
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 12, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) {
	if d > 0 {
		c.now = c.now.Add(d)
	}
}

// fakeElement scripts the result of every technique
type fakeElement struct {
	clock *fakeClock
	// cost is the fake time each call takes
	cost time.Duration
	errs map[Technique]error
	// blocked techniques wait for their context to end, the way a driver
	// waits on an element that stays covered
	blocked map[Technique]bool
	text    string

	calls   []Technique
	pressed []string
	filled  []string
	// onSuccess runs after any technique succeeds
	onSuccess func()
}

func (e *fakeElement) do(ctx context.Context, t Technique) error {
	e.calls = append(e.calls, t)
	if e.blocked[t] {
		<-ctx.Done()
		return fmt.Errorf("%w: %w", errCovered, ctx.Err())
	}
	if e.clock != nil {
		e.clock.Sleep(context.Background(), e.cost)
	}
	err := e.errs[t]
	if err == nil && e.onSuccess != nil {
		e.onSuccess()
	}
	return err
}

func (e *fakeElement) Click(ctx context.Context) error       { return e.do(ctx, TechniqueClick) }
func (e *fakeElement) DoubleClick(ctx context.Context) error { return e.do(ctx, TechniqueDoubleClick) }
func (e *fakeElement) ForceClick(ctx context.Context) error  { return e.do(ctx, TechniqueForceClick) }
func (e *fakeElement) ScriptClick(ctx context.Context) error { return e.do(ctx, TechniqueScriptClick) }

func (e *fakeElement) Fill(ctx context.Context, text string) error {
	e.filled = append(e.filled, text)
	return e.do(ctx, TechniqueFill)
}

func (e *fakeElement) ScriptFill(ctx context.Context, text string) error {
	e.filled = append(e.filled, text)
	return e.do(ctx, TechniqueScriptFill)
}

func (e *fakeElement) Press(_ context.Context, key string) error {
	e.pressed = append(e.pressed, key)
	return e.errs["press"]
}

func (e *fakeElement) Text(ctx context.Context) (string, error) {
	if err := e.do(ctx, TechniqueReadText); err != nil {
		return "", err
	}
	return e.text, nil
}

func (e *fakeElement) Visible(context.Context) (bool, error) { return true, nil }

// fakeLocator resolves to el once the clock reaches attachAt. Like a real
// driver it waits up to wait for the element before giving up.
type fakeLocator struct {
	name     string
	clock    *fakeClock
	el       Element
	attachAt time.Time
	wait     time.Duration
	never    bool

	resolves int
}

func (l *fakeLocator) Resolve(ctx context.Context) (Element, error) {
	l.resolves++
	if l.never {
		l.clock.Sleep(ctx, l.wait)
		return nil, errDetached
	}
	if l.clock.Now().Before(l.attachAt) {
		gap := l.attachAt.Sub(l.clock.Now())
		if gap > l.wait {
			l.clock.Sleep(ctx, l.wait)
			return nil, errDetached
		}
		l.clock.Sleep(ctx, gap)
	}
	return l.el, nil
}

func (l *fakeLocator) String() string { return l.name }

// indicator becomes visible at a point in fake time
type indicator struct {
	clock     *fakeClock
	visibleAt *time.Time
	checks    int
}

func (i *indicator) Resolve(ctx context.Context) (Element, error) {
	i.checks++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if i.visibleAt == nil || i.clock.Now().Before(*i.visibleAt) {
		return nil, errors.New("indicator not attached")
	}
	return &fakeElement{}, nil
}

func (i *indicator) String() string { return "indicator" }

func (i *indicator) showAt(t time.Time) { i.visibleAt = &t }

// absentIndicator never attaches. Like a real driver it keeps looking until
// its context ends.
type absentIndicator struct {
	checks int
}

func (a *absentIndicator) Resolve(ctx context.Context) (Element, error) {
	a.checks++
	<-ctx.Done()
	return nil, ctx.Err()
}

func (a *absentIndicator) String() string { return "absent indicator" }
