package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/v0xg/issuebot/internal/resilient"
)

// ErrCovered is returned by ForceClick when another element sits over the
// target's centre and would receive the click instead
var ErrCovered = errors.New("element is covered at its centre")

// Element wraps a resolved rod element with the techniques the executor
// tries against it
type Element struct {
	s    *Session
	el   *rod.Element
	desc string
}

var _ resilient.Element = (*Element)(nil)

// Click scrolls the element into view and clicks once it is interactable
func (e *Element) Click(ctx context.Context) error {
	el := e.el.Context(ctx)
	if err := el.ScrollIntoView(); err != nil {
		return fmt.Errorf("scroll into view: %w", err)
	}
	e.track(el)
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// DoubleClick sends a two-click sequence
func (e *Element) DoubleClick(ctx context.Context) error {
	el := e.el.Context(ctx)
	e.track(el)
	return el.Click(proto.InputMouseButtonLeft, 2)
}

// ForceClick dispatches mouse events at the element's centre without waiting
// for it to be interactable. When something else is on top at that point it
// returns ErrCovered rather than clicking the wrong element.
func (e *Element) ForceClick(ctx context.Context) error {
	el := e.el.Context(ctx)
	_ = el.ScrollIntoView()

	x, y, err := getElementCenter(el)
	if err != nil {
		return err
	}
	e.s.setPointer(x, y)

	hit, err := el.Eval(`(x, y) => {
		const top = document.elementFromPoint(x, y);
		return !!top && (top === this || this.contains(top));
	}`, x, y)
	if err != nil {
		return fmt.Errorf("hit test: %w", err)
	}
	if !hit.Value.Bool() {
		return ErrCovered
	}

	page := e.s.page.Context(ctx)
	for _, typ := range []proto.InputDispatchMouseEventType{
		proto.InputDispatchMouseEventTypeMouseMoved,
		proto.InputDispatchMouseEventTypeMousePressed,
		proto.InputDispatchMouseEventTypeMouseReleased,
	} {
		ev := proto.InputDispatchMouseEvent{Type: typ, X: float64(x), Y: float64(y)}
		if typ != proto.InputDispatchMouseEventTypeMouseMoved {
			ev.Button = proto.InputMouseButtonLeft
			ev.ClickCount = 1
		}
		if err := ev.Call(page); err != nil {
			return fmt.Errorf("dispatch %s: %w", typ, err)
		}
	}
	return nil
}

// ScriptClick calls click() on the DOM node
func (e *Element) ScriptClick(ctx context.Context) error {
	el := e.el.Context(ctx)
	e.track(el)
	_, err := el.Eval(`() => this.click()`)
	return err
}

// Fill replaces the element's text by selecting it and inserting text
func (e *Element) Fill(ctx context.Context, text string) error {
	el := e.el.Context(ctx)
	e.track(el)
	if err := el.Focus(); err != nil {
		return fmt.Errorf("focus: %w", err)
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("select text: %w", err)
	}
	return el.Input(text)
}

// ScriptFill sets the value from script and dispatches input and change
// events so client-side frameworks pick it up
func (e *Element) ScriptFill(ctx context.Context, text string) error {
	el := e.el.Context(ctx)
	e.track(el)
	_, err := el.Eval(`(v) => {
		this.focus();
		if ('value' in this) {
			this.value = v;
		} else {
			this.textContent = v;
		}
		this.dispatchEvent(new Event('input', { bubbles: true }));
		this.dispatchEvent(new Event('change', { bubbles: true }));
	}`, text)
	return err
}

// Press types a named key with the element focused
func (e *Element) Press(ctx context.Context, key string) error {
	k, ok := keys[key]
	if !ok {
		return fmt.Errorf("unsupported key %q", key)
	}
	return e.el.Context(ctx).Type(k)
}

var keys = map[string]input.Key{
	"Enter":     input.Enter,
	"Tab":       input.Tab,
	"Escape":    input.Escape,
	"Backspace": input.Backspace,
	"ArrowDown": input.ArrowDown,
	"ArrowUp":   input.ArrowUp,
}

// Text returns the element's visible text
func (e *Element) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

// Visible reports whether the element is rendered and visible
func (e *Element) Visible(ctx context.Context) (bool, error) {
	return e.el.Context(ctx).Visible()
}

func (e *Element) String() string {
	return e.desc
}

// track remembers the element centre as the last pointer position
func (e *Element) track(el *rod.Element) {
	if x, y, err := getElementCenter(el); err == nil {
		e.s.setPointer(x, y)
	}
}

func getElementCenter(el *rod.Element) (int, int, error) {
	box, err := el.Shape()
	if err != nil {
		return 0, 0, err
	}

	if len(box.Quads) == 0 {
		return 0, 0, fmt.Errorf("element has no shape")
	}

	quad := box.Quads[0]
	x := int((quad[0] + quad[2] + quad[4] + quad[6]) / 4)
	y := int((quad[1] + quad[3] + quad[5] + quad[7]) / 4)

	return x, y, nil
}
