package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/go-rod/rod"

	"github.com/v0xg/issuebot/internal/resilient"
)

// ErrNoMatch is returned when a locator's index is past the matched elements
var ErrNoMatch = errors.New("no element at index")

// finder is implemented by both *rod.Page and *rod.Element
type finder interface {
	Element(selector string) (*rod.Element, error)
	ElementX(xpath string) (*rod.Element, error)
	ElementR(selector, jsRegex string) (*rod.Element, error)
	Elements(selector string) (rod.Elements, error)
	ElementsX(xpath string) (rod.Elements, error)
}

type queryMode int

const (
	modeCSS queryMode = iota
	modeXPath
	modeText
)

// Locator is a re-evaluated query against the session's current page. It
// implements resilient.Locator.
type Locator struct {
	s      *Session
	mode   queryMode
	query  string
	regex  string
	index  int // 0 first, -1 last, n the n-th match
	parent *Locator
	desc   string
}

var _ resilient.Locator = (*Locator)(nil)

// CSS locates the first element matching a CSS selector
func (s *Session) CSS(selector string) *Locator {
	return &Locator{s: s, mode: modeCSS, query: selector, desc: selector}
}

// XPath locates the first element matching an XPath expression
func (s *Session) XPath(xpath string) *Locator {
	return &Locator{s: s, mode: modeXPath, query: xpath, desc: xpath}
}

// TestID locates an element by its data-testid attribute
func (s *Session) TestID(id string) *Locator {
	return &Locator{s: s, mode: modeCSS, query: fmt.Sprintf(`[data-testid=%q]`, id), desc: "testid=" + id}
}

// Label locates an element by its aria-label
func (s *Session) Label(label string) *Locator {
	return &Locator{s: s, mode: modeCSS, query: fmt.Sprintf(`[aria-label=%q]`, label), desc: "label=" + label}
}

// Text locates the first element matching selector whose text matches the
// JavaScript regular expression pattern
func (s *Session) Text(selector, pattern string) *Locator {
	return &Locator{s: s, mode: modeText, query: selector, regex: pattern, desc: fmt.Sprintf("%s /%s/", selector, pattern)}
}

// ExactText locates an element whose whole text equals text
func (s *Session) ExactText(selector, text string) *Locator {
	return s.Text(selector, "^\\s*"+regexp.QuoteMeta(text)+"\\s*$")
}

// Role locates an element by ARIA role and visible name
func (s *Session) Role(role, name string) *Locator {
	l := s.ExactText(roleSelector(role), name)
	l.desc = fmt.Sprintf("role=%s name=%q", role, name)
	return l
}

func roleSelector(role string) string {
	switch role {
	case "button":
		return `button, [role="button"]`
	case "link":
		return `a[href], [role="link"]`
	case "heading":
		return `h1, h2, h3, h4, h5, h6, [role="heading"]`
	default:
		return fmt.Sprintf(`[role=%q]`, role)
	}
}

// Within scopes child to the element this locator resolves to
func (l *Locator) Within(child *Locator) *Locator {
	c := *child
	c.parent = l
	c.desc = l.String() + " >> " + child.desc
	return &c
}

// Nth picks the n-th match (0-based). CSS and XPath locators only.
func (l *Locator) Nth(n int) *Locator {
	c := *l
	c.index = n
	c.desc = fmt.Sprintf("%s [%d]", l.desc, n)
	return &c
}

// Last picks the last match. CSS and XPath locators only.
func (l *Locator) Last() *Locator {
	c := *l
	c.index = -1
	c.desc = l.desc + " [last]"
	return &c
}

func (l *Locator) String() string {
	return l.desc
}

// Resolve finds the element on the current page, waiting up to the
// session's resolve wait for it to attach
func (l *Locator) Resolve(ctx context.Context) (resilient.Element, error) {
	el, err := l.find(ctx)
	if err != nil {
		return nil, err
	}
	return &Element{s: l.s, el: el, desc: l.String()}, nil
}

func (l *Locator) find(ctx context.Context) (*rod.Element, error) {
	rctx, cancel := context.WithTimeout(ctx, l.s.opts.ResolveWait)
	defer cancel()

	el, err := l.lookup(l.s.page.Context(rctx))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", l, err)
	}
	return el, nil
}

func (l *Locator) lookup(f finder) (*rod.Element, error) {
	if l.parent != nil {
		scope, err := l.parent.lookup(f)
		if err != nil {
			return nil, err
		}
		f = scope
	}

	switch l.mode {
	case modeXPath:
		first, err := f.ElementX(l.query)
		if err != nil || l.index == 0 {
			return first, err
		}
		all, err := f.ElementsX(l.query)
		if err != nil {
			return nil, err
		}
		return pick(all, l.index)
	case modeText:
		return f.ElementR(l.query, l.regex)
	default:
		first, err := f.Element(l.query)
		if err != nil || l.index == 0 {
			return first, err
		}
		all, err := f.Elements(l.query)
		if err != nil {
			return nil, err
		}
		return pick(all, l.index)
	}
}

func pick(all rod.Elements, index int) (*rod.Element, error) {
	if index < 0 {
		index = len(all) + index
	}
	if index < 0 || index >= len(all) {
		return nil, fmt.Errorf("%w %d of %d", ErrNoMatch, index, len(all))
	}
	return all[index], nil
}

// Visible reports whether the locator currently resolves to a visible
// element. It does not wait beyond the session's resolve wait.
func (s *Session) Visible(ctx context.Context, l *Locator) bool {
	el, err := l.find(ctx)
	if err != nil {
		return false
	}
	ok, err := el.Context(ctx).Visible()
	return err == nil && ok
}

// Count returns how many elements match l right now. Only the parent scope
// is waited for; text locators cannot be counted.
func (s *Session) Count(ctx context.Context, l *Locator) (int, error) {
	rctx, cancel := context.WithTimeout(ctx, s.opts.ResolveWait)
	defer cancel()

	var f finder = s.page.Context(rctx)
	if l.parent != nil {
		scope, err := l.parent.lookup(f)
		if err != nil {
			return 0, fmt.Errorf("resolve %s: %w", l.parent, err)
		}
		f = scope
	}

	var (
		all rod.Elements
		err error
	)
	switch l.mode {
	case modeCSS:
		all, err = f.Elements(l.query)
	case modeXPath:
		all, err = f.ElementsX(l.query)
	default:
		return 0, fmt.Errorf("count %s: text locators cannot be counted", l)
	}
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", l, err)
	}
	return len(all), nil
}

// Attribute reads an attribute of the element l resolves to
func (s *Session) Attribute(ctx context.Context, l *Locator, name string) (string, error) {
	el, err := l.find(ctx)
	if err != nil {
		return "", err
	}
	v, err := el.Context(ctx).Attribute(name)
	if err != nil {
		return "", fmt.Errorf("read %s of %s: %w", name, l, err)
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}
