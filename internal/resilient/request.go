package resilient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Element is a resolved handle to one element on the page
type Element interface {
	Click(ctx context.Context) error
	DoubleClick(ctx context.Context) error
	// ForceClick clicks without waiting for the element to be interactable
	ForceClick(ctx context.Context) error
	// ScriptClick invokes click() on the underlying DOM node
	ScriptClick(ctx context.Context) error
	Fill(ctx context.Context, text string) error
	// ScriptFill sets the value directly and dispatches an input event
	ScriptFill(ctx context.Context, text string) error
	Press(ctx context.Context, key string) error
	Text(ctx context.Context) (string, error)
	Visible(ctx context.Context) (bool, error)
}

// Locator finds the current best candidate element. It is evaluated again on
// every round and must not hold on to a previously resolved Element.
type Locator interface {
	Resolve(ctx context.Context) (Element, error)
	String() string
}

// LocatorFunc adapts a plain function to the Locator interface
type LocatorFunc struct {
	Name string
	Fn   func(ctx context.Context) (Element, error)
}

// Resolve calls the wrapped function
func (l LocatorFunc) Resolve(ctx context.Context) (Element, error) {
	return l.Fn(ctx)
}

func (l LocatorFunc) String() string {
	if l.Name == "" {
		return "locator"
	}
	return l.Name
}

// Kind is the action a Request performs
type Kind int

const (
	Click Kind = iota
	Fill
	ReadText
)

func (k Kind) String() string {
	switch k {
	case Click:
		return "click"
	case Fill:
		return "fill"
	case ReadText:
		return "read-text"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Technique names one way of carrying out (or checking) an action
type Technique string

const (
	TechniqueResolve          Technique = "resolve"
	TechniqueClick            Technique = "click"
	TechniqueDoubleClick      Technique = "double-click"
	TechniqueForceClick       Technique = "force-click"
	TechniqueScriptClick      Technique = "script-click"
	TechniqueFill             Technique = "fill"
	TechniqueScriptFill       Technique = "script-fill"
	TechniqueReadText         Technique = "read-text"
	TechniqueConfirm          Technique = "confirm"
	TechniqueAlreadySatisfied Technique = "already-satisfied"
)

// KeyEnter is the usual commit key for inline text fields
const KeyEnter = "Enter"

// DefaultConfirmWindow bounds indicator polling after one successful technique
const DefaultConfirmWindow = 20 * time.Second

// Request describes one logical interaction
type Request struct {
	// Name labels the request in logs, spans and errors
	Name    string
	Locator Locator
	Kind    Kind
	// Text is the payload for Fill
	Text string
	// Commit is pressed after a fill; empty means no key is pressed
	Commit  string
	Timeout time.Duration
	// Indicators are checked for visibility after the action. Any one visible
	// confirms the action took effect.
	Indicators []Locator
	// ConfirmWindow caps indicator polling per round. Zero means DefaultConfirmWindow.
	ConfirmWindow time.Duration
}

func (r Request) label() string {
	if r.Name != "" {
		return r.Name
	}
	if r.Locator == nil {
		return r.Kind.String()
	}
	return r.Kind.String() + " " + r.Locator.String()
}

// Outcome records one attempt inside a request
type Outcome struct {
	Round     int
	Technique Technique
	Succeeded bool
	Err       error
	At        time.Duration // offset from the start of the request
}

func (o Outcome) String() string {
	if o.Succeeded {
		return fmt.Sprintf("#%d %s ok (+%s)", o.Round, o.Technique, o.At.Round(time.Millisecond))
	}
	return fmt.Sprintf("#%d %s failed (+%s): %v", o.Round, o.Technique, o.At.Round(time.Millisecond), o.Err)
}

// Result is what Execute returns for every request
type Result struct {
	Success  bool
	Attempts []Outcome
	Elapsed  time.Duration
	// Text holds the element text for ReadText requests
	Text string
}

// Last returns the final recorded outcome
func (r *Result) Last() (Outcome, bool) {
	if r == nil || len(r.Attempts) == 0 {
		return Outcome{}, false
	}
	return r.Attempts[len(r.Attempts)-1], true
}

// Techniques lists the techniques tried in order
func (r *Result) Techniques() []Technique {
	out := make([]Technique, len(r.Attempts))
	for i, a := range r.Attempts {
		out[i] = a.Technique
	}
	return out
}

var (
	// ErrDeadlineExceeded is matched by every DeadlineError
	ErrDeadlineExceeded = errors.New("action deadline exceeded")
	// ErrNotConfirmed is recorded when no success indicator became visible
	ErrNotConfirmed = errors.New("no success indicator became visible")
	// ErrBackoffStopped is recorded when the round backoff policy gives up early
	ErrBackoffStopped = errors.New("backoff policy stopped retries")
)

// DeadlineError is returned when a request never reached confirmed success.
// It carries the full attempt log.
type DeadlineError struct {
	Request string
	Result  *Result
}

func (e *DeadlineError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s after %s", e.Request, ErrDeadlineExceeded, e.Result.Elapsed.Round(time.Millisecond))
	if last, ok := e.Result.Last(); ok {
		fmt.Fprintf(&b, " (%d attempts, last: %s)", len(e.Result.Attempts), last)
	}
	return b.String()
}

func (e *DeadlineError) Unwrap() error {
	return ErrDeadlineExceeded
}
