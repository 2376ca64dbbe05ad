package resilient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/v0xg/issuebot/internal/telemetry"
)

const (
	instrumentationName = "github.com/v0xg/issuebot/internal/resilient"

	// DefaultTimeout applies to requests that leave Timeout at zero
	DefaultTimeout = 30 * time.Second
	// DefaultGrace is how far past its budget a request may run while the
	// last in-flight element call returns
	DefaultGrace = time.Second
	// DefaultBackoff is the pause between rounds
	DefaultBackoff = 600 * time.Millisecond
	// DefaultPollInterval is how often indicators are sampled
	DefaultPollInterval = 500 * time.Millisecond
	// DefaultTechniqueTimeout bounds a single technique so a blocked one
	// leaves time for the next rung of the ladder
	DefaultTechniqueTimeout = 2 * time.Second

	// minIndicatorWait is the least time one indicator gets per sample
	minIndicatorWait = 100 * time.Millisecond
)

// ErrInvalidRequest is returned for requests that cannot be attempted at all
var ErrInvalidRequest = errors.New("invalid action request")

// Options configures an Executor
type Options struct {
	Logger       *zap.Logger
	Clock        Clock
	Grace        time.Duration
	PollInterval time.Duration

	// TechniqueTimeout caps each technique call, clamped to the time left
	TechniqueTimeout time.Duration
	// NewBackOff returns the pause policy between rounds. BackOff values are
	// stateful, so a fresh one is requested per Execute call.
	NewBackOff func() backoff.BackOff
	// OnAttempt is called after every recorded outcome
	OnAttempt func(Request, Outcome)
}

// Executor runs Requests against a flaky, asynchronously rendering page
type Executor struct {
	logger     *zap.Logger
	clock      Clock
	grace      time.Duration
	poll       time.Duration
	technique  time.Duration
	newBackOff func() backoff.BackOff
	onAttempt  func(Request, Outcome)

	tracer   trace.Tracer
	attempts metric.Int64Counter
}

// New creates an Executor, filling unset options with defaults
func New(opts Options) *Executor {
	e := &Executor{
		logger:     opts.Logger,
		clock:      opts.Clock,
		grace:      opts.Grace,
		poll:       opts.PollInterval,
		technique:  opts.TechniqueTimeout,
		newBackOff: opts.NewBackOff,
		onAttempt:  opts.OnAttempt,
		tracer:     telemetry.Tracer(instrumentationName),
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.clock == nil {
		e.clock = realClock{}
	}
	if e.grace <= 0 {
		e.grace = DefaultGrace
	}
	if e.poll <= 0 {
		e.poll = DefaultPollInterval
	}
	if e.technique <= 0 {
		e.technique = DefaultTechniqueTimeout
	}
	if e.newBackOff == nil {
		e.newBackOff = func() backoff.BackOff {
			return backoff.NewConstantBackOff(DefaultBackoff)
		}
	}

	counter, err := telemetry.Meter(instrumentationName).Int64Counter(
		"issuebot.action.attempts",
		metric.WithDescription("Action attempts by technique and result"),
	)
	if err != nil {
		e.logger.Warn("attempt counter unavailable", zap.Error(err))
	}
	e.attempts = counter
	return e
}

// Execute attempts req until it is confirmed or its timeout elapses.
//
// Resolution and technique failures are recorded in the result and never
// returned. The only error for a well-formed request is a *DeadlineError.
// The request's own deadline is its only cancellation: ctx carries trace and
// log context but its cancellation is ignored.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	if req.Locator == nil {
		return &Result{}, fmt.Errorf("%w: %s has no locator", ErrInvalidRequest, req.label())
	}
	if techniquesFor(req.Kind) == nil {
		return &Result{}, fmt.Errorf("%w: unknown kind %s", ErrInvalidRequest, req.Kind)
	}
	if req.Timeout <= 0 {
		req.Timeout = DefaultTimeout
	}

	ctx, span := e.tracer.Start(context.WithoutCancel(ctx), "action.execute",
		trace.WithAttributes(
			attribute.String("action.name", req.label()),
			attribute.String("action.kind", req.Kind.String()),
			attribute.String("action.locator", req.Locator.String()),
			attribute.Int64("action.timeout_ms", req.Timeout.Milliseconds()),
		))
	defer span.End()

	opCtx, cancel := context.WithTimeout(ctx, req.Timeout+e.grace)
	defer cancel()

	start := e.clock.Now()
	r := &run{
		e:        e,
		req:      req,
		ctx:      opCtx,
		start:    start,
		deadline: start.Add(req.Timeout),
		log:      e.logger.With(zap.String("action", req.label())),
		result:   &Result{},
	}

	bo := e.newBackOff()
	bo.Reset()

	for round := 1; r.remaining() > 0; round++ {
		if r.alreadySatisfied(round) {
			return r.succeed(span)
		}

		el, err := req.Locator.Resolve(opCtx)
		if err != nil {
			r.record(round, TechniqueResolve, err)
			if !r.pause(bo) {
				break
			}
			continue
		}

		if !r.act(round, el) {
			if !r.pause(bo) {
				break
			}
			continue
		}

		if len(req.Indicators) == 0 || r.confirm() {
			return r.succeed(span)
		}
		r.record(round, TechniqueConfirm, ErrNotConfirmed)
	}

	return r.fail(span)
}

// run is the state of one Execute call
type run struct {
	e        *Executor
	req      Request
	ctx      context.Context
	start    time.Time
	deadline time.Time
	log      *zap.Logger
	result   *Result
}

func (r *run) remaining() time.Duration {
	return r.deadline.Sub(r.e.clock.Now())
}

func (r *run) record(round int, t Technique, err error) {
	o := Outcome{
		Round:     round,
		Technique: t,
		Succeeded: err == nil,
		Err:       err,
		At:        r.e.clock.Now().Sub(r.start),
	}
	r.result.Attempts = append(r.result.Attempts, o)

	if o.Succeeded {
		r.log.Debug("attempt succeeded", zap.Int("round", round), zap.String("technique", string(t)))
	} else {
		r.log.Debug("attempt failed", zap.Int("round", round), zap.String("technique", string(t)), zap.Error(err))
	}
	trace.SpanFromContext(r.ctx).AddEvent("attempt", trace.WithAttributes(
		attribute.Int("round", round),
		attribute.String("technique", string(t)),
		attribute.Bool("succeeded", o.Succeeded),
	))
	if r.e.attempts != nil {
		r.e.attempts.Add(r.ctx, 1, metric.WithAttributes(
			attribute.String("technique", string(t)),
			attribute.Bool("succeeded", o.Succeeded),
		))
	}
	if r.e.onAttempt != nil {
		r.e.onAttempt(r.req, o)
	}
}

// pause waits out the next backoff interval, never past the deadline.
// It reports false when the policy refuses further rounds.
func (r *run) pause(bo backoff.BackOff) bool {
	d := bo.NextBackOff()
	if d == backoff.Stop {
		r.log.Debug("retries stopped by backoff policy", zap.Error(ErrBackoffStopped))
		return false
	}
	if rem := r.remaining(); d > rem {
		d = rem
	}
	r.e.clock.Sleep(r.ctx, d)
	return true
}

// act runs the technique ladder for the request kind against el, stopping at
// the first technique that succeeds.
func (r *run) act(round int, el Element) bool {
	for _, t := range techniquesFor(r.req.Kind) {
		if r.remaining() <= 0 {
			return false
		}
		err := r.apply(t, el)
		r.record(round, t, err)
		if err == nil {
			return true
		}
	}
	return false
}

func techniquesFor(k Kind) []Technique {
	switch k {
	case Click:
		return []Technique{TechniqueClick, TechniqueDoubleClick, TechniqueForceClick, TechniqueScriptClick}
	case Fill:
		return []Technique{TechniqueFill, TechniqueScriptFill}
	case ReadText:
		return []Technique{TechniqueReadText}
	default:
		return nil
	}
}

// apply runs one technique under its own deadline. Drivers wait for an
// element to become interactable until their context ends, so without it a
// covered element would hold the first technique for the whole request.
func (r *run) apply(t Technique, el Element) error {
	limit := r.e.technique
	if rem := r.remaining(); rem < limit {
		limit = rem
	}
	ctx, cancel := context.WithTimeout(r.ctx, limit)
	defer cancel()

	switch t {
	case TechniqueClick:
		return el.Click(ctx)
	case TechniqueDoubleClick:
		return el.DoubleClick(ctx)
	case TechniqueForceClick:
		return el.ForceClick(ctx)
	case TechniqueScriptClick:
		return el.ScriptClick(ctx)
	case TechniqueFill:
		if err := el.Fill(ctx, r.req.Text); err != nil {
			return err
		}
		return r.commit(ctx, el)
	case TechniqueScriptFill:
		if err := el.ScriptFill(ctx, r.req.Text); err != nil {
			return err
		}
		return r.commit(ctx, el)
	case TechniqueReadText:
		text, err := el.Text(ctx)
		if err != nil {
			return err
		}
		r.result.Text = text
		return nil
	default:
		return fmt.Errorf("unsupported technique %q", t)
	}
}

func (r *run) commit(ctx context.Context, el Element) error {
	if r.req.Commit == "" {
		return nil
	}
	if err := el.Press(ctx, r.req.Commit); err != nil {
		return fmt.Errorf("press %s: %w", r.req.Commit, err)
	}
	return nil
}

// alreadySatisfied checks the indicators once before acting, so a request
// whose effect is already visible does not repeat its action.
func (r *run) alreadySatisfied(round int) bool {
	if len(r.req.Indicators) == 0 || !r.anyIndicatorVisible() {
		return false
	}
	r.record(round, TechniqueAlreadySatisfied, nil)
	return true
}

// confirm polls the indicators for at most half the remaining budget, capped
// by the confirm window, leaving room for at least one more round. Near the
// deadline it still waits one poll interval so the round consumes time.
func (r *run) confirm() bool {
	window := r.req.ConfirmWindow
	if window <= 0 {
		window = DefaultConfirmWindow
	}
	if half := r.remaining() / 2; window > half {
		window = half
	}
	if window < r.e.poll {
		window = min(r.e.poll, r.remaining())
	}
	until := r.e.clock.Now().Add(window)

	for {
		if r.anyIndicatorVisible() {
			return true
		}
		left := until.Sub(r.e.clock.Now())
		if left <= 0 {
			return false
		}
		wait := r.e.poll
		if wait > left {
			wait = left
		}
		r.e.clock.Sleep(r.ctx, wait)
	}
}

// anyIndicatorVisible samples every indicator once. Each gets its own share
// of the poll interval, so a missing one cannot use up the others' wait.
func (r *run) anyIndicatorVisible() bool {
	each := r.e.poll / time.Duration(len(r.req.Indicators))
	if each < minIndicatorWait {
		each = minIndicatorWait
	}
	for _, ind := range r.req.Indicators {
		if r.indicatorVisible(ind, each) {
			r.log.Debug("indicator visible", zap.String("indicator", ind.String()))
			return true
		}
	}
	return false
}

func (r *run) indicatorVisible(ind Locator, wait time.Duration) bool {
	ctx, cancel := context.WithTimeout(r.ctx, wait)
	defer cancel()

	el, err := ind.Resolve(ctx)
	if err != nil {
		return false
	}
	ok, err := el.Visible(ctx)
	return err == nil && ok
}

func (r *run) succeed(span trace.Span) (*Result, error) {
	r.result.Success = true
	r.result.Elapsed = r.e.clock.Now().Sub(r.start)
	span.SetAttributes(attribute.Int("action.attempts", len(r.result.Attempts)))
	r.log.Debug("action confirmed",
		zap.Int("attempts", len(r.result.Attempts)),
		zap.Duration("elapsed", r.result.Elapsed))
	return r.result, nil
}

func (r *run) fail(span trace.Span) (*Result, error) {
	r.result.Elapsed = r.e.clock.Now().Sub(r.start)
	err := &DeadlineError{Request: r.req.label(), Result: r.result}
	span.SetAttributes(attribute.Int("action.attempts", len(r.result.Attempts)))
	span.RecordError(err)
	span.SetStatus(codes.Error, ErrDeadlineExceeded.Error())
	r.log.Warn("action not confirmed before deadline",
		zap.Int("attempts", len(r.result.Attempts)),
		zap.Duration("elapsed", r.result.Elapsed))
	return r.result, err
}
