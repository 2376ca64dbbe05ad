package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/v0xg/issuebot/internal/resilient"
)

// ChildKind is the work type of an epic's child
type ChildKind string

const (
	Story ChildKind = "Story"
	Task  ChildKind = "Task"
)

// ParseChildKind accepts story or task in any case
func ParseChildKind(s string) (ChildKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "story":
		return Story, nil
	case "task":
		return Task, nil
	default:
		return "", fmt.Errorf("unknown child type %q (want story or task)", s)
	}
}

// closeModalTimeout bounds the best-effort close after a subtask is created
const closeModalTimeout = 5 * time.Second

// CreateChild adds a child of the given kind to an epic from the epic's
// inline panel and returns the child's key
func (t *Tracker) CreateChild(ctx context.Context, epicKey string, kind ChildKind, summary string) (string, error) {
	key, err := t.createChild(ctx, epicKey, kind, summary)
	if err != nil {
		return "", fmt.Errorf("create %s under %s: %w", strings.ToLower(string(kind)), epicKey, err)
	}
	t.log.Info("child created", zap.String("epic", epicKey), zap.String("key", key), zap.String("kind", string(kind)))
	return key, nil
}

func (t *Tracker) createChild(ctx context.Context, epicKey string, kind ChildKind, summary string) (string, error) {
	if err := t.navigate(ctx, t.issueURL(epicKey)); err != nil {
		return "", err
	}
	if err := t.expectIssue(ctx, epicKey); err != nil {
		return "", err
	}
	if err := t.openChildPanel(ctx); err != nil {
		return "", err
	}
	if err := t.chooseWorkType(ctx, kind); err != nil {
		return "", err
	}

	s := t.s
	rows := s.XPath(fmt.Sprintf(xpChildRowTemplate, xpathLiteral(summary)))
	existing, err := s.Count(ctx, rows)
	if err != nil {
		return "", err
	}
	row := rows.Nth(existing)

	if err := t.fill(ctx, "fill child summary", s.TestID(tidChildSummaryField), summary, resilient.KeyEnter, row); err != nil {
		return "", err
	}
	return t.read(ctx, "read child key", row.Within(s.TestID(tidChildKeyCell)))
}

// openChildPanel opens the inline "Add child work item" panel. The add button
// is tried first, then the icon button, then the add button once more after a
// reload.
func (t *Tracker) openChildPanel(ctx context.Context) error {
	s := t.s
	panel := []resilient.Locator{
		s.TestID(tidChildSummaryField),
		s.CSS(cssWorkTypeButton),
		s.XPath(xpCancelButton),
	}
	add := s.XPath(xpAddChildButton)

	err := t.click(ctx, "add child work item", add, panel...)
	if !isDeadline(err) {
		return err
	}
	t.log.Warn("add child button did not open the panel, trying icon button", zap.Error(err))

	_, err = t.do(ctx, resilient.Request{
		Name:       "create child icon",
		Locator:    s.TestID(tidCreateChildIcon),
		Kind:       resilient.Click,
		Timeout:    t.opts.StepTimeout / 3,
		Indicators: panel,
	})
	if !isDeadline(err) {
		return err
	}
	t.log.Warn("icon button did not open the panel, reloading", zap.Error(err))

	if err := s.Reload(ctx); err != nil {
		return err
	}
	if err := t.checkSession(ctx); err != nil {
		return err
	}
	return t.click(ctx, "add child work item after reload", add, panel...)
}

func isDeadline(err error) bool {
	var de *resilient.DeadlineError
	return errors.As(err, &de)
}

// chooseWorkType picks kind in the panel's type selector. Task is the
// panel's default, so a missing selector is only an error for other kinds.
func (t *Tracker) chooseWorkType(ctx context.Context, kind ChildKind) error {
	s := t.s
	selector := s.CSS(cssWorkTypeButton)
	option := s.XPath(fmt.Sprintf(xpWorkTypeTemplate, xpathLiteral(string(kind))))

	if kind == Task && !s.Visible(ctx, selector) {
		t.log.Debug("work type selector not shown, using default")
		return nil
	}
	if err := t.click(ctx, "open work type", selector, option); err != nil {
		return err
	}
	return t.click(ctx, "choose "+string(kind), option)
}

// CreateSubtask adds a subtask to an issue and returns the id from the new
// subtask's link. An empty summary becomes "Subtask for KEY".
func (t *Tracker) CreateSubtask(ctx context.Context, issueKey, summary string) (string, error) {
	if summary == "" {
		summary = "Subtask for " + issueKey
	}
	id, err := t.createSubtask(ctx, issueKey, summary)
	if err != nil {
		return "", fmt.Errorf("create subtask under %s: %w", issueKey, err)
	}
	t.log.Info("subtask created", zap.String("parent", issueKey), zap.String("id", id))
	return id, nil
}

func (t *Tracker) createSubtask(ctx context.Context, issueKey, summary string) (string, error) {
	if err := t.navigate(ctx, t.issueURL(issueKey)); err != nil {
		return "", err
	}
	if err := t.expectIssue(ctx, issueKey); err != nil {
		return "", err
	}

	s := t.s
	input := s.XPath(xpSubtaskInput)
	if err := t.click(ctx, "add subtask", s.XPath(xpSubtaskPrompt), input); err != nil {
		return "", err
	}

	links := s.XPath(fmt.Sprintf(xpLinkByTextTemplate, xpathLiteral(summary)))
	existing, err := s.Count(ctx, links)
	if err != nil {
		return "", err
	}
	link := links.Nth(existing)

	if err := t.fill(ctx, "fill subtask summary", input, summary, resilient.KeyEnter, link); err != nil {
		return "", err
	}

	href, err := s.Attribute(ctx, link, "href")
	if err != nil {
		return "", err
	}
	id := hrefID(href)
	if id == "" {
		return "", fmt.Errorf("subtask link has no id (href %q)", href)
	}

	t.closeModal(ctx)
	return id, nil
}

// closeModal dismisses the issue modal if one is open
func (t *Tracker) closeModal(ctx context.Context) {
	closeBtn := t.s.TestID(tidModalClose)
	if !t.s.Visible(ctx, closeBtn) {
		return
	}
	_, err := t.do(ctx, resilient.Request{
		Name:    "close modal",
		Locator: closeBtn,
		Kind:    resilient.Click,
		Timeout: closeModalTimeout,
	})
	if err != nil {
		t.log.Debug("modal left open", zap.Error(err))
	}
}
