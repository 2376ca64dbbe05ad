package tracker

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/v0xg/issuebot/internal/resilient"
)

// maxMonthsAhead bounds calendar paging when picking a due date
const maxMonthsAhead = 24

// Fields are the issue fields UpdateFields sets. Zero values are left alone.
type Fields struct {
	AssignToMe bool
	Priority   string
	DueDate    time.Time
	Label      string
	Comment    string
}

// IsZero reports whether f changes nothing
func (f Fields) IsZero() bool {
	return !f.AssignToMe && f.Priority == "" && f.DueDate.IsZero() && f.Label == "" && f.Comment == ""
}

// UpdateFields opens an issue and sets each non-zero field in turn. A field
// already showing the wanted value is skipped.
func (t *Tracker) UpdateFields(ctx context.Context, key string, f Fields) error {
	if err := t.updateFields(ctx, key, f); err != nil {
		return fmt.Errorf("update %s: %w", key, err)
	}
	return nil
}

func (t *Tracker) updateFields(ctx context.Context, key string, f Fields) error {
	if f.IsZero() {
		return nil
	}
	if err := t.navigate(ctx, t.issueURL(key)); err != nil {
		return err
	}
	if err := t.expectIssue(ctx, key); err != nil {
		return err
	}

	if f.AssignToMe {
		if err := t.assignToMe(ctx); err != nil {
			return fmt.Errorf("assignee: %w", err)
		}
	}
	if f.Priority != "" {
		if err := t.setPriority(ctx, f.Priority); err != nil {
			return fmt.Errorf("priority: %w", err)
		}
	}
	if !f.DueDate.IsZero() {
		if err := t.setDueDate(ctx, f.DueDate); err != nil {
			return fmt.Errorf("due date: %w", err)
		}
	}
	if f.Label != "" {
		if err := t.addLabel(ctx, f.Label); err != nil {
			return fmt.Errorf("label: %w", err)
		}
	}
	if f.Comment != "" {
		if err := t.addComment(ctx, f.Comment); err != nil {
			return fmt.Errorf("comment: %w", err)
		}
	}
	return nil
}

// assignToMe clicks the assign-to-me link. The link is hidden when the issue
// is already assigned to the current user.
func (t *Tracker) assignToMe(ctx context.Context) error {
	link := t.s.TestID(tidAssignToMe)
	if !t.s.Visible(ctx, link) {
		t.log.Info("assign to me not offered, assuming already assigned")
		return nil
	}
	return t.click(ctx, "assign to me", link)
}

func (t *Tracker) setPriority(ctx context.Context, priority string) error {
	s := t.s
	wrapper := s.TestID(tidPriority)
	current := wrapper.Within(s.ExactText("span", priority))
	if s.Visible(ctx, current) {
		return nil
	}

	option := s.ExactText(`[role="option"], [role="menuitem"], li, div > span`, priority)
	if err := t.click(ctx, "open priority", wrapper, option); err != nil {
		return err
	}
	return t.click(ctx, "choose "+priority, option, current)
}

func (t *Tracker) setDueDate(ctx context.Context, due time.Time) error {
	s := t.s
	next := s.TestID(tidCalendarNext)
	if err := t.click(ctx, "edit due date", s.TestID(tidDueDate), s.TestID(tidCalendarOpen), next); err != nil {
		return err
	}
	if !s.Visible(ctx, next) {
		if err := t.click(ctx, "open calendar", s.TestID(tidCalendarOpen), next); err != nil {
			return err
		}
	}

	day := s.CSS(fmt.Sprintf(`button[aria-label^=%q]`, dueDateLabel(due)))
	for i := 0; ; i++ {
		if n, err := s.Count(ctx, day); err == nil && n > 0 {
			break
		}
		if i == maxMonthsAhead {
			return fmt.Errorf("%s not found within %d months", due.Format(time.DateOnly), maxMonthsAhead)
		}
		if err := t.click(ctx, "next month", next); err != nil {
			return err
		}
	}
	return t.click(ctx, "pick "+due.Format(time.DateOnly), day)
}

// dueDateLabel is how the date picker names a day button,
// e.g. "10, Wednesday December"
func dueDateLabel(d time.Time) string {
	return fmt.Sprintf("%d, %s %s", d.Day(), d.Weekday(), d.Month())
}

func (t *Tracker) addLabel(ctx context.Context, label string) error {
	s := t.s
	field := s.TestID(tidLabels)
	shown := field.Within(s.Text("a, span, div", `^\s*`+regexp.QuoteMeta(label)+`\s*$`))
	if s.Visible(ctx, shown) {
		return nil
	}

	input := field.Within(s.CSS("input"))
	if err := t.click(ctx, "edit labels", field.Within(s.TestID(tidInlineReadView)), input); err != nil {
		return err
	}
	if err := t.fill(ctx, "type label", input, label, resilient.KeyEnter); err != nil {
		return err
	}
	// Clicking outside the field commits the edit
	return t.click(ctx, "commit labels", s.TestID(tidSummaryHeading), shown)
}

func (t *Tracker) addComment(ctx context.Context, comment string) error {
	s := t.s
	placeholder := s.TestID(tidCommentPlaceholder)
	editor := s.CSS(cssCommentEditor)

	if err := t.click(ctx, "show comments", s.TestID(tidCommentsTab), placeholder); err != nil {
		return err
	}
	if err := t.click(ctx, "open comment editor", placeholder, editor); err != nil {
		return err
	}
	if err := t.fill(ctx, "type comment", editor, comment, ""); err != nil {
		return err
	}
	// The placeholder comes back once the editor has saved and closed
	if err := t.click(ctx, "save comment", s.TestID(tidCommentSave), placeholder); err != nil {
		return err
	}

	text, err := t.read(ctx, "read comment", s.Text("p, span, div", regexp.QuoteMeta(comment)))
	if err != nil {
		return err
	}
	t.log.Debug("comment visible", zap.String("text", text))
	return nil
}
