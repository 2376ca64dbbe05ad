package tracker

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/v0xg/issuebot/internal/browser"
)

// popupWait bounds how long OpenIssue waits for the issue to open in a new tab
const popupWait = 5 * time.Second

// IssueView is what the issue page shows
type IssueView struct {
	Key     string
	Summary string
	Status  string
}

// CreateIssue creates an issue from the project's list view and returns its key
func (t *Tracker) CreateIssue(ctx context.Context, summary string) (string, error) {
	key, err := t.createIssue(ctx, summary)
	if err != nil {
		return "", fmt.Errorf("create issue: %w", err)
	}
	t.log.Info("issue created", zap.String("key", key))
	return key, nil
}

func (t *Tracker) createIssue(ctx context.Context, summary string) (string, error) {
	if err := t.openListView(ctx); err != nil {
		return "", err
	}

	s := t.s
	textarea := s.CSS(cssSummaryTextarea)
	if err := t.click(ctx, "open inline create", s.TestID(tidInlineCreateTrigger), textarea); err != nil {
		return "", err
	}
	if err := t.fill(ctx, "fill summary", textarea, summary, ""); err != nil {
		return "", err
	}

	// Earlier issues may share the summary; the new row is the next match
	rows := s.XPath(fmt.Sprintf(xpListRowTemplate, xpathLiteral(summary)))
	existing, err := s.Count(ctx, rows)
	if err != nil {
		return "", err
	}
	row := rows.Nth(existing)

	create := s.TestID(tidInlineCreateContainer).Within(s.Role("button", "Create"))
	if err := t.click(ctx, "create", create, row); err != nil {
		return "", err
	}

	key, err := t.read(ctx, "read new key", row.Within(s.TestID(tidListKeyCell)))
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", errors.New("new row has an empty key")
	}
	return key, nil
}

// openListView walks from the landing page to the project's list view
func (t *Tracker) openListView(ctx context.Context) error {
	if err := t.navigate(ctx, t.opts.BaseURL+"/jira/for-you"); err != nil {
		return err
	}

	s := t.s
	project := s.Text("a[href]", regexp.QuoteMeta(t.opts.ProjectName)+" Team-")
	list := s.Role("link", "List")

	if err := t.click(ctx, "open quick links", s.ExactText("div", "Quick links"), project); err != nil {
		return err
	}
	if err := t.click(ctx, "open project", project, list); err != nil {
		return err
	}
	return t.click(ctx, "open list view", list, s.TestID(tidInlineCreateTrigger))
}

// OpenIssue opens the project and clicks through to key. The issue may open
// in a new tab, which then becomes the session's page.
func (t *Tracker) OpenIssue(ctx context.Context, key string) error {
	if err := t.openIssue(ctx, key); err != nil {
		return fmt.Errorf("open issue %s: %w", key, err)
	}
	return nil
}

func (t *Tracker) openIssue(ctx context.Context, key string) error {
	if err := t.openProject(ctx); err != nil {
		return err
	}

	err := t.s.FollowPopup(ctx, popupWait, func() error {
		return t.click(ctx, "click "+key, t.s.ExactText("a, span", key))
	})
	if err != nil && !errors.Is(err, browser.ErrNoPopup) {
		return err
	}
	if err := t.checkSession(ctx); err != nil {
		return err
	}
	return t.expectIssue(ctx, key)
}

// openProject loads the site root and follows the first link into the project
func (t *Tracker) openProject(ctx context.Context) error {
	if err := t.navigate(ctx, t.opts.BaseURL); err != nil {
		return err
	}
	link := t.s.CSS(fmt.Sprintf(`a[href*="/browse/%s"]`, t.opts.ProjectKey))
	return t.click(ctx, "open project", link, t.s.Text("a, span", regexp.QuoteMeta(t.opts.ProjectKey)+`-\d+`))
}

// VerifyIssue opens key's page and reads its summary and status
func (t *Tracker) VerifyIssue(ctx context.Context, key string) (*IssueView, error) {
	v, err := t.verifyIssue(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("verify issue %s: %w", key, err)
	}
	return v, nil
}

func (t *Tracker) verifyIssue(ctx context.Context, key string) (*IssueView, error) {
	if err := t.navigate(ctx, t.issueURL(key)); err != nil {
		return nil, err
	}
	if err := t.expectIssue(ctx, key); err != nil {
		return nil, err
	}

	s := t.s
	summary, err := t.read(ctx, "read summary", s.TestID(tidSummaryHeading))
	if err != nil {
		return nil, err
	}
	status, err := t.read(ctx, "read status", s.TestID(tidStatus).Within(s.CSS("span")))
	if err != nil {
		return nil, err
	}
	return &IssueView{Key: key, Summary: summary, Status: status}, nil
}
