package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/v0xg/issuebot/internal/secrets"
	"github.com/v0xg/issuebot/internal/tracker"
)

func newCookiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cookies",
		Short: "Manage the saved login session",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "save",
		Short: "Log in by hand in a browser window and save the session cookies",
		Args:  cobra.NoArgs,
		RunE:  runCookiesSave,
	})
	return cmd
}

func runCookiesSave(cmd *cobra.Command, _ []string) (err error) {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer func() { a.finish(err) }()

	// Logging in needs a window
	a.cfg.Browser.Headless = false
	if err = a.startBrowser(false); err != nil {
		return err
	}
	if err = a.sess.Navigate(cmd.Context(), a.cfg.BaseURL); err != nil {
		return err
	}

	fmt.Print("Log in, wait for the dashboard, then press Enter here... ")
	if _, err = bufio.NewReader(os.Stdin).ReadString('\n'); err != nil {
		return fmt.Errorf("read confirmation: %w", err)
	}

	n, err := a.sess.SaveCookies(a.cfg.CookieFile)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Saved %d cookies to %s\n", n, a.cfg.CookieFile)
	return nil
}

func newSecretsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Fetch credentials from Doppler",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Fetch USERNAME, PASSWORD and UIPASSWORD and print them masked",
		Args:  cobra.NoArgs,
		RunE:  runSecretsInit,
	})
	return cmd
}

func runSecretsInit(cmd *cobra.Command, _ []string) (err error) {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer func() { a.finish(err) }()

	fmt.Printf("→ Fetching secrets... ")
	s, err := secrets.Fetch(cmd.Context(), secrets.Options{
		BaseURL: a.cfg.Doppler.BaseURL,
		Token:   a.cfg.Doppler.Token,
		Logger:  a.log.Named("secrets"),
	})
	if err != nil {
		fmt.Println("failed")
		return err
	}
	if err = s.Export(); err != nil {
		fmt.Println("failed")
		return err
	}
	fmt.Println("done")

	fmt.Printf("  EMAIL       %s\n", secrets.MaskEmail(s.Email))
	fmt.Printf("  API_TOKEN   %s\n", secrets.MaskToken(s.APIToken))
	if s.UIPassword != "" {
		fmt.Printf("  UI_PASSWORD %s\n", secrets.MaskToken(s.UIPassword))
	}
	return nil
}

func newIssueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Create, open, verify and update issues",
	}

	var summary string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an issue from the project list view and print its key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorkflow(cmd, "Creating issue", func(ctx context.Context, t *tracker.Tracker) error {
				key, err := t.CreateIssue(ctx, summary)
				if err != nil {
					return err
				}
				fmt.Printf("✓ Created %s\n", key)
				return nil
			})
		},
	}
	create.Flags().StringVar(&summary, "summary", "Automated Test Issue_UI", "Issue summary")

	open := &cobra.Command{
		Use:   "open KEY",
		Short: "Open an issue from the project page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, "Opening "+args[0], func(ctx context.Context, t *tracker.Tracker) error {
				if err := t.OpenIssue(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("✓ Opened %s\n", args[0])
				return nil
			})
		},
	}

	verify := &cobra.Command{
		Use:   "verify KEY",
		Short: "Print an issue's summary and status as the UI shows them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, "Verifying "+args[0], func(ctx context.Context, t *tracker.Tracker) error {
				v, err := t.VerifyIssue(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("✓ %s\n  Summary: %s\n  Status:  %s\n", v.Key, v.Summary, v.Status)
				return nil
			})
		},
	}

	cmd.AddCommand(create, open, verify, newUpdateCmd())
	return cmd
}

func newUpdateCmd() *cobra.Command {
	var (
		f   tracker.Fields
		due string
	)
	cmd := &cobra.Command{
		Use:   "update KEY",
		Short: "Set assignee, priority, due date, label and comment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if due != "" {
				d, err := time.Parse(time.DateOnly, due)
				if err != nil {
					return fmt.Errorf("--due: %w", err)
				}
				f.DueDate = d
			}
			if f.IsZero() {
				return fmt.Errorf("nothing to update: pass at least one field flag")
			}
			return runWorkflow(cmd, "Updating "+args[0], func(ctx context.Context, t *tracker.Tracker) error {
				if err := t.UpdateFields(ctx, args[0], f); err != nil {
					return err
				}
				fmt.Printf("✓ Updated %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&f.AssignToMe, "assign-me", false, "Assign the issue to the logged-in user")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "Priority name, e.g. High")
	cmd.Flags().StringVar(&due, "due", "", "Due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.Label, "label", "", "Label to add")
	cmd.Flags().StringVar(&f.Comment, "comment", "", "Comment to post")
	return cmd
}

func newChildCmd() *cobra.Command {
	var epic, kind, summary string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a story or task under an epic and print its key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := tracker.ParseChildKind(kind)
			if err != nil {
				return err
			}
			if summary == "" {
				summary = defaultChildSummary(k)
			}
			return runWorkflow(cmd, fmt.Sprintf("Creating %s under %s", kind, epic), func(ctx context.Context, t *tracker.Tracker) error {
				key, err := t.CreateChild(ctx, epic, k, summary)
				if err != nil {
					return err
				}
				fmt.Printf("✓ Created %s\n", key)
				return nil
			})
		},
	}
	create.Flags().StringVar(&epic, "epic", "", "Epic key")
	create.Flags().StringVar(&kind, "type", "task", "Child type: story or task")
	create.Flags().StringVar(&summary, "summary", "", "Child summary")
	_ = create.MarkFlagRequired("epic")

	cmd := &cobra.Command{
		Use:   "child",
		Short: "Work with an epic's children",
	}
	cmd.AddCommand(create)
	return cmd
}

func defaultChildSummary(k tracker.ChildKind) string {
	if k == tracker.Story {
		return "User story created using UI"
	}
	return "Task created using UI"
}

func newSubtaskCmd() *cobra.Command {
	var issue, summary string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a subtask under an issue and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorkflow(cmd, "Creating subtask under "+issue, func(ctx context.Context, t *tracker.Tracker) error {
				id, err := t.CreateSubtask(ctx, issue, summary)
				if err != nil {
					return err
				}
				fmt.Printf("✓ Created %s\n", id)
				return nil
			})
		},
	}
	create.Flags().StringVar(&issue, "issue", "", "Parent issue key")
	create.Flags().StringVar(&summary, "summary", "", "Subtask summary (default \"Subtask for KEY\")")
	_ = create.MarkFlagRequired("issue")

	cmd := &cobra.Command{
		Use:   "subtask",
		Short: "Work with subtasks",
	}
	cmd.AddCommand(create)
	return cmd
}
