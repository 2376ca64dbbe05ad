package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/v0xg/issuebot/internal/browser"
	"github.com/v0xg/issuebot/internal/config"
	"github.com/v0xg/issuebot/internal/recorder"
	"github.com/v0xg/issuebot/internal/resilient"
	"github.com/v0xg/issuebot/internal/telemetry"
	"github.com/v0xg/issuebot/internal/tracker"
)

var version = "dev"

var (
	cfgFile  string
	verbose  bool
	headless bool
	record   string
	snapshot string
)

func main() {
	// Load .env file if present (silently ignore if not found)
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "issuebot",
		Short: "Drive the issue tracker's web UI with retrying, self-confirming actions",
		Long: `issuebot runs issue tracker workflows in a real browser. Every click and
fill is retried with fallback techniques until a visible success indicator
confirms it or the step's deadline passes.

Example:
  issuebot cookies save
  issuebot issue create --summary "Automated Test Issue_UI"
  issuebot child create --epic DEMO-5 --type story --summary "User story created using UI"`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default ./issuebot.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Show detailed progress")
	pf.BoolVar(&headless, "headless", false, "Run the browser without a window")
	pf.StringVar(&record, "record", "", "Write an animated GIF of every attempt to this path")
	pf.StringVar(&snapshot, "snapshot", "", "Write a PNG of the page here when a workflow fails")

	rootCmd.AddCommand(
		newCookiesCmd(),
		newSecretsCmd(),
		newIssueCmd(),
		newChildCmd(),
		newSubtaskCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is what a command needs: config, logger and, for UI commands, a
// browser session wired to an executor and tracker
type app struct {
	cfg *config.Config
	log *zap.Logger

	sess    *browser.Session
	rec     *recorder.Recorder
	tracker *tracker.Tracker
}

func loadApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = headless
	}
	if record != "" {
		cfg.RecordPath = record
	}
	if snapshot != "" {
		cfg.SnapshotPath = snapshot
	}

	log, err := newLogger(verbose)
	if err != nil {
		return nil, err
	}
	if err := telemetry.Init(cmd.Context(), "issuebot", version); err != nil {
		log.Warn("telemetry disabled", zap.Error(err))
	}
	return &app{cfg: cfg, log: log}, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}

// startBrowser launches the session and builds the executor and tracker on it
func (a *app) startBrowser(withCookies bool) error {
	fmt.Printf("→ Launching browser... ")
	sess, err := browser.Launch(browser.Options{
		Headless:    a.cfg.Browser.Headless,
		NoSandbox:   a.cfg.Browser.NoSandbox,
		SlowMotion:  a.cfg.Browser.SlowMotion,
		Width:       a.cfg.Browser.Width,
		Height:      a.cfg.Browser.Height,
		ProfileDir:  a.cfg.Browser.ProfileDir,
		Bin:         a.cfg.Browser.Bin,
		ResolveWait: a.cfg.Actions.ResolveWait,
		Logger:      a.log.Named("browser"),
	})
	if err != nil {
		fmt.Println("failed")
		return err
	}
	fmt.Println("done")
	a.sess = sess

	opts := resilient.Options{
		Logger:           a.log.Named("executor"),
		PollInterval:     a.cfg.Actions.PollInterval,
		TechniqueTimeout: a.cfg.Actions.TechniqueTimeout,
		NewBackOff: func() backoff.BackOff {
			return backoff.NewConstantBackOff(a.cfg.Actions.Backoff)
		},
	}
	if a.cfg.RecordPath != "" || a.cfg.SnapshotPath != "" {
		a.rec = recorder.New(sess, recorder.Options{Logger: a.log.Named("recorder")})
	}
	if a.cfg.RecordPath != "" {
		opts.OnAttempt = a.rec.Observe
	}

	trackerOpts := tracker.Options{
		BaseURL:       a.cfg.BaseURL,
		ProjectKey:    a.cfg.ProjectKey,
		ProjectName:   a.cfg.ProjectName,
		StepTimeout:   a.cfg.Actions.Timeout,
		ConfirmWindow: a.cfg.Actions.ConfirmWindow,
		Logger:        a.log.Named("tracker"),
	}
	if verbose {
		trackerOpts.Progress = os.Stdout
	}
	if withCookies {
		trackerOpts.CookieFile = a.cfg.CookieFile
	}
	a.tracker = tracker.New(sess, resilient.New(opts), trackerOpts)
	return nil
}

// finish writes the recording and failure snapshot, then releases everything
func (a *app) finish(runErr error) {
	if a.rec != nil && runErr != nil && a.cfg.SnapshotPath != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.rec.SaveSnapshot(ctx, a.cfg.SnapshotPath); err != nil {
			a.log.Warn("snapshot failed", zap.Error(err))
		} else {
			fmt.Printf("→ Failure snapshot: %s\n", a.cfg.SnapshotPath)
		}
		cancel()
	}
	if a.rec != nil && a.cfg.RecordPath != "" {
		fmt.Printf("→ Encoding recording... ")
		size, err := a.rec.Save(a.cfg.RecordPath)
		if err != nil {
			fmt.Println("failed")
			a.log.Warn("recording not saved", zap.Error(err))
		} else {
			fmt.Printf("done\n✓ Saved %s (%.1f KB, %d frames)\n", a.cfg.RecordPath, float64(size)/1024, len(a.rec.Frames()))
		}
	}
	if a.sess != nil {
		a.sess.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	telemetry.Shutdown(ctx)
	_ = a.log.Sync()
}

// runWorkflow opens the site with the saved session and runs fn
func runWorkflow(cmd *cobra.Command, title string, fn func(ctx context.Context, t *tracker.Tracker) error) (err error) {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer func() { a.finish(err) }()

	if err = a.startBrowser(true); err != nil {
		return err
	}

	ctx := cmd.Context()
	fmt.Printf("→ Opening %s... ", a.cfg.BaseURL)
	if err = a.tracker.Open(ctx); err != nil {
		fmt.Println("failed")
		return err
	}
	fmt.Println("done")

	fmt.Printf("→ %s...\n", title)
	if err = fn(ctx, a.tracker); err != nil {
		return err
	}
	return nil
}
