// ABOUTME: One-shot run and scheduled daemon commands
// ABOUTME: The daemon runs immediately, then on every tick until interrupted
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harperreed/latecancel/workflow"
)

// MinInterval is the shortest daemon interval accepted.
const MinInterval = 5 * time.Minute

// RunCommand executes one run and returns its error so main can exit non-zero.
func (a *App) RunCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	force := fs.Bool("force", false, "Start even if the ledger shows a run in progress")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := a.RunOnce(ctx, *force)
	if err != nil {
		fmt.Fprintf(a.out(), "\n✗ Run failed after %.1fs: %v\n", summary.Duration.Seconds(), err)
		return err
	}
	printSummary(a.out(), summary, os.Getenv("GITHUB_ACTIONS") == "true")
	return nil
}

// DaemonCommand runs on a fixed interval until SIGINT or SIGTERM.
func (a *App) DaemonCommand(args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	interval := fs.Duration("interval", a.Config.Run.Interval, "Time between runs (minimum 5m)")
	_ = fs.Parse(args)

	if err := validateInterval(*interval); err != nil {
		return err
	}
	if err := a.preflight(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(a.out(), "✓ Scheduler started, running every %s\n", *interval)
	daemonLoop(ctx, *interval, func(ctx context.Context) (workflow.Summary, error) {
		return a.RunOnce(ctx, false)
	}, func(s workflow.Summary, err error) {
		if err != nil {
			a.Logger.Error("scheduled run failed", "err", err)
			return
		}
		printSummary(a.out(), s, false)
	})
	fmt.Fprintln(a.out(), "\n✓ Scheduler stopped")
	return nil
}

func validateInterval(d time.Duration) error {
	if d < MinInterval {
		return fmt.Errorf("interval %s is below the minimum of %s", d, MinInterval)
	}
	return nil
}

// daemonLoop calls run once immediately and then on every tick. Runs never
// overlap: a tick that arrives during a run is dropped by the ticker.
func daemonLoop(ctx context.Context, interval time.Duration, run func(context.Context) (workflow.Summary, error), report func(workflow.Summary, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s, err := run(ctx)
		report(s, err)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
