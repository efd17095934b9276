// Package daemon runs the periodic refresh-and-sync loop for serve mode.
package daemon

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	applog "studycal/internal/log"
)

// Job is one sync cycle. It must honor ctx cancellation.
type Job func(ctx context.Context)

// Run executes job immediately and then on every tick of the cron spec
// until ctx is canceled. In-flight jobs are allowed to finish on shutdown.
func Run(ctx context.Context, spec string, job Job) error {
	scheduler := cron.New()

	if _, err := scheduler.AddFunc(spec, func() { job(ctx) }); err != nil {
		return fmt.Errorf("daemon: bad cron spec %q: %w", spec, err)
	}

	applog.Info("sync loop starting", "cron", spec)

	// Warm start: don't make the first sync wait for the first tick.
	job(ctx)

	scheduler.Start()
	<-ctx.Done()

	stopped := scheduler.Stop()
	<-stopped.Done()

	applog.Info("sync loop stopped")
	return nil
}
