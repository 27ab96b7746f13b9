package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// cronLogger routes cron's own logging through zap. Scheduler chatter goes to debug.
type cronLogger struct {
	log *zap.SugaredLogger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

// NewScheduler builds a cron with a seconds field. Panicking jobs are recovered and a
// job still running when its next tick fires is skipped.
func NewScheduler(logger *zap.Logger) *cron.Cron {
	cl := cronLogger{log: logger.Sugar()}
	return cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
}

// Schedule registers job on spec. Each run gets a context derived from ctx, bounded by
// timeout when positive.
func Schedule(ctx context.Context, c *cron.Cron, spec, name string, timeout time.Duration, job Job, logger *zap.Logger) (cron.EntryID, error) {
	id, err := c.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		runCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		defer cancel()

		began := time.Now()
		if err := job(runCtx); err != nil {
			logger.Error("scheduled job failed",
				zap.String("job", name),
				zap.Duration("took", time.Since(began)),
				zap.Error(err))
			return
		}
		logger.Debug("scheduled job finished",
			zap.String("job", name),
			zap.Duration("took", time.Since(began)))
	})
	if err != nil {
		return 0, fmt.Errorf("schedule %s on %q: %w", name, spec, err)
	}
	return id, nil
}

// RunScheduled runs job once when once is set. Otherwise it runs job on spec until ctx
// is cancelled and waits for a run in progress to finish.
func RunScheduled(ctx context.Context, name, spec string, once bool, timeout time.Duration, job Job, logger *zap.Logger) error {
	if once {
		return job(ctx)
	}

	c := NewScheduler(logger)
	if _, err := Schedule(ctx, c, spec, name, timeout, job, logger); err != nil {
		return err
	}
	c.Start()
	logger.Info("scheduler started", zap.String("job", name), zap.String("spec", spec))

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("scheduler stopped", zap.String("job", name))
	return nil
}
