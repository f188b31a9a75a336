package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/qxwatch/internal/domain"
	"github.com/alanyoungcy/qxwatch/internal/notify"
)

const archiveLockKey = "archive:qx_events"

// Archiver copies events older than the retention window to cold storage.
// Runs are serialised across replicas with a distributed lock.
type Archiver struct {
	blobArchiver  domain.Archiver
	locks         domain.LockManager
	notifier      *notify.Notifier
	retentionDays int
	lockTTL       time.Duration
	trigger       <-chan struct{}
	now           func() time.Time
	logger        *slog.Logger
}

// NewArchiver creates a new Archiver. locks and notifier may be nil.
func NewArchiver(blobArchiver domain.Archiver, locks domain.LockManager, notifier *notify.Notifier, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver:  blobArchiver,
		locks:         locks,
		notifier:      notifier,
		retentionDays: retentionDays,
		lockTTL:       30 * time.Minute,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// WithTriggerChannel makes RunCron also run once for every receive on ch.
func (a *Archiver) WithTriggerChannel(ch <-chan struct{}) *Archiver {
	a.trigger = ch
	return a
}

// Cutoff returns the instant before which events are archived.
func (a *Archiver) Cutoff() time.Time {
	return a.now().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
}

// Run executes a single archive run. A run that finds the lock held by
// another replica is skipped without error.
func (a *Archiver) Run(ctx context.Context) (int64, error) {
	if a.locks != nil {
		unlock, err := a.locks.Acquire(ctx, archiveLockKey, a.lockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.InfoContext(ctx, "archive run already in progress elsewhere")
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("pipeline: archive lock: %w", err)
		}
		defer unlock()
	}

	cutoff := a.Cutoff()
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	n, err := a.blobArchiver.ArchiveEvents(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pipeline: archiving events before %v: %w", cutoff, err)
	}
	a.logger.InfoContext(ctx, "archive run complete", slog.Int64("events_archived", n))

	if n > 0 && a.notifier.Enabled(notify.EventArchiveDone) {
		msg := notify.Message{
			Title: "QX archive completed",
			Body:  fmt.Sprintf("%d event(s) archived", n),
			Fields: []notify.Field{
				{Name: "Cutoff", Value: cutoff.Format(time.RFC3339)},
			},
		}
		if err := a.notifier.Notify(ctx, notify.EventArchiveDone, msg); err != nil {
			a.logger.WarnContext(ctx, "archive notification failed", slog.String("error", err.Error()))
		}
	}
	return n, nil
}

// RunCron runs the archiver on a five-field cron schedule, for example
// "0 3 1 * *" for 03:00 UTC on the first of each month, until ctx is
// cancelled. Receives on the trigger channel run it in between.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	sched, err := parseCron(cronExpr)
	if err != nil {
		return fmt.Errorf("pipeline: parsing cron expression %q: %w", cronExpr, err)
	}
	a.logger.Info("archiver cron started", slog.String("cron", cronExpr))

	for {
		next, ok := sched.next(a.now())
		if !ok {
			return fmt.Errorf("pipeline: cron %q never fires", cronExpr)
		}

		wait := next.Sub(a.now())
		a.logger.Info("archiver waiting for next cron trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			a.runLogged(ctx)
		case <-a.trigger:
			timer.Stop()
			a.logger.Info("archive run triggered manually")
			a.runLogged(ctx)
		}
	}
}

func (a *Archiver) runLogged(ctx context.Context) {
	if _, err := a.Run(ctx); err != nil {
		a.logger.Error("archive run failed", slog.String("error", err.Error()))
	}
}
