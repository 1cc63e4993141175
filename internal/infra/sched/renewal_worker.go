package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"carservice-commerce/internal/application"
	"carservice-commerce/internal/infra/metrics"
	red "carservice-commerce/internal/infra/redis"
)

const renewalLockKey = "lock:renewal-sweep"

// Renewer is the slice of the facade the worker drives.
type Renewer interface {
	ProcessDueSubscriptions(ctx context.Context, limit int) (application.RenewalSummary, error)
}

// RenewalWorker periodically renews or expires subscriptions whose period
// ended. With a locker configured only one instance sweeps per tick.
type RenewalWorker struct {
	interval  time.Duration
	lockTTL   time.Duration
	batchSize int
	renewer   Renewer
	locker    red.Locker
	log       *zerolog.Logger
}

func NewRenewalWorker(interval, lockTTL time.Duration, batchSize int, renewer Renewer, locker red.Locker, logger *zerolog.Logger) *RenewalWorker {
	l := logger.With().Str("component", "RenewalWorker").Logger()
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if lockTTL <= 0 {
		lockTTL = interval
	}
	return &RenewalWorker{
		interval:  interval,
		lockTTL:   lockTTL,
		batchSize: batchSize,
		renewer:   renewer,
		locker:    locker,
		log:       &l,
	}
}

func (w *RenewalWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting renewal worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping renewal worker")
			return ctx.Err()
		case <-ticker.C:
			_, _ = w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep. A lease held by another instance is a
// quiet skip with an empty summary.
func (w *RenewalWorker) RunOnce(ctx context.Context) (sum application.RenewalSummary, err error) {
	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, renewalLockKey, w.lockTTL)
		if errors.Is(err, red.ErrLockHeld) {
			metrics.IncRenewalRun("skipped")
			w.log.Debug().Msg("renewal sweep held elsewhere")
			return sum, nil
		}
		if err != nil {
			metrics.IncRenewalRun("error")
			w.log.Error().Err(err).Msg("renewal lease unavailable")
			return sum, err
		}
		defer func() {
			unlockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := w.locker.Unlock(unlockCtx, renewalLockKey, token); err != nil {
				w.log.Warn().Err(err).Msg("renewal lease release failed")
			}
		}()
	}

	sum, err = w.renewer.ProcessDueSubscriptions(ctx, w.batchSize)
	if err != nil {
		metrics.IncRenewalRun("error")
		w.log.Error().Err(err).Msg("renewal sweep error")
		return sum, err
	}
	metrics.IncRenewalRun("ok")
	if sum.Renewed+sum.Expired+sum.Failed > 0 {
		w.log.Info().
			Int("renewed", sum.Renewed).
			Int("expired", sum.Expired).
			Int("failed", sum.Failed).
			Msg("renewal sweep finished")
	}
	return sum, nil
}
