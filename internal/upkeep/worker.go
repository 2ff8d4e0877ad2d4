// Package upkeep runs the automation loop that advances round state: it
// polls the engine for pending actions and feeds them back, the way an
// external keeper network would.
package upkeep

import (
	"context"
	"time"

	"github.com/blazelabs/lottery-engine/internal/engine"
	"github.com/blazelabs/lottery-engine/pkg/common/config"
	"github.com/blazelabs/lottery-engine/pkg/common/logger"
	"github.com/blazelabs/lottery-engine/pkg/retry"
)

type Worker interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
}

// PollWorker drives one engine through checkUpkeep/performUpkeep on a fixed
// interval. The worker identity must be on the engine's upkeeper allow-list.
type PollWorker struct {
	engine   *engine.Engine
	identity string
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewPollWorker(eng *engine.Engine, cfg config.UpkeepCfg) *PollWorker {
	return &PollWorker{
		engine:   eng,
		identity: cfg.Identity,
		interval: cfg.PollIntervalTime(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (w *PollWorker) Name() string { return "upkeep-poller" }

func (w *PollWorker) Start(ctx context.Context) error {
	log := logger.With("worker", w.Name(), "identity", w.identity)
	log.Info("starting", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case <-ticker.C:
			if err := w.poll(ctx); err != nil {
				log.Error("upkeep cycle failed", "error", err)
			}
		}
	}
}

// poll performs at most one action per tick. PerformUpkeep is retried with
// backoff because a transient store or oracle fault must not strand an ended
// round; state faults are not retried, the next tick re-polls instead.
func (w *PollWorker) poll(ctx context.Context) error {
	needed, payload, err := w.engine.CheckUpkeep()
	if err != nil {
		return err
	}
	if !needed {
		return nil
	}

	logger.Debug("upkeep needed", "action", payload.Action, "round", payload.Round)
	return retry.Exponential(func() error {
		err := w.engine.PerformUpkeep(ctx, w.identity, payload)
		if err == engine.ErrInvalidRoundEndConditions {
			// state moved under us; re-poll on the next tick
			return nil
		}
		return err
	}, retry.ExponentialConfig{
		InitialInterval: 500 * time.Millisecond,
		MaxElapsedTime:  w.interval,
		OnRetry: func(err error, next time.Duration) {
			logger.Warn("retrying upkeep", "round", payload.Round, "error", err, "next", next)
		},
	})
}

func (w *PollWorker) Stop() error {
	close(w.stop)
	<-w.done
	logger.Info("stopped", "worker", w.Name())
	return nil
}
