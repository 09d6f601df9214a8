package doctolib

import (
	"context"
	"errors"
	"time"

	"github.com/kinebilan/kinebilan-backend/internal/batchlock"
	"github.com/kinebilan/kinebilan-backend/pkg/logging"
)

// Syncer runs the sync service on a fixed interval.
type Syncer struct {
	service    *SyncService
	windowDays int
	logger     *logging.Logger

	tick <-chan time.Time
	stop func()
}

// SyncerConfig configures the periodic sync loop. Tick/Stop override the
// internal ticker in tests.
type SyncerConfig struct {
	Service    *SyncService
	Interval   time.Duration
	WindowDays int
	Logger     *logging.Logger

	Tick <-chan time.Time
	Stop func()
}

// NewSyncer creates a periodic syncer.
func NewSyncer(cfg SyncerConfig) (*Syncer, error) {
	if cfg.Service == nil {
		return nil, errors.New("doctolib: syncer requires sync service")
	}
	windowDays := cfg.WindowDays
	if windowDays <= 0 {
		windowDays = 30
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	tick := cfg.Tick
	stop := cfg.Stop
	if tick == nil {
		interval := cfg.Interval
		if interval <= 0 {
			interval = time.Hour
		}
		ticker := time.NewTicker(interval)
		tick = ticker.C
		stop = ticker.Stop
	}

	return &Syncer{
		service:    cfg.Service,
		windowDays: windowDays,
		logger:     logger,
		tick:       tick,
		stop:       stop,
	}, nil
}

// Start runs one sync immediately and then on every tick until the context
// is cancelled. A run that loses the batch lock to the reconciler is skipped
// and retried on the next tick.
func (s *Syncer) Start(ctx context.Context) {
	if s == nil {
		return
	}
	defer func() {
		if s.stop != nil {
			s.stop()
		}
	}()

	s.syncOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.tick:
			s.syncOnce(ctx)
		}
	}
}

func (s *Syncer) syncOnce(ctx context.Context) {
	if _, err := s.service.Sync(ctx, s.windowDays); err != nil {
		if errors.Is(err, batchlock.ErrHeld) {
			s.logger.Info("sync skipped, batch lock held")
			return
		}
		s.logger.Error("periodic sync failed", "error", err)
	}
}
