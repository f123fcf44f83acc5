// Package sweeper runs the periodic garbage collection of expired state:
// bearer tokens past their deadline and deferred login/link state whose
// temporary token has expired. It wraps gocron; each target maps to one
// job running in singleton mode so a slow sweep is never overlapped by the
// next tick.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/authgate-io/authgate/internal/metrics"
	"github.com/authgate-io/authgate/internal/storage"
)

// DefaultInterval is the sweep interval used when none is configured.
const DefaultInterval = 5 * time.Minute

// Sweeper owns the background expiry jobs.
type Sweeper struct {
	cron     gocron.Scheduler
	storage  storage.Storage
	metrics  *metrics.Metrics
	interval time.Duration
	logger   *zap.Logger
}

// New creates a Sweeper. Call Start to begin processing.
func New(store storage.Storage, m *metrics.Metrics, interval time.Duration,
	logger *zap.Logger) (*Sweeper, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("sweeper: failed to create scheduler: %w", err)
	}
	return &Sweeper{
		cron:     cron,
		storage:  store,
		metrics:  m,
		interval: interval,
		logger:   logger.Named("sweeper"),
	}, nil
}

// Start schedules the expiry jobs and starts the underlying scheduler. It
// should be called once at server startup, after the database connection is
// established.
func (s *Sweeper) Start() error {
	targets := []struct {
		name  string
		sweep func(context.Context) error
	}{
		{"tokens", s.storage.DeleteExpiredTokens},
		{"temp_identities", s.storage.DeleteExpiredTempIdentities},
	}
	for _, t := range targets {
		t := t
		_, err := s.cron.NewJob(
			gocron.DurationJob(s.interval),
			gocron.NewTask(func() { s.run(t.name, t.sweep) }),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("sweeper: failed to schedule %s sweep: %w", t.name, err)
		}
	}
	s.cron.Start()
	s.logger.Info("sweeper started", zap.Duration("interval", s.interval))
	return nil
}

// Stop shuts the scheduler down, waiting for any running sweep to finish.
func (s *Sweeper) Stop() error {
	return s.cron.Shutdown()
}

func (s *Sweeper) run(name string, sweep func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := sweep(ctx); err != nil {
		s.logger.Error("sweep failed", zap.String("target", name), zap.Error(err))
		return
	}
	s.metrics.SweepsRun.WithLabelValues(name).Inc()
	s.logger.Debug("sweep complete", zap.String("target", name))
}
