package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

const (
	// DefaultSchedule runs a sweep every 30 seconds.
	DefaultSchedule = "@every 30s"
	// DefaultHeartbeatTimeout is how long a device may stay silent before it
	// is marked offline.
	DefaultHeartbeatTimeout = 90 * time.Second

	stopTimeout = 5 * time.Second
)

// DeviceStore marks silent devices offline.
type DeviceStore interface {
	MarkStaleOffline(ctx context.Context, before time.Time) (int, error)
}

// SessionPruner drops idle conversations.
type SessionPruner interface {
	Prune(ctx context.Context) (int, error)
}

// Options configures a Sweeper.
type Options struct {
	Schedule         string
	HeartbeatTimeout time.Duration
	Logger           *slog.Logger
	Now              func() time.Time
}

// Stats reports what one sweep changed.
type Stats struct {
	DevicesOffline int
	SessionsPruned int
}

// Sweeper periodically marks stale devices offline and prunes idle sessions.
type Sweeper struct {
	devices  DeviceStore
	sessions SessionPruner
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time

	cron *rcron.Cron

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Sweeper. Either collaborator may be nil.
func New(devices DeviceStore, sessions SessionPruner, opts Options) (*Sweeper, error) {
	schedule := opts.Schedule
	if schedule == "" {
		schedule = DefaultSchedule
	}
	timeout := opts.HeartbeatTimeout
	if timeout <= 0 {
		timeout = DefaultHeartbeatTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Sweeper{
		devices:  devices,
		sessions: sessions,
		timeout:  timeout,
		logger:   logger.With("component", "sweeper"),
		now:      now,
		cron:     rcron.New(),
		ctx:      context.Background(),
	}
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return nil, fmt.Errorf("sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Sweep runs one pass. Failures of one step do not skip the other.
func (s *Sweeper) Sweep(ctx context.Context) (Stats, error) {
	var stats Stats
	var errs []error
	if s.devices != nil {
		n, err := s.devices.MarkStaleOffline(ctx, s.now().Add(-s.timeout))
		if err != nil {
			errs = append(errs, fmt.Errorf("mark stale devices: %w", err))
		}
		stats.DevicesOffline = n
	}
	if s.sessions != nil {
		n, err := s.sessions.Prune(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("prune sessions: %w", err))
		}
		stats.SessionsPruned = n
	}
	return stats, errors.Join(errs...)
}

func (s *Sweeper) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	stats, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error("sweep failed", "error", err)
	}
	if stats.DevicesOffline > 0 || stats.SessionsPruned > 0 {
		s.logger.Info("sweep finished", "devices_offline", stats.DevicesOffline, "sessions_pruned", stats.SessionsPruned)
	}
}

// Start schedules sweeps until ctx is done or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.ctx = runCtx
	s.cancel = cancel
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("sweeper started", "heartbeat_timeout", s.timeout)
	go func() {
		<-runCtx.Done()
		s.Stop()
	}()
}

// Stop halts scheduling and waits briefly for a running sweep.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()

	select {
	case <-s.cron.Stop().Done():
	case <-time.After(stopTimeout):
		s.logger.Warn("sweeper stop timed out waiting for a running sweep")
	}
	s.logger.Info("sweeper stopped")
}
