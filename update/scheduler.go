package update

import (
	"context"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/git-pkgs/catalog/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// MinFirstDelay keeps the first scheduled check clear of host startup.
const MinFirstDelay = 5 * time.Second

// StateStore persists when the last check started.
type StateStore interface {
	LastCheck() time.Time
	RecordCheck(t time.Time) error
}

// Runner performs one check.
type Runner interface {
	Run(ctx context.Context) (*Report, error)
}

// Scheduler runs checks in the background at the configured frequency.
// At most one check runs at a time.
type Scheduler struct {
	runner  Runner
	store   StateStore
	freq    Frequency
	clock   clock.Clock
	log     zerolog.Logger
	metrics *metrics.Metrics
	onCheck func(*Report, error)

	group singleflight.Group

	mu      sync.Mutex
	ctx     context.Context
	timer   *clock.Timer
	running bool
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithClock sets the clock.
func WithClock(c clock.Clock) SchedulerOption {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(l zerolog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.log = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) SchedulerOption {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// OnCheck registers a function called after every background check.
func OnCheck(fn func(*Report, error)) SchedulerOption {
	return func(s *Scheduler) {
		s.onCheck = fn
	}
}

// NewScheduler creates a scheduler.
func NewScheduler(runner Runner, store StateStore, freq Frequency, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		runner: runner,
		store:  store,
		freq:   freq,
		clock:  clock.New(),
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start schedules the first check. An overdue check still waits
// MinFirstDelay. Start does nothing for Never or when already started.
func (s *Scheduler) Start(ctx context.Context) {
	if s.freq == Never {
		s.log.Debug().Msg("update checks disabled")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.ctx = ctx

	delay := UntilNextCheck(s.freq, s.store.LastCheck(), s.clock.Now())
	if delay < MinFirstDelay {
		delay = MinFirstDelay
	}
	s.scheduleLocked(delay)
}

// Stop cancels the pending check. A check already running finishes.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) scheduleLocked(d time.Duration) {
	s.log.Debug().Dur("in", d).Str("frequency", s.freq.String()).Msg("next update check scheduled")
	s.timer = s.clock.AfterFunc(d, s.fire)
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.mu.Unlock()

	next := s.freq.Period()
	if wait := UntilNextCheck(s.freq, s.store.LastCheck(), s.clock.Now()); wait > 0 {
		// Someone else checked in the meantime.
		next = wait
	} else if ctx.Err() == nil {
		report, err := s.CheckNow(ctx)
		if s.onCheck != nil {
			s.onCheck(report, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && ctx.Err() == nil {
		s.scheduleLocked(next)
	}
}

// CheckNow runs a check immediately. The check time is recorded before the
// check starts, so a failing check is not retried until the next period.
// Concurrent calls share one check.
func (s *Scheduler) CheckNow(ctx context.Context) (*Report, error) {
	v, err, shared := s.group.Do("check", func() (any, error) {
		now := s.clock.Now()
		if err := s.store.RecordCheck(now); err != nil {
			s.log.Warn().Err(err).Msg("recording update check time")
		}
		return s.runner.Run(ctx)
	})
	if shared {
		s.log.Debug().Msg("joined running update check")
	}

	result := "ok"
	report, _ := v.(*Report)
	switch {
	case err != nil:
		result = "error"
		s.log.Error().Err(err).Msg("update check failed")
	case report != nil && report.HasFindings():
		result = "updates"
	}
	s.metrics.RecordCheck(result)
	return report, err
}
