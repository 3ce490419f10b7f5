// Package scheduler drives the poll adapters and the dispatcher on
// fixed intervals, with an overlap guard per runner and a global
// consecutive-error circuit breaker.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/observability"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/storage"
)

// EnabledKey is the persisted "should be running" flag. A graceful
// shutdown leaves it untouched so a restart resumes scheduling; a
// manual stop clears it so a restart does not surprise-resume.
const EnabledKey = "scheduler:enabled"

// Runner is one unit of scheduled work.
type Runner interface {
	Name() string
	Run(ctx context.Context) error
}

// RunnerState is the lifecycle state of one registered runner.
type RunnerState string

const (
	StateIdle    RunnerState = "idle"
	StateRunning RunnerState = "running"
)

type entry struct {
	runner   Runner
	interval time.Duration
	running  atomic.Bool
	cancel   context.CancelFunc
}

// Status is a point-in-time snapshot of the scheduler.
type Status struct {
	Running           bool                   `json:"running"`
	Tripped           bool                   `json:"tripped"`
	ConsecutiveErrors int                    `json:"consecutive_errors"`
	Runners           map[string]RunnerState `json:"runners"`
}

// Scheduler runs registered runners on independent intervals.
type Scheduler struct {
	settings     storage.SettingStore
	errorCeiling int
	metrics      *observability.Metrics
	logger       zerolog.Logger

	mu       sync.Mutex
	entries  map[string]*entry
	order    []string
	wg       sync.WaitGroup
	started  bool
	errCount int
	tripped  bool
}

// Options configures a Scheduler.
type Options struct {
	Settings     storage.SettingStore
	ErrorCeiling int
	Metrics      *observability.Metrics
	Logger       zerolog.Logger
}

// New creates a Scheduler from options.
func New(opts Options) *Scheduler {
	if opts.ErrorCeiling <= 0 {
		opts.ErrorCeiling = 5
	}
	return &Scheduler{
		settings:     opts.Settings,
		errorCeiling: opts.ErrorCeiling,
		metrics:      opts.Metrics,
		logger:       opts.Logger.With().Str("component", "scheduler").Logger(),
		entries:      make(map[string]*entry),
	}
}

// Register adds a runner. Must be called before Start.
func (s *Scheduler) Register(r Runner, interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler already started")
	}
	if _, dup := s.entries[r.Name()]; dup {
		return fmt.Errorf("runner %q already registered", r.Name())
	}
	if interval <= 0 {
		return fmt.Errorf("runner %q has non-positive interval", r.Name())
	}
	s.entries[r.Name()] = &entry{runner: r, interval: interval}
	s.order = append(s.order, r.Name())
	return nil
}

// Start launches all runner loops and persists the enabled flag.
// Idempotent: starting a started scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.errCount = 0
	s.tripped = false
	s.metrics.BreakerTripped.Set(0)
	s.metrics.ConsecutiveErrs.Set(0)
	for _, name := range s.order {
		e := s.entries[name]
		loopCtx, cancel := context.WithCancel(context.Background())
		e.cancel = cancel
		s.wg.Add(1)
		go s.loop(loopCtx, e)
	}
	s.mu.Unlock()

	if err := s.settings.Set(ctx, EnabledKey, "true"); err != nil {
		return fmt.Errorf("persist enabled flag: %w", err)
	}
	s.logger.Info().Int("runners", len(s.order)).Msg("scheduler started")
	return nil
}

// ResumeIfEnabled starts the scheduler only when the persisted flag
// says it should be running. Called once at process startup.
func (s *Scheduler) ResumeIfEnabled(ctx context.Context) error {
	v, err := s.settings.Get(ctx, EnabledKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load enabled flag: %w", err)
	}
	if v != "true" {
		return nil
	}
	return s.Start(ctx)
}

// Stop halts all loops and persists the disabled flag. Idempotent, and
// waits for any in-flight run to finish so no runner is left mid-run.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.halt()
	if err := s.settings.Set(ctx, EnabledKey, "false"); err != nil {
		return fmt.Errorf("persist disabled flag: %w", err)
	}
	s.logger.Info().Msg("scheduler stopped")
	return nil
}

// Shutdown halts all loops without touching the persisted flag, so a
// process restart resumes scheduling automatically.
func (s *Scheduler) Shutdown() {
	s.halt()
	s.logger.Info().Msg("scheduler shut down")
}

func (s *Scheduler) halt() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	for _, e := range s.entries {
		if e.cancel != nil {
			e.cancel()
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// RunNow triggers one immediate run of a runner, bypassing its interval
// and the breaker. The overlap guard still applies.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown runner %q", name)
	}
	return s.runOnce(ctx, e, true)
}

// ResetErrors clears the consecutive-error count and re-arms a tripped
// breaker. The external reset the breaker requires.
func (s *Scheduler) ResetErrors() {
	s.mu.Lock()
	s.errCount = 0
	s.tripped = false
	s.mu.Unlock()
	s.metrics.BreakerTripped.Set(0)
	s.metrics.ConsecutiveErrs.Set(0)
	s.logger.Info().Msg("error counter reset, breaker re-armed")
}

// Status reports the current scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Running:           s.started,
		Tripped:           s.tripped,
		ConsecutiveErrors: s.errCount,
		Runners:           make(map[string]RunnerState, len(s.entries)),
	}
	for name, e := range s.entries {
		state := StateIdle
		if e.running.Load() {
			state = StateRunning
		}
		st.Runners[name] = state
	}
	return st
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	defer s.wg.Done()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.runOnce(ctx, e, false); err != nil {
				s.logger.Warn().Err(err).Str("runner", e.runner.Name()).Msg("scheduled run failed")
			}
		}
	}
}

// runOnce executes a runner if the guard and breaker allow it. forced
// runs (RunNow) ignore the breaker but never the overlap guard.
func (s *Scheduler) runOnce(ctx context.Context, e *entry, forced bool) error {
	if !forced {
		s.mu.Lock()
		tripped := s.tripped
		s.mu.Unlock()
		if tripped {
			return nil
		}
	}

	// Idle → Running, refused (not queued) when already running.
	if !e.running.CompareAndSwap(false, true) {
		s.metrics.DroppedTicks.WithLabelValues(e.runner.Name()).Inc()
		s.logger.Debug().Str("runner", e.runner.Name()).Msg("tick dropped, run in flight")
		return nil
	}
	defer e.running.Store(false)

	err := e.runner.Run(ctx)
	if err != nil {
		s.metrics.AdapterRuns.WithLabelValues(e.runner.Name(), "error").Inc()
		s.noteFailure(e.runner.Name(), err)
		return err
	}

	s.metrics.AdapterRuns.WithLabelValues(e.runner.Name(), "ok").Inc()
	s.metrics.LastSuccessfulPoll.WithLabelValues(e.runner.Name()).Set(float64(time.Now().Unix()))
	s.noteSuccess()
	return nil
}

func (s *Scheduler) noteFailure(runner string, err error) {
	s.mu.Lock()
	s.errCount++
	count := s.errCount
	justTripped := !s.tripped && count >= s.errorCeiling
	if justTripped {
		s.tripped = true
	}
	s.mu.Unlock()

	s.metrics.ConsecutiveErrs.Set(float64(count))
	if justTripped {
		s.metrics.BreakerTripped.Set(1)
		s.logger.Error().Err(err).
			Str("runner", runner).
			Int("consecutive_errors", count).
			Msg("error ceiling reached, scheduling halted until reset")
	}
}

func (s *Scheduler) noteSuccess() {
	s.mu.Lock()
	s.errCount = 0
	s.mu.Unlock()
	s.metrics.ConsecutiveErrs.Set(0)
}
