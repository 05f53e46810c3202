package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	TaskThumbnails = "thumbnails"
	TaskOrphans    = "orphans"
)

var ErrUnknownTask = errors.New("scheduler: unknown task")

type Task interface {
	Run(ctx context.Context) error
}

// RunGuard extends the scheduler's in-process exclusion across processes.
// Acquire reports ok=false when another holder owns the guard.
type RunGuard interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// Scheduler fires registered tasks on cron schedules. At most one task runs
// at a time process-wide: a run that finds another in flight is skipped, not
// queued.
type Scheduler struct {
	cron   *cron.Cron
	guard  RunGuard
	log    zerolog.Logger
	tasks  map[string]Task
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(guard RunGuard, log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cronLogger{log: log}),
		cron.WithChain(cron.Recover(cronLogger{log: log})),
	)
	return &Scheduler{
		cron:   c,
		guard:  guard,
		log:    log,
		tasks:  make(map[string]Task),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register adds task under name. An empty spec registers it for Trigger only.
func (s *Scheduler) Register(name, spec string, task Task) error {
	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("scheduler: task %q already registered", name)
	}
	s.tasks[name] = task
	if spec == "" {
		return nil
	}
	if _, err := s.cron.AddFunc(spec, func() { s.run(name) }); err != nil {
		delete(s.tasks, name)
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("entries", len(s.cron.Entries())).Msg("scheduler started")
}

// Trigger runs name immediately under the same exclusion as scheduled runs.
// It reports whether the task actually ran.
func (s *Scheduler) Trigger(name string) (bool, error) {
	if _, ok := s.tasks[name]; !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return s.run(name)
}

// Stop cancels the in-flight run, if any, and waits up to timeout for it to
// wind down.
func (s *Scheduler) Stop(timeout time.Duration) {
	stopped := s.cron.Stop()
	s.cancel()

	select {
	case <-stopped.Done():
		s.log.Info().Msg("scheduler stopped")
	case <-time.After(timeout):
		s.log.Warn().Dur("timeout", timeout).Msg("scheduler stop timed out")
	}

	// Triggered runs are not tracked by cron; taking the lock waits for them.
	locked := make(chan struct{})
	go func() {
		s.mu.Lock()
		close(locked)
		s.mu.Unlock()
	}()
	select {
	case <-locked:
	case <-time.After(timeout):
	}
}

func (s *Scheduler) run(name string) (bool, error) {
	log := s.log.With().Str("task", name).Logger()

	if !s.mu.TryLock() {
		log.Warn().Msg("previous run still in flight, skipping")
		return false, nil
	}
	defer s.mu.Unlock()

	if err := s.ctx.Err(); err != nil {
		return false, err
	}

	if s.guard != nil {
		release, ok, err := s.guard.Acquire(s.ctx)
		if err != nil {
			log.Error().Err(err).Msg("acquire run guard failed, skipping")
			return false, err
		}
		if !ok {
			log.Info().Msg("run guard held elsewhere, skipping")
			return false, nil
		}
		defer release()
	}

	start := time.Now()
	err := s.tasks[name].Run(s.ctx)
	if err != nil {
		log.Error().Err(err).Dur("took", time.Since(start)).Msg("task failed")
		return true, err
	}
	log.Debug().Dur("took", time.Since(start)).Msg("task finished")
	return true, nil
}
