package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/telemetry"
)

// TaskFunc is a unit of scheduled work. The context is cancelled when the scheduler stops.
type TaskFunc func(ctx context.Context) error

// Scheduler runs named tasks on cron schedules. A task never overlaps with itself.
type Scheduler struct {
	cron    *cron.Cron
	logger  *zap.Logger
	metrics *telemetry.Metrics
	timeout time.Duration

	mu     sync.Mutex
	tasks  map[string]*task
	ctx    context.Context
	cancel context.CancelFunc
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithMetrics records per-run results.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(s *Scheduler) { s.metrics = metrics }
}

// WithTaskTimeout bounds each task run.
func WithTaskTimeout(timeout time.Duration) Option {
	return func(s *Scheduler) { s.timeout = timeout }
}

// New builds a scheduler. Schedules accept the standard five-field syntax and descriptors such as "@every 5m".
func New(logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	cronLogger := zapCronLogger{logger: logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		logger: logger,
		tasks:  make(map[string]*task),
		ctx:    ctx,
		cancel: cancel,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Register adds a named task and enables it. Registering the same name twice is an error.
func (s *Scheduler) Register(name, spec string, fn TaskFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("task %s already registered", name)
	}

	t := &task{spec: spec, fn: fn}
	if err := s.enable(name, t); err != nil {
		return err
	}

	s.tasks[name] = t
	s.logger.Info("scheduled task", zap.String("task", name), zap.String("schedule", spec))
	return nil
}

// StartTask re-enables a task previously stopped with StopTask.
func (s *Scheduler) StartTask(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[name]
	if !ok {
		return fmt.Errorf("task %s not registered", name)
	}
	if t.enabled {
		return nil
	}
	return s.enable(name, t)
}

// StopTask disables future activations of a task. A run already in flight completes.
func (s *Scheduler) StopTask(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[name]
	if !ok {
		return fmt.Errorf("task %s not registered", name)
	}
	if !t.enabled {
		return nil
	}

	s.cron.Remove(t.entry)
	t.enabled = false
	s.logger.Info("task stopped", zap.String("task", name))
	return nil
}

func (s *Scheduler) enable(name string, t *task) error {
	id, err := s.cron.AddFunc(t.spec, func() { s.run(name, t.fn) })
	if err != nil {
		return fmt.Errorf("schedule task %s (%q): %w", name, t.spec, err)
	}
	t.entry = id
	t.enabled = true
	return nil
}

// RunNow executes a registered task synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("task %s not registered", name)
	}
	return s.execute(ctx, name, t.fn)
}

func (s *Scheduler) run(name string, fn TaskFunc) {
	if err := s.execute(s.ctx, name, fn); err != nil {
		s.logger.Error("scheduled task failed", zap.String("task", name), zap.Error(err))
	}
}

func (s *Scheduler) execute(ctx context.Context, name string, fn TaskFunc) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	s.metrics.ObserveSchedulerRun(name, err)

	s.logger.Debug("task finished",
		zap.String("task", name),
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("ok", err == nil),
	)
	return err
}

// Tasks lists enabled task names with their next activation.
func (s *Scheduler) Tasks() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]time.Time, len(s.tasks))
	for name, t := range s.tasks {
		if t.enabled {
			out[name] = s.cron.Entry(t.entry).Next
		}
	}
	return out
}

// Start begins dispatching tasks in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Shutdown stops new activations, cancels running tasks and waits for them up to ctx's deadline.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	stopped := s.cron.Stop()
	s.cancel()

	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for scheduled tasks: %w", ctx.Err())
	}
}

type task struct {
	spec    string
	fn      TaskFunc
	entry   cron.EntryID
	enabled bool
}

type zapCronLogger struct {
	logger *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
