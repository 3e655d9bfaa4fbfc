package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Func is one unit of background work. It returns how many items it processed.
type Func func(ctx context.Context) (int, error)

// ErrUnknownJob is returned by RunNow for a name that was never added.
var ErrUnknownJob = errors.New("unknown job")

// Scheduler runs named jobs on cron schedules. Overlapping runs of the same
// job are skipped and panics are recovered.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	metrics *Metrics
	timeout time.Duration

	mu   sync.Mutex
	jobs map[string]Func
	ctx  context.Context
	stop context.CancelFunc
}

// NewScheduler creates a scheduler. timeout bounds each run (0 = no bound).
func NewScheduler(logger *slog.Logger, metrics *Metrics, timeout time.Duration) *Scheduler {
	cl := cronLogger{logger: logger}
	ctx, stop := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithLogger(cl), cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		)),
		logger:  logger,
		metrics: metrics,
		timeout: timeout,
		jobs:    make(map[string]Func),
		ctx:     ctx,
		stop:    stop,
	}
}

// Add schedules fn under name using a standard cron spec or a descriptor
// such as "@every 10m".
func (s *Scheduler) Add(name, spec string, fn Func) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("job %q already scheduled", name)
	}
	if _, err := s.cron.AddFunc(spec, func() { _ = s.run(s.ctx, name, fn) }); err != nil {
		return fmt.Errorf("schedule %q: %w", name, err)
	}
	s.jobs[name] = fn
	return nil
}

// RunNow runs a scheduled job once, synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	fn, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, name, fn)
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(ctx context.Context, name string, fn Func) error {
	return Run(ctx, s.logger, s.metrics, name, s.timeout, fn)
}

// Run executes fn once with logging and metrics. It is used by the scheduler
// and by one-shot commands.
func Run(ctx context.Context, logger *slog.Logger, metrics *Metrics, name string, timeout time.Duration, fn Func) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	n, err := fn(ctx)
	elapsed := time.Since(start)
	metrics.ObserveJobDuration(name, elapsed.Seconds())

	if err != nil {
		metrics.IncJobsTotal(name, StatusFailure)
		metrics.IncJobErrors(name, errorType(err))
		logger.ErrorContext(ctx, "job failed", "job", name, "duration_ms", elapsed.Milliseconds(), "error", err)
		return err
	}
	metrics.IncJobsTotal(name, StatusSuccess)
	metrics.AddItems(name, n)
	logger.InfoContext(ctx, "job completed", "job", name, "items", n, "duration_ms", elapsed.Milliseconds())
	return nil
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
