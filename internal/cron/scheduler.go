package cron

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/logging"
)

// tickInterval is how often the loop polls for due jobs.
const tickInterval = time.Second

// Executor runs one due job's command and reports whether it succeeded,
// along with any output to record. Cron commands are free text; the
// injector decides what they mean.
type Executor func(ctx context.Context, command string) (bool, string)

// Scheduler drives the dispatch loop over a Store. Jobs missed while the
// process was down run once on the next tick; a job's own reschedule
// happens only after its dispatch returns.
type Scheduler struct {
	store    *Store
	executor Executor
	logger   *logging.Logger
	shutdown chan struct{}
	done     chan struct{}
}

// NewScheduler wires the loop to a store and an executor closure.
func NewScheduler(store *Store, executor Executor, logger *logging.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		executor: executor,
		logger:   logger.Named("cron"),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start spawns the loop. Shutdown is cooperative via Stop or context
// cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	go s.run(ctx)
}

// Run executes the loop in the calling goroutine until shutdown, for use
// as a supervised component.
func (s *Scheduler) Run(ctx context.Context) error {
	s.run(ctx)
	return ctx.Err()
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			s.logger.Info(ctx, "cron scheduler shutting down")
			return
		case <-ctx.Done():
			s.logger.Info(ctx, "cron scheduler context cancelled")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick dispatches every due job in next_run order. Dispatch is spawned per
// job so a slow command does not stall the loop; the reschedule runs in the
// same goroutine, after the dispatch returns.
func (s *Scheduler) tick(ctx context.Context) {
	due, err := s.store.DueTasks(time.Now())
	if err != nil {
		s.logger.Error(ctx, "failed to get due tasks", zap.Error(err))
		return
	}

	for i := range due {
		job := due[i]
		go func() {
			s.logger.Info(ctx, "running scheduled task", zap.String("task_id", job.ID))
			success, output := s.executor(ctx, job.Command)
			if err := s.store.RescheduleAfterRun(&job, success, output); err != nil {
				s.logger.Error(ctx, "failed to reschedule task",
					zap.String("task_id", job.ID), zap.Error(err))
				return
			}
			s.logger.Debug(ctx, "rescheduled task after run",
				zap.String("task_id", job.ID), zap.Bool("success", success))
		}()
	}
}

// Stop signals the loop to exit and waits for it.
func (s *Scheduler) Stop() {
	select {
	case <-s.shutdown:
	default:
		close(s.shutdown)
	}
	<-s.done
}
