package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/logging"
)

// stateFlushInterval is how often the health registry is flushed to disk.
const stateFlushInterval = 5 * time.Second

// Component is a long-running unit of the daemon. Run blocks until the
// component stops; returning nil before the context is cancelled counts as
// an unexpected exit and triggers a restart.
type Component struct {
	Name string
	Run  func(ctx context.Context) error
}

// Options configures the supervisor's backoff bounds and state file.
type Options struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	StateFile      string
}

func (o *Options) normalize() {
	if o.InitialBackoff < time.Second {
		o.InitialBackoff = time.Second
	}
	if o.MaxBackoff < o.InitialBackoff {
		o.MaxBackoff = o.InitialBackoff
	}
	if o.StateFile == "" {
		o.StateFile = "daemon_state.json"
	}
}

// Supervisor owns the component runners, the health registry, and the
// periodic state flush.
type Supervisor struct {
	components []Component
	health     *HealthRegistry
	opts       Options
	logger     *logging.Logger

	// OnShutdown hooks run, in order, after the supervised tasks have been
	// cancelled but before Run returns (e.g. closing MCP clients).
	OnShutdown []func() error
}

// New creates a supervisor over the given components.
func New(components []Component, health *HealthRegistry, opts Options, logger *logging.Logger) *Supervisor {
	opts.normalize()
	return &Supervisor{
		components: components,
		health:     health,
		opts:       opts,
		logger:     logger.Named("supervisor"),
	}
}

// Health returns the registry.
func (s *Supervisor) Health() *HealthRegistry {
	return s.health
}

// Run spawns one supervising task per component plus the state-flush task,
// then blocks until the context is cancelled (interrupt signal). On
// shutdown it records the reason, runs the shutdown hooks, and waits for
// all supervised tasks to terminate.
func (s *Supervisor) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, component := range s.components {
		wg.Add(1)
		go func(c Component) {
			defer wg.Done()
			s.supervise(runCtx, c)
		}(component)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.flushLoop(runCtx)
	}()

	<-ctx.Done()
	s.logger.Info(ctx, "shutdown requested")
	s.health.SetError("supervisor", "shutdown requested")

	for _, hook := range s.OnShutdown {
		if err := hook(); err != nil {
			s.logger.Warn(ctx, "shutdown hook failed", zap.Error(err))
		}
	}

	cancel()
	wg.Wait()

	if err := s.health.WriteStateFile(s.opts.StateFile); err != nil {
		s.logger.Warn(ctx, "final state flush failed", zap.Error(err))
	}
	return ctx.Err()
}

// supervise runs one component in a restart loop with exponential backoff.
func (s *Supervisor) supervise(ctx context.Context, c Component) {
	ctx = logging.WithComponent(ctx, c.Name)
	backoff := s.opts.InitialBackoff

	for {
		s.health.SetOK(c.Name)
		s.logger.Info(ctx, "component starting", zap.String("component", c.Name))

		err := s.runComponent(ctx, c)

		if ctx.Err() != nil {
			s.logger.Info(ctx, "component stopped for shutdown", zap.String("component", c.Name))
			return
		}

		if err != nil {
			s.health.SetError(c.Name, err.Error())
			s.logger.Error(ctx, "component failed",
				zap.String("component", c.Name), zap.Error(err))
		} else {
			s.health.SetError(c.Name, "component exited unexpectedly")
			s.logger.Error(ctx, "component exited unexpectedly", zap.String("component", c.Name))
		}

		restarts := s.health.IncrementRestarts(c.Name)
		s.logger.Warn(ctx, "restarting component",
			zap.String("component", c.Name),
			zap.Int("restart_count", restarts),
			zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > s.opts.MaxBackoff {
			backoff = s.opts.MaxBackoff
		}
	}
}

// runComponent contains panics so a crashing component is restarted like
// any other failure instead of taking the process down.
func (s *Supervisor) runComponent(ctx context.Context, c Component) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return c.Run(ctx)
}

// flushLoop serializes the health registry to the state file every five
// seconds.
func (s *Supervisor) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(stateFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.health.WriteStateFile(s.opts.StateFile); err != nil {
				s.logger.Warn(ctx, "state flush failed", zap.Error(err))
			}
		}
	}
}
