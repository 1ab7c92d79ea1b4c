package hands

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/cron"
	"github.com/fyrsmithlabs/agentd/internal/logging"
)

const (
	// checkInterval is how often the loop looks for due hands.
	checkInterval = time.Minute
	// reloadInterval is how often manifests are re-discovered from disk,
	// independent of filesystem events.
	reloadInterval = time.Hour
)

// Runner executes one Hand and reports the outcome. The production runner
// delegates to the agent endpoint via Bridge.
type Runner interface {
	Run(ctx context.Context, hand *Hand) (*ExecutionResult, error)
}

// BridgeRunner is the production Runner backed by the agent endpoint.
type BridgeRunner struct {
	bridge *Bridge
}

// NewBridgeRunner wraps a Bridge as a Runner.
func NewBridgeRunner(bridge *Bridge) *BridgeRunner {
	return &BridgeRunner{bridge: bridge}
}

func (r *BridgeRunner) Run(ctx context.Context, hand *Hand) (*ExecutionResult, error) {
	resp, err := r.bridge.Execute(ctx, BuildRequest(hand, nil))
	if err != nil {
		return nil, err
	}
	if resp.Result != nil {
		return resp.Result, nil
	}
	return &ExecutionResult{Success: resp.Success, Error: resp.Error}, nil
}

// Scheduler discovers Hand manifests, keeps a next-run index, and spawns
// one task per due hand every minute.
type Scheduler struct {
	dir    string
	runner Runner
	logger *logging.Logger

	mu       sync.RWMutex
	hands    map[string]*Hand
	nextRuns map[string]time.Time

	shutdown chan struct{}
	done     chan struct{}
}

// NewScheduler builds a scheduler over the manifest directory.
func NewScheduler(dir string, runner Runner, logger *logging.Logger) *Scheduler {
	return &Scheduler{
		dir:      dir,
		runner:   runner,
		logger:   logger.Named("hands"),
		hands:    make(map[string]*Hand),
		nextRuns: make(map[string]time.Time),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Reload re-discovers manifests. Existing next-run times are preserved for
// hands that were already loaded; new hands get a fresh next run computed
// from now. Manifests that fail to parse are skipped with a warning.
func (s *Scheduler) Reload(ctx context.Context) int {
	discovered, errs := DiscoverHands(s.dir)
	for _, err := range errs {
		s.logger.Warn(ctx, "skipping hand manifest", zap.Error(err))
	}

	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.nextRuns
	s.hands = make(map[string]*Hand, len(discovered))
	s.nextRuns = make(map[string]time.Time, len(discovered))

	for _, hand := range discovered {
		next, ok := existing[hand.ID]
		if !ok {
			computed, err := cron.NextRun(hand.Schedule, now)
			if err != nil {
				s.logger.Warn(ctx, "skipping hand with invalid schedule",
					zap.String("hand_id", hand.ID),
					zap.String("schedule", hand.Schedule),
					zap.Error(err))
				continue
			}
			next = computed
			s.logger.Info(ctx, "loaded hand",
				zap.String("hand_id", hand.ID),
				zap.String("agent", hand.Agent),
				zap.Time("next_run", next))
		}
		s.hands[hand.ID] = hand
		s.nextRuns[hand.ID] = next
	}

	return len(s.hands)
}

// ListHands returns the loaded hands.
func (s *Scheduler) ListHands() []*Hand {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Hand, 0, len(s.hands))
	for _, h := range s.hands {
		out = append(out, h)
	}
	return out
}

// GetHand returns one hand by id.
func (s *Scheduler) GetHand(id string) (*Hand, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hands[id]
	return h, ok
}

// NextRunFor returns the scheduled next run for a hand.
func (s *Scheduler) NextRunFor(id string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.nextRuns[id]
	return t, ok
}

// Run executes the scheduler loop until shutdown, for use as a supervised
// component. A filesystem watch on the manifest directory supplements the
// hourly reload with near-real-time pickup.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.done)

	s.Reload(ctx)

	watchEvents := s.watchManifests(ctx)

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	reload := time.NewTicker(reloadInterval)
	defer reload.Stop()

	for {
		select {
		case <-s.shutdown:
			s.logger.Info(ctx, "hands scheduler shutting down")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-reload.C:
			s.Reload(ctx)
		case <-watchEvents:
			s.Reload(ctx)
		case <-ticker.C:
			s.dispatchDue(ctx)
		}
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

// watchManifests starts an fsnotify watch on the manifest directory,
// returning a debounced event channel. Watch failures degrade to the
// hourly poll.
func (s *Scheduler) watchManifests(ctx context.Context) <-chan struct{} {
	events := make(chan struct{}, 1)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn(ctx, "manifest watch unavailable; relying on hourly reload", zap.Error(err))
		return events
	}
	if err := watcher.Add(s.dir); err != nil {
		s.logger.Warn(ctx, "cannot watch manifest directory; relying on hourly reload",
			zap.String("dir", s.dir), zap.Error(err))
		_ = watcher.Close()
		return events
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-s.shutdown:
				return
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case events <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn(ctx, "manifest watch error", zap.Error(err))
			}
		}
	}()

	return events
}

// dispatchDue spawns one task per due hand. After the run returns, the
// hand's next run is recomputed from the execution's start time.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	now := time.Now().UTC()

	s.mu.RLock()
	var due []*Hand
	for id, next := range s.nextRuns {
		if !next.After(now) {
			if hand, ok := s.hands[id]; ok {
				due = append(due, hand)
			}
		}
	}
	s.mu.RUnlock()

	for _, hand := range due {
		go s.runHand(ctx, hand)
	}
}

func (s *Scheduler) runHand(ctx context.Context, hand *Hand) {
	startedAt := time.Now().UTC()
	ctx = logging.WithRunID(ctx, uuid.NewString())
	logger := s.logger.With(zap.String("hand_id", hand.ID))
	logger.Info(ctx, "executing scheduled hand")

	result, err := s.runner.Run(ctx, hand)
	switch {
	case err != nil:
		logger.Error(ctx, "hand execution failed", zap.Error(err))
	case result.Success:
		logger.Info(ctx, "hand execution completed",
			zap.Int("iterations", result.Iterations),
			zap.Int("tokens_used", result.TokensUsed))
	default:
		logger.Warn(ctx, "hand execution reported failure", zap.String("error", result.Error))
	}

	next, nerr := cron.NextRun(hand.Schedule, startedAt)
	if nerr != nil {
		s.logger.Error(ctx, "cannot reschedule hand",
			zap.String("hand_id", hand.ID), zap.Error(nerr))
		return
	}

	s.mu.Lock()
	if _, still := s.hands[hand.ID]; still {
		s.nextRuns[hand.ID] = next
	}
	s.mu.Unlock()

	s.logger.Debug(ctx, "scheduled next hand run",
		zap.String("hand_id", hand.ID), zap.Time("next_run", next))
}
