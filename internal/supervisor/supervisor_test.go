package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/agentd/internal/logging"
)

func TestHealthRegistry_Transitions(t *testing.T) {
	h := NewHealthRegistry()

	h.SetOK("cron")
	entry, ok := h.Get("cron")
	require.True(t, ok)
	assert.Equal(t, StatusOK, entry.Status)
	assert.Empty(t, entry.LastError)
	assert.Zero(t, entry.RestartCount)

	h.SetError("cron", "db locked")
	entry, _ = h.Get("cron")
	assert.Equal(t, StatusError, entry.Status)
	assert.Equal(t, "db locked", entry.LastError)

	// Recovery clears the error but keeps the restart count.
	h.IncrementRestarts("cron")
	h.SetOK("cron")
	entry, _ = h.Get("cron")
	assert.Equal(t, StatusOK, entry.Status)
	assert.Empty(t, entry.LastError)
	assert.Equal(t, 1, entry.RestartCount)
}

func TestHealthRegistry_RestartCountMonotone(t *testing.T) {
	h := NewHealthRegistry()

	prev := 0
	for i := 0; i < 5; i++ {
		n := h.IncrementRestarts("x")
		assert.Greater(t, n, prev)
		prev = n
	}
	assert.Equal(t, 5, prev)
}

func TestHealthRegistry_SnapshotIsCopy(t *testing.T) {
	h := NewHealthRegistry()
	h.SetOK("a")

	snap := h.Snapshot()
	snap["a"] = ComponentHealth{Status: StatusError}

	entry, _ := h.Get("a")
	assert.Equal(t, StatusOK, entry.Status)
}

func TestWriteStateFile(t *testing.T) {
	h := NewHealthRegistry()
	h.SetOK("cron")
	h.SetError("hands", "manifest dir missing")

	path := filepath.Join(t.TempDir(), "daemon_state.json")
	require.NoError(t, h.WriteStateFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var state struct {
		Components map[string]ComponentHealth `json:"components"`
		WrittenAt  time.Time                  `json:"written_at"`
	}
	require.NoError(t, json.Unmarshal(data, &state))
	assert.Equal(t, StatusOK, state.Components["cron"].Status)
	assert.Equal(t, "manifest dir missing", state.Components["hands"].LastError)
	assert.WithinDuration(t, time.Now(), state.WrittenAt, time.Minute)
}

func newTestSupervisor(components []Component, stateFile string) *Supervisor {
	return New(components, NewHealthRegistry(), Options{
		InitialBackoff: time.Second,
		MaxBackoff:     4 * time.Second,
		StateFile:      stateFile,
	}, logging.NewTestLogger().Logger)
}

func TestSupervisor_RestartsFailingComponent(t *testing.T) {
	var starts atomic.Int32
	crashing := Component{
		Name: "crashy",
		Run: func(ctx context.Context) error {
			starts.Add(1)
			return errors.New("kaboom")
		},
	}

	sup := newTestSupervisor([]Component{crashing}, filepath.Join(t.TempDir(), "state.json"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = sup.Run(ctx)
		close(done)
	}()

	// First run fails immediately; after the one-second backoff it starts
	// again.
	require.Eventually(t, func() bool { return starts.Load() >= 2 }, 5*time.Second, 20*time.Millisecond)

	entry, ok := sup.Health().Get("crashy")
	require.True(t, ok)
	assert.GreaterOrEqual(t, entry.RestartCount, 1)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not shut down")
	}
}

func TestSupervisor_RecordsUnexpectedExit(t *testing.T) {
	exited := make(chan struct{}, 1)
	quitter := Component{
		Name: "quitter",
		Run: func(ctx context.Context) error {
			select {
			case exited <- struct{}{}:
			default:
			}
			return nil
		},
	}

	sup := newTestSupervisor([]Component{quitter}, filepath.Join(t.TempDir(), "state.json"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sup.Run(ctx) }()

	<-exited
	require.Eventually(t, func() bool {
		entry, ok := sup.Health().Get("quitter")
		return ok && entry.LastError == "component exited unexpectedly"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSupervisor_ContainsPanics(t *testing.T) {
	var starts atomic.Int32
	panicky := Component{
		Name: "panicky",
		Run: func(ctx context.Context) error {
			starts.Add(1)
			panic("unhandled")
		},
	}

	sup := newTestSupervisor([]Component{panicky}, filepath.Join(t.TempDir(), "state.json"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sup.Run(ctx) }()

	require.Eventually(t, func() bool { return starts.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		entry, ok := sup.Health().Get("panicky")
		return ok && entry.Status == StatusError
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSupervisor_ShutdownRunsHooksAndMarksSupervisor(t *testing.T) {
	blocker := Component{
		Name: "blocker",
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}

	stateFile := filepath.Join(t.TempDir(), "state.json")
	sup := newTestSupervisor([]Component{blocker}, stateFile)

	var hookRan atomic.Bool
	sup.OnShutdown = append(sup.OnShutdown, func() error {
		hookRan.Store(true)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	// Give the components a moment to start, then interrupt.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not shut down")
	}

	assert.True(t, hookRan.Load())

	entry, ok := sup.Health().Get("supervisor")
	require.True(t, ok)
	assert.Equal(t, "shutdown requested", entry.LastError)

	// The final flush wrote the state file.
	_, err := os.Stat(stateFile)
	assert.NoError(t, err)
}

func TestOptions_Normalize(t *testing.T) {
	o := Options{}
	o.normalize()
	assert.Equal(t, time.Second, o.InitialBackoff)
	assert.Equal(t, time.Second, o.MaxBackoff)
	assert.Equal(t, "daemon_state.json", o.StateFile)

	o = Options{InitialBackoff: 10 * time.Second, MaxBackoff: 2 * time.Second}
	o.normalize()
	assert.Equal(t, 10*time.Second, o.MaxBackoff)
}
