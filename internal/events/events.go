// Package events publishes best-effort observability events (cron and Hand
// dispatches) on an embedded NATS server. SubjectComponentState is defined,
// but no component publishes on it. The daemon runs identically when events
// are disabled or the bus is down; nothing here is load-bearing.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/logging"
)

// Subjects for published events.
const (
	SubjectComponentState = "agentd.component.state"
	SubjectCronDispatch   = "agentd.cron.dispatch"
	SubjectHandDispatch   = "agentd.hand.dispatch"
)

// Event is the published payload.
type Event struct {
	Subject   string         `json:"-"`
	Name      string         `json:"name"`
	Detail    map[string]any `json:"detail,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Bus publishes events in-process. A nil *Bus is a valid no-op publisher,
// so callers never need to branch on whether events are enabled.
type Bus struct {
	server *natsserver.Server
	conn   *nats.Conn
	logger *logging.Logger
}

// Start boots an embedded NATS server on a random local port and connects
// to it. Any failure returns an error; callers treat that as "run without
// events".
func Start(ctx context.Context, logger *logging.Logger) (*Bus, error) {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}
	server, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded nats server: %w", err)
	}
	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		server.Shutdown()
		return nil, fmt.Errorf("embedded nats server did not become ready")
	}

	conn, err := nats.Connect(server.ClientURL())
	if err != nil {
		server.Shutdown()
		return nil, fmt.Errorf("connect to embedded nats server: %w", err)
	}

	log := logger.Named("events")
	log.Info(ctx, "event bus started", zap.String("url", server.ClientURL()))
	return &Bus{server: server, conn: conn, logger: log}, nil
}

// Publish emits one event. Errors are logged and swallowed.
func (b *Bus) Publish(ctx context.Context, subject, name string, detail map[string]any) {
	if b == nil {
		return
	}
	payload, err := json.Marshal(Event{
		Name:      name,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		b.logger.Warn(ctx, "event marshal failed", zap.Error(err))
		return
	}
	if err := b.conn.Publish(subject, payload); err != nil {
		b.logger.Warn(ctx, "event publish failed",
			zap.String("subject", subject), zap.Error(err))
	}
}

// ClientURL returns the embedded server's URL for external subscribers.
func (b *Bus) ClientURL() string {
	if b == nil {
		return ""
	}
	return b.server.ClientURL()
}

// Close drains the connection and stops the embedded server.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
	b.server.Shutdown()
	return nil
}
