package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix namespaces planilla subjects on a shared NATS server.
const SubjectPrefix = "planilla."

const flushTimeout = 5 * time.Second

// NATSPublisher publishes events as NATS messages.
type NATSPublisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(url,
		nats.Name("planilla-outbox"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("NATS publisher connected", "url", conn.ConnectedUrl())
	return &NATSPublisher{conn: conn, logger: logger}, nil
}

// Publish sends the envelope on the subject derived from its routing key and
// flushes so that failures surface to the outbox for retry.
func (p *NATSPublisher) Publish(ctx context.Context, env Envelope) error {
	msg := nats.NewMsg(SubjectPrefix + env.RoutingKey)
	msg.Data = env.Body
	msg.Header.Set(nats.MsgIdHdr, env.EventID)
	msg.Header.Set("Tenant-Id", strconv.FormatInt(env.TenantID, 10))

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	if _, ok := ctx.Deadline(); !ok {
		return p.conn.FlushTimeout(flushTimeout)
	}
	return p.conn.FlushWithContext(ctx)
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}
