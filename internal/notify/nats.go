package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// SubjectPrefix prefixes the NATS subject of every event, e.g. tutoring.session.accepted.
const SubjectPrefix = "tutoring."

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes notifications as JSON events for other services.
type NATSNotifier struct {
	conn   publisher
	logger *zap.Logger
}

func NewNATSNotifier(conn publisher, logger *zap.Logger) *NATSNotifier {
	return &NATSNotifier{conn: conn, logger: logger}
}

// ConnectNATS opens a connection that reconnects on its own.
func ConnectNATS(url string, logger *zap.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("tutoring-scheduler"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return conn, nil
}

func (n *NATSNotifier) Notify(ctx context.Context, notification Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := SubjectPrefix + string(notification.Kind)
	if err := n.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	n.logger.Debug("Event published", zap.String("subject", subject))
	return nil
}
