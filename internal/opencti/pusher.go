package opencti

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"log/slog"
)

// Pusher publishes STIX bundles to the platform ingest broker over AMQP.
type Pusher struct {
	broker      BrokerConfig
	applicantID string
	logger      *slog.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool
}

// bundleMessage is the envelope the platform workers expect on the push
// queue.
type bundleMessage struct {
	Type        string `json:"type"`
	ApplicantID string `json:"applicant_id"`
	WorkID      string `json:"work_id,omitempty"`
	Update      bool   `json:"update"`
	Content     string `json:"content"`
}

// NewPusher constructs a pusher for the broker configuration handed out at
// registration.
func NewPusher(broker BrokerConfig, applicantID string, logger *slog.Logger) *Pusher {
	return &Pusher{
		broker:      broker,
		applicantID: applicantID,
		logger:      logger,
	}
}

// Connect dials the broker and opens a channel.
func (p *Pusher) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("pusher is closed")
	}
	if p.conn != nil && !p.conn.IsClosed() {
		return nil
	}

	return p.dialLocked()
}

// dialLocked establishes the connection and channel. Callers hold p.mu.
func (p *Pusher) dialLocked() error {
	conn, err := amqp.Dial(p.broker.URI())
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	// Confirm mode so a publish is only reported successful once the broker
	// has taken responsibility for the message.
	if err := channel.Confirm(false); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("enable publisher confirms: %w", err)
	}

	p.conn = conn
	p.channel = channel

	p.logger.Info("connected to ingest broker",
		"host", p.broker.Connection.Host,
		"exchange", p.broker.PushExchange,
		"routing_key", p.broker.RoutingKey(),
	)
	return nil
}

// PushBundle publishes a serialized STIX bundle for the given work. The
// bundle body travels base64-encoded inside the platform's message envelope.
// A dead channel is redialed once before giving up.
func (p *Pusher) PushBundle(ctx context.Context, workID string, bundle []byte, update bool) error {
	message := bundleMessage{
		Type:        "bundle",
		ApplicantID: p.applicantID,
		WorkID:      workID,
		Update:      update,
		Content:     base64.StdEncoding.EncodeToString(bundle),
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal bundle message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("pusher is closed")
	}

	if err := p.publishLocked(ctx, body); err != nil {
		p.logger.Warn("publish failed, reconnecting to broker", "error", err)
		if err := p.dialLocked(); err != nil {
			return err
		}
		if err := p.publishLocked(ctx, body); err != nil {
			return fmt.Errorf("publish bundle after reconnect: %w", err)
		}
	}

	return nil
}

func (p *Pusher) publishLocked(ctx context.Context, body []byte) error {
	if p.channel == nil {
		return fmt.Errorf("not connected")
	}

	confirmation, err := p.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		p.broker.PushExchange,
		p.broker.RoutingKey(),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return err
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("wait for publish confirm: %w", err)
	}
	if !acked {
		return fmt.Errorf("broker rejected bundle publish")
	}
	return nil
}

// Close shuts down the channel and connection.
func (p *Pusher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close pusher: %v", errs)
	}
	return nil
}
