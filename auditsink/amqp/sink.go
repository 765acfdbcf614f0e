// Package amqp publishes sessionctl audit events to RabbitMQ.
//
// Events are JSON encoded and marked persistent. With no exchange configured
// they go to a durable queue through the default exchange; with an exchange
// they are routed by event type, e.g. "sessionctl.audit.sign_in_success".
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/edudashpro/sessionctl"
)

const (
	DefaultQueue       = "sessionctl.audit"
	routingKeyPrefix   = "sessionctl.audit."
	defaultPublishWait = 5 * time.Second
)

// Config selects where events are published.
type Config struct {
	URL string
	// Queue is declared durable and used when Exchange is empty.
	Queue string
	// Exchange, when set, is declared as a durable topic exchange.
	Exchange       string
	PublishTimeout time.Duration
}

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Sink implements [sessionctl.AuditSink].
type Sink struct {
	pub      publisher
	exchange string
	queue    string
	timeout  time.Duration
	logger   *slog.Logger

	published atomic.Uint64
	failed    atomic.Uint64

	closeOnce sync.Once
	closeFn   func() error
}

// Dial connects to the broker, declares the destination and returns a Sink.
func Dial(cfg Config, logger *slog.Logger) (*Sink, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp url required")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := declare(ch, cfg); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	s := newSink(ch, cfg, logger)
	s.closeFn = func() error {
		return errors.Join(ch.Close(), conn.Close())
	}
	return s, nil
}

func declare(ch *amqp.Channel, cfg Config) error {
	if cfg.Exchange != "" {
		if err := ch.ExchangeDeclare(
			cfg.Exchange, // name
			"topic",      // kind
			true,         // durable
			false,        // autoDelete
			false,        // internal
			false,        // noWait
			nil,          // args
		); err != nil {
			return fmt.Errorf("rabbitmq exchange declare: %w", err)
		}
		return nil
	}

	queue := cfg.Queue
	if queue == "" {
		queue = DefaultQueue
	}
	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	); err != nil {
		return fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	return nil
}

func newSink(pub publisher, cfg Config, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	queue := cfg.Queue
	if queue == "" {
		queue = DefaultQueue
	}
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishWait
	}
	return &Sink{
		pub:      pub,
		exchange: cfg.Exchange,
		queue:    queue,
		timeout:  timeout,
		logger:   logger.With("component", "audit_amqp"),
	}
}

// Emit publishes event. Failures are logged and counted, never returned.
func (s *Sink) Emit(ctx context.Context, event sessionctl.AuditEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		s.failed.Add(1)
		s.logger.Error("audit event marshal failed", "event_type", event.EventType, "error", err)
		return
	}

	key := s.queue
	if s.exchange != "" {
		key = routingKeyPrefix + event.EventType
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.Timestamp.UTC(),
		Type:         event.EventType,
		Body:         body,
	}
	if err := s.pub.PublishWithContext(ctx, s.exchange, key, false, false, msg); err != nil {
		s.failed.Add(1)
		s.logger.Warn("audit event publish failed", "event_type", event.EventType, "routing_key", key, "error", err)
		return
	}
	s.published.Add(1)
}

// Stats returns how many events were published and how many failed.
func (s *Sink) Stats() (published, failed uint64) {
	return s.published.Load(), s.failed.Load()
}

func (s *Sink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.closeFn != nil {
			err = s.closeFn()
		}
	})
	return err
}
