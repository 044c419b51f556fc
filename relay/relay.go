// Package relay publishes post-commit events to message queues.
//
// Publication is fire-and-forget: [Relay.Publish] returns once the message is
// buffered, and a background worker hands it to the backing [Publisher]
// ([SQS] or [Kafka]). Delivery is at-least-once with no ordering guarantee
// across topics. Consumers own idempotency.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Topics carried by the relay.
const (
	TopicOrderNotifications = "order-notifications"
	TopicStockUpdates       = "stock-updates"
)

var (
	// ErrFull is returned when the relay buffer has no room for another message.
	ErrFull = errors.New("storefront: relay buffer is full")

	// ErrClosed is returned when publishing to a relay that was closed.
	ErrClosed = errors.New("storefront: relay is closed")

	// ErrUnknownTopic is returned by backends with no destination for a topic.
	ErrUnknownTopic = errors.New("storefront: no destination configured for topic")
)

// Publisher delivers one message to a topic. Key groups related messages
// (the customer id) for brokers that order or partition by key.
type Publisher interface {
	Publish(ctx context.Context, topic, key, message string) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, topic, key, message string) error

func (f PublisherFunc) Publish(ctx context.Context, topic, key, message string) error {
	return f(ctx, topic, key, message)
}

// Config holds configuration for the Relay.
type Config struct {
	// Buffer is the number of messages held while the worker is busy.
	// Default: 256
	Buffer int

	// PublishTimeout bounds each downstream publish.
	// Default: 5s
	PublishTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Buffer:         256,
		PublishTimeout: 5 * time.Second,
	}
}

func (c *Config) validate() {
	if c.Buffer < 1 {
		c.Buffer = 256
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
}

type envelope struct {
	ctx     context.Context
	topic   string
	key     string
	message string
}

// Relay buffers messages and publishes them from a background worker.
type Relay struct {
	next   Publisher
	config Config
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan envelope
	done   chan struct{}
}

var _ Publisher = (*Relay)(nil)

// New starts a relay in front of next.
func New(next Publisher, config Config, logger *slog.Logger) *Relay {
	config.validate()
	if logger == nil {
		logger = slog.Default()
	}
	r := &Relay{
		next:   next,
		config: config,
		logger: logger,
		queue:  make(chan envelope, config.Buffer),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Publish enqueues the message without waiting for delivery.
// Cancelling ctx after Publish returns does not cancel delivery.
func (r *Relay) Publish(ctx context.Context, topic, key, message string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrClosed
	}
	select {
	case r.queue <- envelope{ctx: context.WithoutCancel(ctx), topic: topic, key: key, message: message}:
		return nil
	default:
		return ErrFull
	}
}

// Close stops accepting messages and waits for the buffer to drain or ctx to end.
func (r *Relay) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Relay) run() {
	defer close(r.done)
	for env := range r.queue {
		r.deliver(env)
	}
}

func (r *Relay) deliver(env envelope) {
	ctx, cancel := context.WithTimeout(env.ctx, r.config.PublishTimeout)
	defer cancel()

	if err := r.next.Publish(ctx, env.topic, env.key, env.message); err != nil {
		r.logger.Warn("failed to publish message",
			"topic", env.topic,
			"key", env.key,
			"error", err,
		)
		return
	}
	r.logger.Debug("published message",
		"topic", env.topic,
		"key", env.key,
	)
}
