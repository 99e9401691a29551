package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"orchestrator/internal/domain"
)

// channel is the slice of amqp.Channel the publisher uses, extracted so
// tests can drive the publish path without a broker.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Options configures the RabbitMQ publisher.
type Options struct {
	URL        string
	Exchange   string
	RoutingKey string
	MaxRetries uint64
	Logger     zerolog.Logger
}

// Publisher dispatches generation jobs to a durable direct exchange. It is
// an explicitly constructed dependency: the process owns its connection and
// closes it on shutdown. Messages are marked persistent so a broker restart
// does not drop in-flight jobs; delivery is at-least-once.
type Publisher struct {
	opts Options

	mu   sync.Mutex
	conn *amqp.Connection
	ch   channel

	// openChannel is swapped out in tests.
	openChannel func() (channel, error)
}

// NewPublisher creates a publisher for the given broker URL and exchange.
func NewPublisher(opts Options) *Publisher {
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	p := &Publisher{opts: opts}
	p.openChannel = p.dialChannel
	return p
}

// Connect establishes the broker connection and declares the exchange. Call
// once at startup; Publish reconnects on demand afterwards.
func (p *Publisher) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.ensureChannel()
	return err
}

// Close shuts the channel and connection down.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			p.opts.Logger.Warn().Err(err).Msg("closing amqp channel")
		}
		p.ch = nil
	}
	if p.conn != nil && !p.conn.IsClosed() {
		if err := p.conn.Close(); err != nil {
			p.opts.Logger.Warn().Err(err).Msg("closing amqp connection")
		}
	}
	p.conn = nil
}

// Publish sends one persistent job message, retrying transient broker
// failures with exponential backoff. Exhausted retries surface as
// domain.ErrDispatch.
func (p *Publisher) Publish(ctx context.Context, job *domain.GenerationJobPayload) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("%w: encode job payload: %v", domain.ErrDispatch, err)
	}

	msg := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    job.GenerationRequestID.String(),
		Type:         string(job.JobType),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	op := func() error {
		p.mu.Lock()
		defer p.mu.Unlock()
		ch, err := p.ensureChannel()
		if err != nil {
			return err
		}
		if err := ch.PublishWithContext(ctx, p.opts.Exchange, p.opts.RoutingKey, false, false, msg); err != nil {
			p.invalidate()
			return err
		}
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), p.opts.MaxRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDispatch, err)
	}
	p.opts.Logger.Info().
		Str("request_id", job.GenerationRequestID.String()).
		Str("job_type", string(job.JobType)).
		Str("exchange", p.opts.Exchange).
		Str("routing_key", p.opts.RoutingKey).
		Msg("generation job published")
	return nil
}

// ensureChannel returns an open channel, dialing and declaring the exchange
// when needed. Caller must hold p.mu.
func (p *Publisher) ensureChannel() (channel, error) {
	if p.ch != nil {
		return p.ch, nil
	}
	ch, err := p.openChannel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(p.opts.Exchange, "direct", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}
	p.ch = ch
	return ch, nil
}

// invalidate drops the cached channel so the next attempt redials. Caller
// must hold p.mu.
func (p *Publisher) invalidate() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
}

func (p *Publisher) dialChannel() (channel, error) {
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.Dial(p.opts.URL)
		if err != nil {
			return nil, fmt.Errorf("dial broker: %w", err)
		}
		p.conn = conn
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, nil
}
