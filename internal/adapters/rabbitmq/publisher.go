// Package rabbitmq publishes claim events to a topic exchange.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/kominfo-unma/canva-claim-api/internal/ports/out/events"
)

const ExchangeTopic = "topic"

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Options struct {
	URL      string
	Exchange string

	// MaxRetries bounds connection attempts at startup; backoff doubles from one second.
	MaxRetries int
	Log        zerolog.Logger
}

// Publisher sends each event with its type as the routing key. It is safe for concurrent use.
type Publisher struct {
	exchange string
	log      zerolog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   channel
}

// Dial connects with retries and declares the exchange.
func Dial(ctx context.Context, opts Options) (*Publisher, error) {
	if opts.URL == "" {
		return nil, errors.New("rabbitmq: URL is required")
	}
	if opts.Exchange == "" {
		return nil, errors.New("rabbitmq: exchange is required")
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}

	var (
		conn *amqp.Connection
		err  error
	)
	wait := time.Second
	for i := 0; i < opts.MaxRetries; i++ {
		conn, err = amqp.Dial(opts.URL)
		if err == nil {
			break
		}
		opts.Log.Warn().Err(err).Int("attempt", i+1).Dur("retryIn", wait).Msg("rabbitmq connect failed")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: connect: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		opts.Exchange, // name
		ExchangeTopic, // type
		true,          // durable
		false,         // auto-deleted
		false,         // internal
		false,         // no-wait
		nil,           // arguments
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: declare exchange %q: %w", opts.Exchange, err)
	}

	p := newPublisher(ch, opts.Exchange, opts.Log)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange string, log zerolog.Logger) *Publisher {
	return &Publisher{exchange: exchange, log: log, ch: ch}
}

func (p *Publisher) Publish(ctx context.Context, e events.ClaimEvent) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	ts := e.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return errors.New("rabbitmq: publisher closed")
	}
	err = p.ch.PublishWithContext(ctx,
		p.exchange,
		string(e.Type),
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    ts,
			Type:         string(e.Type),
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("rabbitmq: publish %s: %w", e.Type, err)
	}
	p.log.Debug().Str("type", string(e.Type)).Str("exchange", p.exchange).Msg("event published")
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
		p.ch = nil
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
		p.conn = nil
	}
	return errors.Join(errs...)
}
