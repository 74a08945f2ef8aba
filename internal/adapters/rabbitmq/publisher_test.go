package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/kominfo-unma/canva-claim-api/internal/ports/out/events"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	sent   []published
	err    error
	closed bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublish_RoutesByEventType(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{}
	p := newPublisher(ch, "claims", zerolog.Nop())
	at := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

	err := p.Publish(context.Background(), events.ClaimEvent{
		Type:         events.TypeClaimSubmitted,
		Organization: "Divisi TI",
		Email:        "ti@example.com",
		OccurredAt:   at,
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(ch.sent) != 1 {
		t.Fatalf("sent=%d want=1", len(ch.sent))
	}
	got := ch.sent[0]
	if got.exchange != "claims" || got.key != string(events.TypeClaimSubmitted) {
		t.Fatalf("exchange=%q key=%q", got.exchange, got.key)
	}
	if got.msg.ContentType != "application/json" || got.msg.DeliveryMode != amqp.Persistent || !got.msg.Timestamp.Equal(at) {
		t.Fatalf("msg=%+v", got.msg)
	}
	var body events.ClaimEvent
	if err := json.Unmarshal(got.msg.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Organization != "Divisi TI" || body.Type != events.TypeClaimSubmitted {
		t.Fatalf("body=%+v", body)
	}
}

func TestPublish_ErrorsAndClose(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{err: errors.New("channel closed")}
	p := newPublisher(ch, "claims", zerolog.Nop())
	if err := p.Publish(context.Background(), events.ClaimEvent{Type: events.TypeClaimDeleted}); err == nil {
		t.Fatalf("expected publish error")
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !ch.closed {
		t.Fatalf("channel not closed")
	}
	if err := p.Publish(context.Background(), events.ClaimEvent{Type: events.TypeClaimDeleted}); err == nil {
		t.Fatalf("expected error after Close")
	}
}

func TestDial_Validation(t *testing.T) {
	t.Parallel()
	if _, err := Dial(context.Background(), Options{Exchange: "claims"}); err == nil {
		t.Fatalf("expected error without URL")
	}
	if _, err := Dial(context.Background(), Options{URL: "amqp://localhost"}); err == nil {
		t.Fatalf("expected error without exchange")
	}
}

// TestDial_Broker runs against a real broker when TEST_AMQP_URL is set.
func TestDial_Broker(t *testing.T) {
	url := os.Getenv("TEST_AMQP_URL")
	if url == "" {
		t.Skip("TEST_AMQP_URL not set; skipping broker test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p, err := Dial(ctx, Options{URL: url, Exchange: "claims_test", MaxRetries: 1, Log: zerolog.Nop()})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = p.Close() }()
	if err := p.Publish(ctx, events.ClaimEvent{Type: events.TypeClaimSubmitted, Organization: "X"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}
