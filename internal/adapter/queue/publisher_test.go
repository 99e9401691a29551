package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"orchestrator/internal/domain"
)

type declaredExchange struct {
	name    string
	kind    string
	durable bool
}

type fakeChannel struct {
	declared   []declaredExchange
	published  []amqp.Publishing
	exchanges  []string
	routing    []string
	publishErr error
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.declared = append(f.declared, declaredExchange{name, kind, durable})
	return nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.exchanges = append(f.exchanges, exchange)
	f.routing = append(f.routing, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func newTestPublisher(ch *fakeChannel) *Publisher {
	p := NewPublisher(Options{
		Exchange:   "generation_jobs_exchange",
		RoutingKey: "worker.job.generation",
		MaxRetries: 1,
		Logger:     zerolog.Nop(),
	})
	p.openChannel = func() (channel, error) { return ch, nil }
	return p
}

func testJob() *domain.GenerationJobPayload {
	return &domain.GenerationJobPayload{
		GenerationRequestID: uuid.New(),
		UserID:              "user-1",
		JobType:             domain.JobTypeSampleGeneration,
		InputPrompt:         "a poster",
	}
}

func TestPublishDeclaresDurableExchange(t *testing.T) {
	ch := &fakeChannel{}
	p := newTestPublisher(ch)

	if err := p.Publish(context.Background(), testJob()); err != nil {
		t.Fatal(err)
	}
	if len(ch.declared) != 1 {
		t.Fatalf("declared exchanges = %d, want 1", len(ch.declared))
	}
	d := ch.declared[0]
	if d.name != "generation_jobs_exchange" || d.kind != "direct" || !d.durable {
		t.Errorf("exchange declared as %+v", d)
	}
}

func TestPublishMarksMessagePersistent(t *testing.T) {
	ch := &fakeChannel{}
	p := newTestPublisher(ch)
	job := testJob()

	if err := p.Publish(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if len(ch.published) != 1 {
		t.Fatalf("published = %d, want 1", len(ch.published))
	}
	msg := ch.published[0]
	if msg.DeliveryMode != amqp.Persistent {
		t.Errorf("delivery mode = %d, want persistent", msg.DeliveryMode)
	}
	if msg.ContentType != "application/json" {
		t.Errorf("content type = %q", msg.ContentType)
	}
	if msg.MessageId != job.GenerationRequestID.String() {
		t.Errorf("message id = %q", msg.MessageId)
	}
	if msg.Type != string(domain.JobTypeSampleGeneration) {
		t.Errorf("message type = %q", msg.Type)
	}
	if ch.routing[0] != "worker.job.generation" {
		t.Errorf("routing key = %q", ch.routing[0])
	}

	var decoded domain.GenerationJobPayload
	if err := json.Unmarshal(msg.Body, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.GenerationRequestID != job.GenerationRequestID || decoded.InputPrompt != "a poster" {
		t.Errorf("decoded payload = %+v", decoded)
	}
}

func TestPublishChannelReuse(t *testing.T) {
	ch := &fakeChannel{}
	p := newTestPublisher(ch)

	for i := 0; i < 3; i++ {
		if err := p.Publish(context.Background(), testJob()); err != nil {
			t.Fatal(err)
		}
	}
	if len(ch.declared) != 1 {
		t.Errorf("exchange redeclared: %d", len(ch.declared))
	}
	if len(ch.published) != 3 {
		t.Errorf("published = %d, want 3", len(ch.published))
	}
}

func TestPublishExhaustedRetriesSurfaceAsDispatchError(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("channel/connection is not open")}
	p := newTestPublisher(ch)

	err := p.Publish(context.Background(), testJob())
	if !errors.Is(err, domain.ErrDispatch) {
		t.Fatalf("err = %v, want ErrDispatch", err)
	}
	if !ch.closed {
		t.Error("failed channel must be invalidated")
	}
}

func TestPublishRecoversAfterChannelFailure(t *testing.T) {
	broken := &fakeChannel{publishErr: errors.New("broker hiccup")}
	healthy := &fakeChannel{}
	p := NewPublisher(Options{Exchange: "generation_jobs_exchange", RoutingKey: "worker.job.generation", MaxRetries: 1, Logger: zerolog.Nop()})
	channels := []channel{broken, healthy}
	p.openChannel = func() (channel, error) {
		ch := channels[0]
		if len(channels) > 1 {
			channels = channels[1:]
		}
		return ch, nil
	}

	if err := p.Publish(context.Background(), testJob()); err != nil {
		t.Fatal(err)
	}
	if len(healthy.published) != 1 {
		t.Errorf("retry did not reach the fresh channel: %d", len(healthy.published))
	}
	if !broken.closed {
		t.Error("broken channel must be closed on invalidation")
	}
}
