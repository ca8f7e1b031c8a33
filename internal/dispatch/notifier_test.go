package dispatch

import (
	"context"
	"errors"
	"testing"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/torresline/eventgate/pkg/logger"
)

type fakePublishResult struct {
	id  string
	err error
}

func (r fakePublishResult) Get(ctx context.Context) (string, error) {
	return r.id, r.err
}

type fakePublisher struct {
	messages []*pubsub.Message
	failAt   map[int]error
}

func (p *fakePublisher) Publish(ctx context.Context, msg *pubsub.Message) PublishResult {
	idx := len(p.messages)
	p.messages = append(p.messages, msg)
	if err, ok := p.failAt[idx]; ok {
		return fakePublishResult{err: err}
	}
	return fakePublishResult{id: "m1"}
}

func TestNotifierPublishesPointerWithAttributes(t *testing.T) {
	pub := &fakePublisher{}
	notifier := NewNotifier(pub, logger.New(logger.Options{ServiceName: "test"}), 0)

	pointer := JobPointer{JobID: uuid.New(), DispatchPoolID: uuid.New(), MessageGroup: "orders:42"}
	if err := notifier.Notify(context.Background(), pointer); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(pub.messages))
	}
	msg := pub.messages[0]
	if msg.Attributes["jobId"] != pointer.JobID.String() {
		t.Fatal("jobId attribute missing")
	}
	if msg.Attributes["messageGroup"] != "orders:42" {
		t.Fatal("messageGroup attribute missing")
	}

	decoded, err := DecodePointer(msg.Data)
	if err != nil {
		t.Fatalf("DecodePointer: %v", err)
	}
	if decoded != pointer {
		t.Fatalf("round trip mismatch: %+v vs %+v", decoded, pointer)
	}
}

func TestNotifyAllContinuesPastFailures(t *testing.T) {
	pub := &fakePublisher{failAt: map[int]error{1: errors.New("unavailable")}}
	notifier := NewNotifier(pub, logger.New(logger.Options{ServiceName: "test"}), 0)

	pointers := []JobPointer{
		{JobID: uuid.New(), DispatchPoolID: uuid.New()},
		{JobID: uuid.New(), DispatchPoolID: uuid.New()},
		{JobID: uuid.New(), DispatchPoolID: uuid.New()},
	}
	published := notifier.NotifyAll(context.Background(), pointers)
	if published != 2 {
		t.Fatalf("expected 2 published, got %d", published)
	}
	if len(pub.messages) != 3 {
		t.Fatalf("expected 3 publish calls, got %d", len(pub.messages))
	}
}

func TestNotifierWithoutPublisherFails(t *testing.T) {
	notifier := NewNotifier(nil, logger.New(logger.Options{ServiceName: "test"}), 0)
	if err := notifier.Notify(context.Background(), JobPointer{JobID: uuid.New()}); err == nil {
		t.Fatal("expected error")
	}
}
