package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/classtrack/apiserver/internal/mq"
	"github.com/classtrack/apiserver/types"
)

// captureBackend records publishes and replays queued messages to a single
// subscriber.
type captureBackend struct {
	channel string
	data    []byte
	attrs   map[string]string
	queued  []mq.Message
}

func (b *captureBackend) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	b.channel = channel
	b.data = data
	b.attrs = attrs
	return "msg-1", nil
}

func (b *captureBackend) Subscribe(ctx context.Context, _ string, handler mq.Handler) error {
	for _, msg := range b.queued {
		if err := handler(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (b *captureBackend) Close() error { return nil }

func TestSendPasswordResetPublishesJob(t *testing.T) {
	backend := &captureBackend{}
	dispatcher := NewDispatcher(backend)

	err := dispatcher.SendPasswordReset(context.Background(), "s@x.com", "Sam", "http://app.test/reset-password/raw-secret")
	if err != nil {
		t.Fatalf("SendPasswordReset error: %v", err)
	}

	if backend.channel != PasswordResetQueue {
		t.Fatalf("expected queue %s, got %s", PasswordResetQueue, backend.channel)
	}
	if backend.attrs["purpose"] != types.PurposePasswordReset {
		t.Fatalf("expected a purpose attribute, got %v", backend.attrs)
	}

	var msg Message
	if err := json.Unmarshal(backend.data, &msg); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if msg.To != "s@x.com" || msg.FirstName != "Sam" {
		t.Fatalf("unexpected job: %+v", msg)
	}
	if msg.ResetURL != "http://app.test/reset-password/raw-secret" {
		t.Fatalf("unexpected reset url: %s", msg.ResetURL)
	}
}

func TestRunWorkerDeliversJobs(t *testing.T) {
	payload, err := json.Marshal(Message{To: "s@x.com", FirstName: "Sam", ResetURL: "http://app.test/reset-password/x", Purpose: types.PurposePasswordReset})
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	backend := &captureBackend{queued: []mq.Message{
		{ID: "bad", Data: []byte("not json")},
		{ID: "good", Data: payload},
	}}

	var delivered []Message
	err = RunWorker(context.Background(), backend, func(_ context.Context, msg Message) error {
		delivered = append(delivered, msg)
		return nil
	})
	if err != nil {
		t.Fatalf("RunWorker error: %v", err)
	}

	if len(delivered) != 1 {
		t.Fatalf("expected one delivered job, malformed jobs are dropped; got %d", len(delivered))
	}
	if delivered[0].To != "s@x.com" {
		t.Fatalf("unexpected job: %+v", delivered[0])
	}
}

func TestRunWorkerPropagatesSendFailure(t *testing.T) {
	payload, _ := json.Marshal(Message{To: "s@x.com"})
	backend := &captureBackend{queued: []mq.Message{{ID: "good", Data: payload}}}

	wantErr := errors.New("smtp down")
	err := RunWorker(context.Background(), backend, func(context.Context, Message) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected the send error surfaced, got %v", err)
	}
}
