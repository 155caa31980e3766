package mailer

import (
	"context"
	"encoding/json"

	"github.com/classtrack/apiserver/internal/mq"
	"github.com/classtrack/apiserver/types"
)

// PasswordResetQueue carries password-reset mail jobs to the delivery worker.
const PasswordResetQueue = "emails.password-reset"

// Message is the mail job handed to the delivery worker. Rendering and SMTP
// happen on the consuming side.
type Message struct {
	To        string `json:"to"`
	FirstName string `json:"firstName"`
	ResetURL  string `json:"resetUrl"`
	Purpose   string `json:"purpose"`
}

// Dispatcher publishes mail jobs on the message queue.
type Dispatcher struct {
	backend mq.Backend
}

func NewDispatcher(backend mq.Backend) *Dispatcher {
	return &Dispatcher{backend: backend}
}

// SendPasswordReset enqueues a reset mail carrying the raw secret URL. The
// secret never touches storage on this path.
func (d *Dispatcher) SendPasswordReset(ctx context.Context, to, firstName, resetURL string) error {
	payload, err := json.Marshal(Message{
		To:        to,
		FirstName: firstName,
		ResetURL:  resetURL,
		Purpose:   types.PurposePasswordReset,
	})
	if err != nil {
		return err
	}
	_, err = d.backend.Publish(ctx, PasswordResetQueue, payload, map[string]string{
		"purpose": types.PurposePasswordReset,
	})
	return err
}

// RunWorker consumes mail jobs and hands each to send. It blocks until the
// context is cancelled.
func RunWorker(ctx context.Context, backend mq.Backend, send func(ctx context.Context, msg Message) error) error {
	return backend.Subscribe(ctx, PasswordResetQueue, func(ctx context.Context, raw mq.Message) error {
		var msg Message
		if err := json.Unmarshal(raw.Data, &msg); err != nil {
			// a malformed job will never parse; ack it rather than loop
			return nil
		}
		return send(ctx, msg)
	})
}
