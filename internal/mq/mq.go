package mq

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/classtrack/apiserver/config"
)

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// NewBackend constructs the broker selected by configuration.
func NewBackend(ctx context.Context, cfg config.MQConfig) (Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case "rabbitmq":
		return NewRabbitMQClient(cfg.RabbitMQ)
	case "pubsub":
		return NewPubSubClient(ctx, cfg.PubSub)
	case "", "none":
		return NoopBackend{}, nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}

// NoopBackend logs publishes instead of delivering them. It backs local
// development where no broker is running.
type NoopBackend struct{}

func (NoopBackend) Publish(_ context.Context, channel string, data []byte, _ map[string]string) (string, error) {
	log.Printf("mq disabled, dropping message on %s: %s", channel, data)
	return "", nil
}

func (NoopBackend) Subscribe(ctx context.Context, _ string, _ Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (NoopBackend) Close() error { return nil }
