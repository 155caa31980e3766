package mq

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/classtrack/apiserver/config"
	"google.golang.org/api/option"
)

// PubSubClient implements Backend on Google Cloud Pub/Sub. Topics and
// subscriptions are created lazily on first use.
type PubSubClient struct {
	client    *pubsub.Client
	subSuffix string
}

func NewPubSubClient(ctx context.Context, cfg config.PubSubConfig) (*PubSubClient, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("pubsub project id is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, err
	}

	suffix := cfg.SubscriptionSuffix
	if suffix == "" {
		suffix = "-sub"
	}
	return &PubSubClient{client: client, subSuffix: suffix}, nil
}

func (p *PubSubClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	topic, err := p.topic(ctx, channel)
	if err != nil {
		return "", err
	}
	result := topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	return result.Get(ctx)
}

func (p *PubSubClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	topic, err := p.topic(ctx, channel)
	if err != nil {
		return err
	}

	sub := p.client.Subscription(channel + p.subSuffix)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		sub, err = p.client.CreateSubscription(ctx, channel+p.subSuffix, pubsub.SubscriptionConfig{Topic: topic})
		if err != nil {
			return err
		}
	}

	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		err := handler(ctx, Message{
			ID:         msg.ID,
			Data:       msg.Data,
			Attributes: msg.Attributes,
		})
		if err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (p *PubSubClient) Close() error {
	return p.client.Close()
}

func (p *PubSubClient) topic(ctx context.Context, channel string) (*pubsub.Topic, error) {
	if strings.TrimSpace(channel) == "" {
		return nil, errors.New("pubsub channel is required")
	}
	topic := p.client.Topic(channel)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return p.client.CreateTopic(ctx, channel)
	}
	return topic, nil
}
