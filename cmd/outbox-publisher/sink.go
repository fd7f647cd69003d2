package main

import (
	"context"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
)

type pubsubSink struct {
	client *pubsub.Client
}

func (s pubsubSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s pubsubSink) Send(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub, err := s.client.Publisher(topic)
	if err != nil {
		return registry.Permanent(err)
	}
	if _, err := pub.Publish(ctx, msg).Get(ctx); err != nil {
		// A failed publish pauses its ordering key until resumed.
		if msg.OrderingKey != "" {
			pub.ResumePublish(msg.OrderingKey)
		}
		return err
	}
	return nil
}
