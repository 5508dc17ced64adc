// Package broadcast fans conversation messages out to live subscribers over
// redis pub/sub, one channel per conversation.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"participium/pkg/messaging"
)

type Broker struct {
	client *redis.Client
	prefix string
}

// NewBroker connects to redisURL and checks the connection.
func NewBroker(redisURL string) (*Broker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewBrokerWithClient(client), nil
}

func NewBrokerWithClient(client *redis.Client) *Broker {
	return &Broker{client: client, prefix: "conversation:"}
}

func (b *Broker) channel(conversationID string) string {
	return b.prefix + conversationID
}

// Publish sends msg to every subscriber of its conversation.
func (b *Broker) Publish(ctx context.Context, msg messaging.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(msg.ConversationID), payload).Err(); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Subscription delivers the messages of one conversation until closed.
type Subscription struct {
	pubsub *redis.PubSub
	out    chan messaging.Message
}

func (s *Subscription) Messages() <-chan messaging.Message { return s.out }

func (s *Subscription) Close() error { return s.pubsub.Close() }

// Subscribe returns once redis has confirmed the subscription, so no
// message published afterwards is missed.
func (b *Broker) Subscribe(ctx context.Context, conversationID string) (*Subscription, error) {
	ps := b.client.Subscribe(ctx, b.channel(conversationID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	sub := &Subscription{pubsub: ps, out: make(chan messaging.Message, 16)}
	go func() {
		defer close(sub.out)
		for raw := range ps.Channel() {
			var msg messaging.Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				continue
			}
			select {
			case sub.out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return sub, nil
}

func (b *Broker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *Broker) Close() error {
	return b.client.Close()
}
