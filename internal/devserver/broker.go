package devserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/xonecas/parley/internal/chat"
)

// Broker fans message updates out to the push streams of a conversation.
// Each conversation has its own topic; nothing is replayed to late subscribers.
type Broker struct {
	pubsub *gochannel.GoChannel
}

// NewBroker creates an in-process broker.
func NewBroker() *Broker {
	return &Broker{
		// Publish waits for every subscriber to ack, which keeps the
		// updates of one conversation in publish order.
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			BlockPublishUntilSubscriberAck: true,
		}, watermill.NopLogger{}),
	}
}

func topic(conversationID chat.ID) string {
	return "chat:" + conversationID.String()
}

// Publish sends m to everyone streaming its conversation.
func (b *Broker) Publish(m chat.Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message %s: %w", m.ID, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("message_id", m.ID.String())
	if err := b.pubsub.Publish(topic(m.ConversationID), msg); err != nil {
		return fmt.Errorf("publish message %s: %w", m.ID, err)
	}
	return nil
}

// Subscribe returns the updates of a conversation until ctx ends.
// Every delivered message must be acked before the next one arrives.
func (b *Broker) Subscribe(ctx context.Context, conversationID chat.ID) (<-chan *message.Message, error) {
	ch, err := b.pubsub.Subscribe(ctx, topic(conversationID))
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", conversationID, err)
	}
	return ch, nil
}

// Close ends all subscriptions.
func (b *Broker) Close() error {
	return b.pubsub.Close()
}
