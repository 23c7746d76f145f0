package kafka

import (
	"context"

	"github.com/Domenick1991/charterbooking/internal/domain"
)

type publisher interface {
	Publish(ctx context.Context, topic, key string, payload any) error
}

// Notifier publishes lifecycle notifications keyed by recipient so each
// recipient's messages stay ordered within a partition.
type Notifier struct {
	pub   publisher
	topic string
}

func NewNotifier(pub publisher, topic string) *Notifier {
	return &Notifier{pub: pub, topic: topic}
}

func (n *Notifier) Notify(ctx context.Context, msg domain.Notification) error {
	return n.pub.Publish(ctx, n.topic, msg.RecipientID, msg)
}
