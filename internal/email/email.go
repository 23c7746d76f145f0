package email

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Domenick1991/charterbooking/internal/domain"
)

// Sender renders notifications into plain-text messages and hands them to
// the delivery log.
type Sender struct {
	log *zap.Logger
}

func NewSender(log *zap.Logger) *Sender {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sender{log: log}
}

func (s *Sender) Send(ctx context.Context, n domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, body := Render(n)
	s.log.Info("send email",
		zap.String("recipient", n.RecipientID),
		zap.String("type", n.Type),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)),
	)
	return nil
}

var subjects = map[string]string{
	domain.EventOfferSubmitted:   "New offer for your charter request",
	domain.EventOfferAccepted:    "Your offer was accepted",
	domain.EventPaymentCompleted: "Payment received",
}

// Render builds the subject and body of n.
func Render(n domain.Notification) (string, string) {
	subject, ok := subjects[n.Type]
	if !ok {
		subject = "Charter update: " + n.Type
	}

	keys := make([]string, 0, len(n.Payload))
	for k := range n.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", n.RecipientID)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, n.Payload[k])
	}
	return subject, b.String()
}
