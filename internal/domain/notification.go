package domain

import "time"

const (
	EventOfferSubmitted   = "offer-submitted"
	EventOfferAccepted    = "offer-accepted"
	EventPaymentCompleted = "payment-completed"
)

// Notification is an outbound message to a client or operator. Delivery is
// best effort.
type Notification struct {
	RecipientID string         `json:"recipientId"`
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload"`
	OccurredAt  time.Time      `json:"occurredAt"`
}
