// Package events publishes domain events (coin credits, sent messages) to RabbitMQ.
// Publishing is best effort: failures are logged and returned, never retried inline.
package events

import (
	"context"
	"time"
)

// Routing keys
const (
	CoinsCredited = "coins.credited"
	CoinsDebited  = "coins.debited"
	MessageSent   = "message.sent"
)

// Publisher emits a JSON-encoded domain event under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload interface{}) error
	Close() error
}

// CoinsCreditedEvent emitted once per credited payment transaction
type CoinsCreditedEvent struct {
	UserID               string    `json:"userId"`
	PlanID               string    `json:"planId"`
	OrderID              string    `json:"orderId"`
	PaymentTransactionID int64     `json:"paymentTransactionId"`
	Coins                int       `json:"coins"`
	CreditedAt           time.Time `json:"creditedAt"`
}

// MessageSentEvent emitted after a debited send commits
type MessageSentEvent struct {
	MessageID      int64     `json:"messageId"`
	ConversationID int64     `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	ReceiverID     string    `json:"receiverId"`
	RemainingCoins int       `json:"remainingCoins"`
	SentAt         time.Time `json:"sentAt"`
}

type nopPublisher struct{}

// NewNopPublisher discards every event. Used when no broker URL is configured.
func NewNopPublisher() Publisher { return nopPublisher{} }

func (nopPublisher) Publish(context.Context, string, interface{}) error { return nil }
func (nopPublisher) Close() error                                      { return nil }
