package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/damoang/coinchat/internal/common"
	"github.com/damoang/coinchat/internal/domain"
	"github.com/damoang/coinchat/internal/repository"
	"gorm.io/gorm"
)

// MaxBodyLength upper bound on a message body, in runes
const MaxBodyLength = 4000

// PageOptions pagination bounds
type PageOptions struct {
	DefaultSize int
	MaxSize     int
}

// AppendInput new message
type AppendInput struct {
	ConversationID int64
	SenderID       string
	ReceiverID     string
	Body           string
	At             time.Time
}

// HistoryPage messages in chronological order plus their read sets
type HistoryPage struct {
	Messages []domain.Message
	Readers  map[int64][]string
	Page     int
	Limit    int
	HasMore  bool
}

// MessageService Message Store
type MessageService struct {
	messages repository.MessageRepository
	paging   PageOptions
	now      Clock
}

// NewMessageService creates a new MessageService
func NewMessageService(messages repository.MessageRepository, paging PageOptions) *MessageService {
	if paging.DefaultSize < 1 {
		paging.DefaultSize = 20
	}
	if paging.MaxSize < paging.DefaultSize {
		paging.MaxSize = 100
	}
	return &MessageService{messages: messages, paging: paging, now: SystemClock}
}

// WithTx returns a copy bound to an open transaction.
func (s *MessageService) WithTx(tx *gorm.DB) *MessageService {
	return &MessageService{messages: s.messages.WithTx(tx), paging: s.paging, now: s.now}
}

// NormalizeBody trims and validates a message body.
func NormalizeBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", common.NewValidationError("Message body is required")
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return "", common.NewValidationError(fmt.Sprintf("Message body exceeds %d characters", MaxBodyLength))
	}
	return body, nil
}

// Append persists a message; the sender starts out in its read set.
func (s *MessageService) Append(ctx context.Context, in AppendInput) (*domain.Message, error) {
	body, err := NormalizeBody(in.Body)
	if err != nil {
		return nil, err
	}
	if in.SenderID == in.ReceiverID {
		return nil, common.NewValidationError("Cannot send a message to yourself")
	}
	at := in.At
	if at.IsZero() {
		at = s.now()
	}

	msg := &domain.Message{
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		ReceiverID:     in.ReceiverID,
		Body:           body,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if err := s.messages.AddReader(ctx, []int64{msg.ID}, in.SenderID, at); err != nil {
		return nil, fmt.Errorf("mark sender read: %w", err)
	}
	return msg, nil
}

// FindRecentDuplicate identical send from the same sender within window of at, or nil.
func (s *MessageService) FindRecentDuplicate(ctx context.Context, conversationID int64, senderID, receiverID, body string, at time.Time, window time.Duration) (*domain.Message, error) {
	msg, err := s.messages.FindRecentDuplicate(ctx, conversationID, senderID, receiverID, body, at.Add(-window))
	if err != nil {
		return nil, fmt.Errorf("find duplicate: %w", err)
	}
	return msg, nil
}

// Page newest-first slice reversed to chronological order. HasMore is a full-page heuristic.
func (s *MessageService) Page(ctx context.Context, conversationID int64, page, pageSize int) (*HistoryPage, error) {
	page, pageSize = clampPage(page, pageSize, s.paging.DefaultSize, s.paging.MaxSize)

	msgs, err := s.messages.PageNewestFirst(ctx, conversationID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("page messages: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	ids := make([]int64, len(msgs))
	for i := range msgs {
		ids[i] = msgs[i].ID
	}
	readers, err := s.messages.Readers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load read sets: %w", err)
	}

	return &HistoryPage{
		Messages: msgs,
		Readers:  readers,
		Page:     page,
		Limit:    pageSize,
		HasMore:  len(msgs) == pageSize,
	}, nil
}

// Readers read sets keyed by message id
func (s *MessageService) Readers(ctx context.Context, messageIDs []int64) (map[int64][]string, error) {
	return s.messages.Readers(ctx, messageIDs)
}

// MarkReadByRecipient adds recipientID to the read set of every message addressed to them.
// Returns how many messages changed; a second call returns 0.
func (s *MessageService) MarkReadByRecipient(ctx context.Context, conversationID int64, recipientID string) (int, error) {
	ids, err := s.messages.UnreadIDs(ctx, conversationID, recipientID)
	if err != nil {
		return 0, fmt.Errorf("find unread: %w", err)
	}
	if err := s.messages.AddReader(ctx, ids, recipientID, s.now()); err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return len(ids), nil
}
