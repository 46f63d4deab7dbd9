package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/damoang/coinchat/internal/common"
	"github.com/damoang/coinchat/internal/domain"
	"github.com/damoang/coinchat/internal/repository"
	"gorm.io/gorm"
)

// ConversationService Conversation Directory
type ConversationService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	users         repository.UserRepository
}

// NewConversationService creates a new ConversationService
func NewConversationService(conversations repository.ConversationRepository, messages repository.MessageRepository, users repository.UserRepository) *ConversationService {
	return &ConversationService{conversations: conversations, messages: messages, users: users}
}

// WithTx returns a copy bound to an open transaction.
func (s *ConversationService) WithTx(tx *gorm.DB) *ConversationService {
	return &ConversationService{
		conversations: s.conversations.WithTx(tx),
		messages:      s.messages.WithTx(tx),
		users:         s.users,
	}
}

// GetOrCreate resolves the single conversation for an unordered pair.
// The unique participants hash settles concurrent creators on one row.
func (s *ConversationService) GetOrCreate(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	if userA == userB {
		return nil, common.NewValidationError("Cannot start a conversation with yourself")
	}
	conv, err := s.conversations.FindByHash(ctx, domain.PairHash(userA, userB))
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	conv, err = s.conversations.CreateIfAbsent(ctx, domain.NewConversation(userA, userB))
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// FindByPair returns the conversation for a pair or nil when none exists yet.
func (s *ConversationService) FindByPair(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	conv, err := s.conversations.FindByHash(ctx, domain.PairHash(userA, userB))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return conv, nil
}

// FindForParticipant loads a conversation and checks userID belongs to it.
func (s *ConversationService) FindForParticipant(ctx context.Context, conversationID int64, userID string) (*domain.Conversation, error) {
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NewNotFoundError("Conversation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	if !conv.HasParticipant(userID) {
		return nil, common.NewForbiddenError("Not a participant of this conversation")
	}
	return conv, nil
}

// RecordLastMessage overwrites the inbox preview; an older send never replaces a newer one.
func (s *ConversationService) RecordLastMessage(ctx context.Context, conv *domain.Conversation, body, senderID string, at time.Time) error {
	if err := s.conversations.UpdatePreview(ctx, conv.ID, body, senderID, at); err != nil {
		return fmt.Errorf("record last message: %w", err)
	}
	if conv.LastMessageAt == nil || !at.Before(*conv.LastMessageAt) {
		conv.LastMessage, conv.LastMessageSender, conv.LastMessageAt = body, senderID, &at
	}
	return nil
}

// ListForUser inbox rows, most recent activity first. Conversations without any
// message yet (a send that failed its debit) are omitted.
func (s *ConversationService) ListForUser(ctx context.Context, userID string) ([]domain.InboxItem, error) {
	convs, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	ids := make([]int64, 0, len(convs))
	others := make([]string, 0, len(convs))
	for _, c := range convs {
		if c.LastMessageAt == nil {
			continue
		}
		ids = append(ids, c.ID)
		others = append(others, c.OtherParticipant(userID))
	}

	unread, err := s.messages.CountUnreadByConversation(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}
	users, err := s.users.FindByIDs(ctx, others)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}

	items := make([]domain.InboxItem, 0, len(ids))
	for _, c := range convs {
		if c.LastMessageAt == nil {
			continue
		}
		other := c.OtherParticipant(userID)
		items = append(items, domain.InboxItem{
			ConversationID: c.ID,
			OtherUser:      summaryOf(users[other], other),
			LastMessage:    c.LastMessage,
			LastSenderID:   c.LastMessageSender,
			LastMessageAt:  c.LastMessageAt,
			UnreadCount:    unread[c.ID],
		})
	}
	return items, nil
}

// summaryOf falls back to a bare id for users not yet synced into the directory.
func summaryOf(u *domain.User, id string) domain.UserSummary {
	if u == nil {
		return domain.UserSummary{ID: id}
	}
	return u.Summary()
}
