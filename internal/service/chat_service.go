package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/damoang/coinchat/internal/common"
	"github.com/damoang/coinchat/internal/domain"
	"github.com/damoang/coinchat/internal/events"
	"github.com/damoang/coinchat/internal/metrics"
	"github.com/damoang/coinchat/internal/repository"
	pkglogger "github.com/damoang/coinchat/pkg/logger"
	"gorm.io/gorm"
)

// ChatConfig messaging rules
type ChatConfig struct {
	DuplicateWindow time.Duration
	PartnerLimit    int
	MaxPartnerLimit int
}

// SendInput one outbound message
type SendInput struct {
	SenderID   string
	ReceiverID string
	Body       string
}

// ChatService orchestrates the wallet, directory and store for chat operations.
type ChatService struct {
	db            *gorm.DB
	users         repository.UserRepository
	wallets       *WalletService
	conversations *ConversationService
	messages      *MessageService
	notifier      Notifier
	publisher     events.Publisher
	config        ChatConfig
	now           Clock
}

// NewChatService creates a new ChatService
func NewChatService(
	db *gorm.DB,
	users repository.UserRepository,
	wallets *WalletService,
	conversations *ConversationService,
	messages *MessageService,
	notifier Notifier,
	publisher events.Publisher,
	config ChatConfig,
) *ChatService {
	if config.PartnerLimit < 1 {
		config.PartnerLimit = 50
	}
	if config.MaxPartnerLimit < 1 {
		config.MaxPartnerLimit = 100
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if publisher == nil {
		publisher = events.NewNopPublisher()
	}
	return &ChatService{
		db:            db,
		users:         users,
		wallets:       wallets,
		conversations: conversations,
		messages:      messages,
		notifier:      notifier,
		publisher:     publisher,
		config:        config,
		now:           SystemClock,
	}
}

// SetClock replaces the time source for the service and its message store.
func (s *ChatService) SetClock(now Clock) {
	s.now = now
	s.messages.now = now
}

// SyncUser mirrors verified identity claims into the user directory.
func (s *ChatService) SyncUser(ctx context.Context, id, name, email string) error {
	if err := ValidateUserID(id); err != nil {
		return err
	}
	return s.users.Upsert(ctx, &domain.User{ID: id, Name: name, Email: email})
}

// ListUsers conversation partners for currentUserID, optionally filtered by name or email.
func (s *ChatService) ListUsers(ctx context.Context, currentUserID, search string, limit int) ([]domain.UserSummary, error) {
	if limit < 1 {
		limit = s.config.PartnerLimit
	}
	if limit > s.config.MaxPartnerLimit {
		limit = s.config.MaxPartnerLimit
	}
	users, err := s.users.Search(ctx, currentUserID, search, limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	out := make([]domain.UserSummary, 0, len(users))
	for i := range users {
		out = append(out, users[i].Summary())
	}
	return out, nil
}

// GetInbox conversations for userID with counterpart, preview and unread count.
func (s *ChatService) GetInbox(ctx context.Context, userID string) ([]domain.InboxItem, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	return s.conversations.ListForUser(ctx, userID)
}

// GetMessagesWithUser history with a counterpart user. No conversation yet means an empty page.
func (s *ChatService) GetMessagesWithUser(ctx context.Context, currentUserID, otherUserID string, page, limit int) (*domain.MessagePage, error) {
	if err := ValidateUserID(otherUserID); err != nil {
		return nil, err
	}
	if currentUserID == otherUserID {
		return nil, common.NewValidationError("Cannot open a conversation with yourself")
	}
	if _, err := s.requireUser(ctx, otherUserID, "User not found"); err != nil {
		return nil, err
	}

	conv, err := s.conversations.FindByPair(ctx, currentUserID, otherUserID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		page, limit = clampPage(page, limit, s.messages.paging.DefaultSize, s.messages.paging.MaxSize)
		return &domain.MessagePage{Messages: []domain.MessageView{}, Page: page, Limit: limit}, nil
	}
	return s.readPage(ctx, conv, currentUserID, page, limit)
}

// GetMessagesByConversation history for a conversation the caller participates in.
func (s *ChatService) GetMessagesByConversation(ctx context.Context, currentUserID string, conversationID int64, page, limit int) (*domain.MessagePage, error) {
	conv, err := s.conversations.FindForParticipant(ctx, conversationID, currentUserID)
	if err != nil {
		return nil, err
	}
	return s.readPage(ctx, conv, currentUserID, page, limit)
}

// FetchMessages resolves id as a counterpart user id first and falls back to a
// conversation id when id is not a known user.
func (s *ChatService) FetchMessages(ctx context.Context, currentUserID, id string, page, limit int) (*domain.MessagePage, error) {
	if ValidateUserID(id) == nil {
		result, err := s.GetMessagesWithUser(ctx, currentUserID, id, page, limit)
		if !errors.Is(err, common.ErrNotFound) {
			return result, err
		}
	}
	conversationID, err := ParseConversationID(id)
	if err != nil {
		return nil, common.NewNotFoundError("User or conversation not found")
	}
	return s.GetMessagesByConversation(ctx, currentUserID, conversationID, page, limit)
}

// MarkConversationRead explicit read receipt for the caller.
func (s *ChatService) MarkConversationRead(ctx context.Context, currentUserID string, conversationID int64) (int, error) {
	if _, err := s.conversations.FindForParticipant(ctx, conversationID, currentUserID); err != nil {
		return 0, err
	}
	return s.messages.MarkReadByRecipient(ctx, conversationID, currentUserID)
}

func (s *ChatService) readPage(ctx context.Context, conv *domain.Conversation, viewerID string, page, limit int) (*domain.MessagePage, error) {
	if _, err := s.messages.MarkReadByRecipient(ctx, conv.ID, viewerID); err != nil {
		return nil, err
	}
	hist, err := s.messages.Page(ctx, conv.ID, page, limit)
	if err != nil {
		return nil, err
	}
	users, err := s.users.FindByIDs(ctx, []string{conv.ParticipantA, conv.ParticipantB})
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}

	views := make([]domain.MessageView, 0, len(hist.Messages))
	for i := range hist.Messages {
		views = append(views, buildView(&hist.Messages[i], hist.Readers[hist.Messages[i].ID], users))
	}
	return &domain.MessagePage{
		ConversationID: conv.ID,
		Messages:       views,
		Page:           hist.Page,
		Limit:          hist.Limit,
		HasMore:        hist.HasMore,
	}, nil
}

// SendMessage validates, resolves the conversation, absorbs duplicates, then debits one
// coin and persists the message in a single transaction before pushing it to both users.
func (s *ChatService) SendMessage(ctx context.Context, in SendInput) (*domain.SendResult, error) {
	if err := ValidateUserID(in.SenderID); err != nil {
		return nil, err
	}
	if err := ValidateUserID(in.ReceiverID); err != nil {
		return nil, err
	}
	if in.SenderID == in.ReceiverID {
		return nil, common.NewValidationError("Cannot send a message to yourself")
	}
	body, err := NormalizeBody(in.Body)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireUser(ctx, in.ReceiverID, "Receiver user not found"); err != nil {
		metrics.SendsRejected.WithLabelValues("unknown_receiver").Inc()
		return nil, err
	}

	conv, err := s.conversations.GetOrCreate(ctx, in.SenderID, in.ReceiverID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if s.config.DuplicateWindow > 0 {
		dup, err := s.messages.FindRecentDuplicate(ctx, conv.ID, in.SenderID, in.ReceiverID, body, now, s.config.DuplicateWindow)
		if err != nil {
			return nil, err
		}
		if dup != nil {
			return s.absorbDuplicate(ctx, in.SenderID, dup)
		}
	}

	msg, wallet, err := s.appendDebited(ctx, conv, in, body, now)
	var dupErr *duplicateSendError
	if errors.As(err, &dupErr) {
		return s.absorbDuplicate(ctx, in.SenderID, dupErr.msg)
	}
	if err != nil {
		return nil, err
	}

	metrics.MessagesSent.Inc()
	view, err := s.viewOf(ctx, msg)
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyMessage([]string{in.SenderID, in.ReceiverID}, view)
	s.notifier.NotifyWallet(in.SenderID, wallet)
	_ = s.publisher.Publish(ctx, events.MessageSent, events.MessageSentEvent{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		ReceiverID:     msg.ReceiverID,
		RemainingCoins: wallet.RemainingCoins,
		SentAt:         msg.CreatedAt,
	})

	return &domain.SendResult{Message: view, Wallet: wallet}, nil
}

// duplicateSendError rolls back the debit when a concurrent identical send committed first.
type duplicateSendError struct {
	msg *domain.Message
}

func (e *duplicateSendError) Error() string {
	return fmt.Sprintf("duplicate of message %d", e.msg.ID)
}

// appendDebited debits one coin and persists the message in one transaction.
// The duplicate lookup is repeated after the debit claim: the claim holds the sender's
// wallet row until commit, so concurrent sends of the same sender see each other here.
func (s *ChatService) appendDebited(ctx context.Context, conv *domain.Conversation, in SendInput, body string, now time.Time) (*domain.Message, *domain.Wallet, error) {
	var msg *domain.Message
	wallet, err := s.wallets.DebitCoinForMessageSend(ctx, in.SenderID, func(tx *gorm.DB) (int64, error) {
		messages := s.messages.WithTx(tx)
		if s.config.DuplicateWindow > 0 {
			dup, err := messages.FindRecentDuplicate(ctx, conv.ID, in.SenderID, in.ReceiverID, body, now, s.config.DuplicateWindow)
			if err != nil {
				return 0, err
			}
			if dup != nil {
				return 0, &duplicateSendError{msg: dup}
			}
		}

		m, err := messages.Append(ctx, AppendInput{
			ConversationID: conv.ID,
			SenderID:       in.SenderID,
			ReceiverID:     in.ReceiverID,
			Body:           body,
			At:             now,
		})
		if err != nil {
			return 0, err
		}
		if err := s.conversations.WithTx(tx).RecordLastMessage(ctx, conv, body, in.SenderID, now); err != nil {
			return 0, err
		}
		msg = m
		return m.ID, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return msg, wallet, nil
}

func (s *ChatService) absorbDuplicate(ctx context.Context, senderID string, dup *domain.Message) (*domain.SendResult, error) {
	metrics.DuplicateSends.Inc()
	pkglogger.WithUserID(senderID).Debug().Int64("message_id", dup.ID).Msg("duplicate send absorbed")
	view, err := s.viewOf(ctx, dup)
	if err != nil {
		return nil, err
	}
	return &domain.SendResult{Message: view, Duplicate: true}, nil
}

func (s *ChatService) requireUser(ctx context.Context, id, notFound string) (*domain.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NewNotFoundError(notFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (s *ChatService) viewOf(ctx context.Context, msg *domain.Message) (*domain.MessageView, error) {
	users, err := s.users.FindByIDs(ctx, []string{msg.SenderID, msg.ReceiverID})
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	readers, err := s.messages.Readers(ctx, []int64{msg.ID})
	if err != nil {
		return nil, fmt.Errorf("load read set: %w", err)
	}
	view := buildView(msg, readers[msg.ID], users)
	return &view, nil
}

// buildView IsRead reflects the receiver, not the viewer.
func buildView(msg *domain.Message, readBy []string, users map[string]*domain.User) domain.MessageView {
	if readBy == nil {
		readBy = []string{}
	}
	isRead := false
	for _, id := range readBy {
		if id == msg.ReceiverID {
			isRead = true
			break
		}
	}
	return domain.MessageView{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		ReceiverID:     msg.ReceiverID,
		Sender:         summaryOf(users[msg.SenderID], msg.SenderID),
		Receiver:       summaryOf(users[msg.ReceiverID], msg.ReceiverID),
		Body:           msg.Body,
		ReadBy:         readBy,
		IsRead:         isRead,
		CreatedAt:      msg.CreatedAt,
		UpdatedAt:      msg.UpdatedAt,
	}
}
