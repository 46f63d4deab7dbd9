package repository

import (
	"context"
	"errors"
	"time"

	"github.com/damoang/coinchat/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository message data access interface
type MessageRepository interface {
	WithTx(tx *gorm.DB) MessageRepository
	Create(ctx context.Context, msg *domain.Message) error
	// FindRecentDuplicate returns the newest identical message created at or after since, or nil.
	FindRecentDuplicate(ctx context.Context, conversationID int64, senderID, receiverID, body string, since time.Time) (*domain.Message, error)
	// PageNewestFirst returns up to limit messages ordered newest first.
	PageNewestFirst(ctx context.Context, conversationID int64, offset, limit int) ([]domain.Message, error)
	AddReader(ctx context.Context, messageIDs []int64, userID string, at time.Time) error
	UnreadIDs(ctx context.Context, conversationID int64, recipientID string) ([]int64, error)
	Readers(ctx context.Context, messageIDs []int64) (map[int64][]string, error)
	CountUnreadByConversation(ctx context.Context, userID string, conversationIDs []int64) (map[int64]int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) WithTx(tx *gorm.DB) MessageRepository {
	return &messageRepository{db: tx}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *messageRepository) FindRecentDuplicate(ctx context.Context, conversationID int64, senderID, receiverID, body string, since time.Time) (*domain.Message, error) {
	var m domain.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND sender_id = ? AND receiver_id = ? AND body = ? AND created_at >= ?",
			conversationID, senderID, receiverID, body, since).
		Order("created_at DESC, id DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *messageRepository) PageNewestFirst(ctx context.Context, conversationID int64, offset, limit int) ([]domain.Message, error) {
	var msgs []domain.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

// AddReader adds userID to the read set of each message. Existing members are left untouched.
func (r *messageRepository) AddReader(ctx context.Context, messageIDs []int64, userID string, at time.Time) error {
	if len(messageIDs) == 0 {
		return nil
	}
	rows := make([]domain.MessageRead, 0, len(messageIDs))
	for _, id := range messageIDs {
		rows = append(rows, domain.MessageRead{MessageID: id, UserID: userID, ReadAt: at})
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&rows, 200).Error
}

// UnreadIDs messages addressed to recipientID whose read set lacks them
func (r *messageRepository) UnreadIDs(ctx context.Context, conversationID int64, recipientID string) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("conversation_id = ? AND receiver_id = ?", conversationID, recipientID).
		Where("NOT EXISTS (SELECT 1 FROM message_reads mr WHERE mr.message_id = messages.id AND mr.user_id = ?)", recipientID).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *messageRepository) Readers(ctx context.Context, messageIDs []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}
	var rows []domain.MessageRead
	if err := r.db.WithContext(ctx).
		Where("message_id IN ?", messageIDs).
		Order("read_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.MessageID] = append(out[row.MessageID], row.UserID)
	}
	return out, nil
}

type unreadRow struct {
	ConversationID int64
	Unread         int64
}

func (r *messageRepository) CountUnreadByConversation(ctx context.Context, userID string, conversationIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return out, nil
	}
	var rows []unreadRow
	err := r.db.WithContext(ctx).Model(&domain.Message{}).
		Select("conversation_id, COUNT(*) AS unread").
		Where("conversation_id IN ? AND receiver_id = ?", conversationIDs, userID).
		Where("NOT EXISTS (SELECT 1 FROM message_reads mr WHERE mr.message_id = messages.id AND mr.user_id = ?)", userID).
		Group("conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ConversationID] = row.Unread
	}
	return out, nil
}
