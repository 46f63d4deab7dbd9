package repository

import (
	"context"
	"time"

	"github.com/damoang/coinchat/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationRepository conversation directory persistence
type ConversationRepository interface {
	WithTx(tx *gorm.DB) ConversationRepository
	FindByID(ctx context.Context, id int64) (*domain.Conversation, error)
	FindByHash(ctx context.Context, hash string) (*domain.Conversation, error)
	// CreateIfAbsent inserts c unless its hash already exists and returns the stored row either way.
	CreateIfAbsent(ctx context.Context, c *domain.Conversation) (*domain.Conversation, error)
	UpdatePreview(ctx context.Context, id int64, body, senderID string, at time.Time) error
	ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new ConversationRepository
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) WithTx(tx *gorm.DB) ConversationRepository {
	return &conversationRepository{db: tx}
}

func (r *conversationRepository) FindByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *conversationRepository) FindByHash(ctx context.Context, hash string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := r.db.WithContext(ctx).Where("participants_hash = ?", hash).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *conversationRepository) CreateIfAbsent(ctx context.Context, c *domain.Conversation) (*domain.Conversation, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "participants_hash"}}, DoNothing: true}).
		Create(c)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 1 && c.ID != 0 {
		return c, nil
	}
	// lost the race: the unique index kept the other insert
	return r.FindByHash(ctx, c.ParticipantsHash)
}

// UpdatePreview overwrites the denormalized preview unless a later message already did.
func (r *conversationRepository) UpdatePreview(ctx context.Context, id int64, body, senderID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Conversation{}).
		Where("id = ? AND (last_message_at IS NULL OR last_message_at <= ?)", id, at).
		Updates(map[string]interface{}{
			"last_message":        body,
			"last_message_sender": senderID,
			"last_message_at":     at,
		}).Error
}

// ListForUser most recently active first
func (r *conversationRepository) ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	var convs []domain.Conversation
	err := r.db.WithContext(ctx).
		Where("participant_a = ? OR participant_b = ?", userID, userID).
		Order("last_message_at DESC, id DESC").
		Find(&convs).Error
	return convs, err
}
