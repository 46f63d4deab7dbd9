package domain

import (
	"sort"
	"strings"
	"time"
)

// pairSeparator joins the sorted participant ids in a conversation hash
const pairSeparator = ":"

// Conversation one per unordered pair of users
type Conversation struct {
	ID                int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ParticipantA      string     `gorm:"column:participant_a;size:36;not null;index" json:"participantA"`
	ParticipantB      string     `gorm:"column:participant_b;size:36;not null;index" json:"participantB"`
	ParticipantsHash  string     `gorm:"column:participants_hash;size:80;not null;uniqueIndex" json:"-"`
	LastMessage       string     `gorm:"column:last_message;type:text" json:"lastMessage"`
	LastMessageSender string     `gorm:"column:last_message_sender;size:36" json:"lastMessageSender,omitempty"`
	LastMessageAt     *time.Time `gorm:"column:last_message_at;index" json:"lastMessageAt,omitempty"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// PairHash returns the order-independent key for two participants.
func PairHash(userA, userB string) string {
	ids := []string{userA, userB}
	sort.Strings(ids)
	return strings.Join(ids, pairSeparator)
}

// NewConversation builds an unsaved conversation with participants stored in sorted order.
func NewConversation(userA, userB string) *Conversation {
	a, b := userA, userB
	if b < a {
		a, b = b, a
	}
	return &Conversation{ParticipantA: a, ParticipantB: b, ParticipantsHash: PairHash(a, b)}
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// OtherParticipant returns the counterpart of userID.
func (c *Conversation) OtherParticipant(userID string) string {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// Message direct message. Only the read set mutates after creation.
type Message struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ConversationID int64     `gorm:"column:conversation_id;not null;index:idx_messages_conv_created,priority:1" json:"conversationId"`
	SenderID       string    `gorm:"column:sender_id;size:36;not null;index" json:"senderId"`
	ReceiverID     string    `gorm:"column:receiver_id;size:36;not null;index" json:"receiverId"`
	Body           string    `gorm:"column:body;type:text;not null" json:"body"`
	CreatedAt      time.Time `gorm:"column:created_at;index:idx_messages_conv_created,priority:2" json:"createdAt"`
	UpdatedAt      time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

func (Message) TableName() string {
	return "messages"
}

// MessageRead one member of a message's read set
type MessageRead struct {
	MessageID int64     `gorm:"column:message_id;primaryKey" json:"messageId"`
	UserID    string    `gorm:"column:user_id;primaryKey;size:36" json:"userId"`
	ReadAt    time.Time `gorm:"column:read_at" json:"readAt"`
}

func (MessageRead) TableName() string {
	return "message_reads"
}

// MessageView message enriched for display
type MessageView struct {
	ID             int64       `json:"id"`
	ConversationID int64       `json:"conversationId"`
	SenderID       string      `json:"senderId"`
	ReceiverID     string      `json:"receiverId"`
	Sender         UserSummary `json:"sender"`
	Receiver       UserSummary `json:"receiver"`
	Body           string      `json:"body"`
	ReadBy         []string    `json:"readBy"`
	IsRead         bool        `json:"isRead"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// MessagePage one page of history in chronological order
type MessagePage struct {
	ConversationID int64         `json:"conversationId"`
	Messages       []MessageView `json:"messages"`
	Page           int           `json:"page"`
	Limit          int           `json:"limit"`
	HasMore        bool          `json:"hasMore"`
}

// InboxItem one row of the caller's inbox
type InboxItem struct {
	ConversationID int64       `json:"conversationId"`
	OtherUser      UserSummary `json:"otherUser"`
	LastMessage    string      `json:"lastMessage"`
	LastSenderID   string      `json:"lastMessageSender,omitempty"`
	LastMessageAt  *time.Time  `json:"lastMessageAt,omitempty"`
	UnreadCount    int64       `json:"unreadCount"`
}

// SendMessageRequest POST /chat/messages. Message is accepted as an alias of Body.
type SendMessageRequest struct {
	ReceiverID string `json:"receiverId" binding:"required"`
	Body       string `json:"body"`
	Message    string `json:"message"`
}

// Text returns the body, falling back to the alias field.
func (r SendMessageRequest) Text() string {
	if r.Body != "" {
		return r.Body
	}
	return r.Message
}

// SendResult outcome of a send. Duplicate is true when an identical recent send was reused.
type SendResult struct {
	Message   *MessageView `json:"message"`
	Duplicate bool         `json:"duplicate"`
	Wallet    *Wallet      `json:"wallet,omitempty"`
}
