package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/damoang/coinchat/internal/domain"
	"github.com/damoang/coinchat/internal/metrics"
	"github.com/damoang/coinchat/internal/typing"
	pkglogger "github.com/damoang/coinchat/pkg/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisPubSubChannel = "coinchat:deliveries"

// Server -> client event types
const (
	EventConnected    = "chat:connected"
	EventMessage      = "chat:message"
	EventTyping       = "chat:typing"
	EventAck          = "chat:ack"
	EventCoinsUpdated = "coins:updated"
)

// Client -> server event types
const (
	EventSend        = "chat:send"
	EventTypingStart = "chat:typing:start"
	EventTypingStop  = "chat:typing:stop"
)

// Event one frame on the socket
type Event struct {
	Type    string      `json:"type"`
	ID      string      `json:"id,omitempty"`
	Payload interface{} `json:"payload"`
}

// WalletPayload coins:updated
type WalletPayload struct {
	RemainingCoins int `json:"remainingCoins"`
}

// Hub keeps per-user delivery channels and fans events out to them.
// Only the Run goroutine mutates clients or closes a client's send channel.
type Hub struct {
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *targetedEvent

	mu          sync.RWMutex
	redisClient *redis.Client
	instanceID  string
	ctx         context.Context
	cancel      context.CancelFunc
}

// targetedEvent goes to every connection of UserID, or only to Client when set.
type targetedEvent struct {
	UserID string
	Client *Client
	Event  *Event
}

// NewHub creates a new Hub. redisClient may be nil for a single instance.
func NewHub(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *targetedEvent, 256),
		redisClient: redisClient,
		instanceID:  uuid.NewString(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	if h.redisClient != nil {
		go h.subscribeRedis()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.userID] == nil {
				h.clients[client.userID] = make(map[*Client]bool)
			}
			h.clients[client.userID][client] = true
			h.mu.Unlock()
			metrics.SocketConnections.Inc()

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg.Event)
			if err != nil {
				pkglogger.WithComponent("ws").Error().Err(err).Str("type", msg.Event.Type).Msg("encode event")
				continue
			}
			h.mu.Lock()
			for client := range h.clients[msg.UserID] {
				if msg.Client != nil && msg.Client != client {
					continue
				}
				select {
				case client.send <- data:
				default:
					// slow consumer
					pkglogger.WithUserID(client.userID).Warn().Msg("dropping slow websocket client")
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			h.mu.Lock()
			for _, clients := range h.clients {
				for client := range clients {
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

// removeLocked closes client.send at most once. Caller holds h.mu.
func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.clients[client.userID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.userID)
	}
	metrics.SocketConnections.Dec()
}

// SendToUser delivers to every local connection of userID and to other instances via Redis.
func (h *Hub) SendToUser(userID string, event *Event) {
	h.deliverLocal(&targetedEvent{UserID: userID, Event: event})

	if h.redisClient != nil {
		data, err := json.Marshal(&redisMessage{Origin: h.instanceID, UserID: userID, Event: event})
		if err == nil {
			if err := h.redisClient.Publish(h.ctx, redisPubSubChannel, data).Err(); err != nil && h.ctx.Err() == nil {
				pkglogger.WithComponent("ws").Warn().Err(err).Msg("redis publish failed")
			}
		}
	}
}

// sendToClient reply to a single connection (acks, connect snapshot). Never crosses instances.
func (h *Hub) sendToClient(client *Client, event *Event) {
	h.deliverLocal(&targetedEvent{UserID: client.userID, Client: client, Event: event})
}

func (h *Hub) deliverLocal(msg *targetedEvent) {
	select {
	case h.broadcast <- msg:
	case <-h.ctx.Done():
	}
}

// NotifyMessage pushes a stored message to each participant.
func (h *Hub) NotifyMessage(userIDs []string, msg *domain.MessageView) {
	seen := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		h.SendToUser(id, &Event{Type: EventMessage, Payload: msg})
	}
}

// NotifyWallet pushes the new balance to its owner.
func (h *Hub) NotifyWallet(userID string, w *domain.Wallet) {
	if w == nil {
		return
	}
	h.SendToUser(userID, &Event{Type: EventCoinsUpdated, Payload: WalletPayload{RemainingCoins: w.RemainingCoins}})
}

// NotifyTyping forwards a presence change to its receiver. Used as the typing.Tracker sink.
func (h *Hub) NotifyTyping(ev typing.Event) {
	h.SendToUser(ev.ReceiverID, &Event{Type: EventTyping, Payload: ev})
}

// IsOnline reports whether userID has a connection on this instance.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

func (h *Hub) connectionsOf(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// ConnectionCount local connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.clients {
		n += len(clients)
	}
	return n
}

type redisMessage struct {
	Origin string `json:"origin"`
	UserID string `json:"user_id"`
	Event  *Event `json:"event"`
}

// subscribeRedis listens for deliveries published by other instances
func (h *Hub) subscribeRedis() {
	pubsub := h.redisClient.Subscribe(h.ctx, redisPubSubChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.handleRemote([]byte(msg.Payload))
		case <-h.ctx.Done():
			return
		}
	}
}

// handleRemote local broadcast only; this instance's own publications were already delivered.
func (h *Hub) handleRemote(payload []byte) {
	var rm redisMessage
	if err := json.Unmarshal(payload, &rm); err != nil {
		pkglogger.WithComponent("ws").Warn().Err(err).Msg("invalid pubsub payload")
		return
	}
	if rm.Origin == h.instanceID || rm.UserID == "" || rm.Event == nil {
		return
	}
	h.deliverLocal(&targetedEvent{UserID: rm.UserID, Event: rm.Event})
}

// Stop gracefully shuts down the hub
func (h *Hub) Stop() {
	h.cancel()
}
