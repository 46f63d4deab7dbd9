package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/damoang/coinchat/internal/common"
	"github.com/damoang/coinchat/internal/domain"
	"github.com/damoang/coinchat/internal/service"
	"github.com/damoang/coinchat/internal/typing"
	pkglogger "github.com/damoang/coinchat/pkg/logger"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
)

const sendTimeout = 10 * time.Second

// MessageSender the chat operation behind chat:send
type MessageSender interface {
	SendMessage(ctx context.Context, in service.SendInput) (*domain.SendResult, error)
}

type inboundFrame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

type sendPayload struct {
	ReceiverID string `json:"receiverId" validate:"required,uuid"`
	Body       string `json:"body" validate:"required"`
}

type typingPayload struct {
	ReceiverID     string `json:"receiverId" validate:"required,uuid"`
	ConversationID int64  `json:"conversationId" validate:"gte=0"`
}

// ConnectedPayload chat:connected
type ConnectedPayload struct {
	UserID string `json:"userId"`
}

// AckPayload chat:ack reply to a client frame that carried an id
type AckPayload struct {
	ID        string              `json:"id"`
	OK        bool                `json:"ok"`
	Message   *domain.MessageView `json:"message,omitempty"`
	Duplicate bool                `json:"duplicate,omitempty"`
	Error     *common.ErrorInfo   `json:"error,omitempty"`
}

// Gateway binds authenticated sockets to the hub, the chat service and typing presence.
type Gateway struct {
	hub      *Hub
	sender   MessageSender
	tracker  *typing.Tracker
	validate *validator.Validate
}

// NewGateway creates a new Gateway
func NewGateway(hub *Hub, sender MessageSender, tracker *typing.Tracker) *Gateway {
	return &Gateway{
		hub:      hub,
		sender:   sender,
		tracker:  tracker,
		validate: validator.New(),
	}
}

// Serve registers an upgraded connection for userID and starts its pumps.
func (g *Gateway) Serve(conn *websocket.Conn, userID string) *Client {
	client := newClient(g, conn, userID)
	g.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	g.hub.sendToClient(client, &Event{Type: EventConnected, Payload: ConnectedPayload{UserID: userID}})
	if g.tracker != nil {
		for _, ev := range g.tracker.Active(userID) {
			g.hub.sendToClient(client, &Event{Type: EventTyping, Payload: ev})
		}
	}
	pkglogger.WithUserID(userID).Debug().Msg("websocket connected")
	return client
}

func (g *Gateway) dispatch(c *Client, data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		g.ack(c, "", nil, false, common.NewValidationError("Malformed frame"))
		return
	}

	switch frame.Type {
	case EventSend:
		g.handleSend(c, frame)
	case EventTypingStart, EventTypingStop:
		var p typingPayload
		if err := g.decode(frame.Payload, &p); err != nil {
			g.ack(c, frame.ID, nil, false, err)
			return
		}
		if g.tracker == nil {
			return
		}
		if frame.Type == EventTypingStart {
			g.tracker.Start(c.userID, p.ReceiverID, p.ConversationID)
		} else {
			g.tracker.Stop(c.userID, p.ReceiverID)
		}
		if frame.ID != "" {
			g.ack(c, frame.ID, nil, false, nil)
		}
	default:
		g.ack(c, frame.ID, nil, false, common.NewValidationError("Unknown event type"))
	}
}

func (g *Gateway) handleSend(c *Client, frame inboundFrame) {
	var p sendPayload
	if err := g.decode(frame.Payload, &p); err != nil {
		g.ack(c, frame.ID, nil, false, err)
		return
	}

	ctx, cancel := context.WithTimeout(g.hub.ctx, sendTimeout)
	defer cancel()
	res, err := g.sender.SendMessage(ctx, service.SendInput{SenderID: c.userID, ReceiverID: p.ReceiverID, Body: p.Body})
	if err != nil {
		if common.Classify(err).Status >= 500 {
			pkglogger.WithUserID(c.userID).Error().Err(err).Msg("socket send failed")
		}
		g.ack(c, frame.ID, nil, false, err)
		return
	}
	if g.tracker != nil {
		g.tracker.Stop(c.userID, p.ReceiverID)
	}
	g.ack(c, frame.ID, res.Message, res.Duplicate, nil)
}

func (g *Gateway) decode(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return common.NewValidationError("Missing payload")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return common.NewValidationError("Malformed payload")
	}
	if err := g.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return common.NewValidationError("Invalid " + verrs[0].Field())
		}
		return common.NewValidationError(err.Error())
	}
	return nil
}

func (g *Gateway) ack(c *Client, id string, msg *domain.MessageView, duplicate bool, err error) {
	payload := AckPayload{ID: id, OK: err == nil, Message: msg, Duplicate: duplicate}
	if err != nil {
		appErr := common.Classify(err)
		payload.Error = &common.ErrorInfo{Code: appErr.Code, Message: appErr.Message}
	}
	g.hub.sendToClient(c, &Event{Type: EventAck, ID: id, Payload: payload})
}

// disconnected runs before the hub drops c, so a count of 1 means this was the last connection.
func (g *Gateway) disconnected(c *Client) {
	if g.tracker != nil && g.hub.connectionsOf(c.userID) <= 1 {
		g.tracker.Disconnect(c.userID)
	}
	pkglogger.WithUserID(c.userID).Debug().Msg("websocket disconnected")
}
