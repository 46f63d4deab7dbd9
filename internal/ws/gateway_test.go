package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/damoang/coinchat/internal/common"
	"github.com/damoang/coinchat/internal/domain"
	"github.com/damoang/coinchat/internal/service"
	"github.com/damoang/coinchat/internal/typing"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu    sync.Mutex
	calls []service.SendInput
	err   error
}

func (f *fakeSender) SendMessage(_ context.Context, in service.SendInput) (*domain.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, in)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SendResult{Message: &domain.MessageView{
		ID: int64(len(f.calls)), SenderID: in.SenderID, ReceiverID: in.ReceiverID, Body: in.Body,
	}}, nil
}

type frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

type testGateway struct {
	hub     *Hub
	sender  *fakeSender
	tracker *typing.Tracker
	server  *httptest.Server
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	hub := NewHub(nil)
	go hub.Run()

	tg := &testGateway{hub: hub, sender: &fakeSender{}}
	tg.tracker = typing.NewTracker(typing.Config{IdleStop: time.Minute, StaleAfter: time.Minute}, hub.NotifyTyping)
	gw := NewGateway(hub, tg.sender, tg.tracker)

	upgrader := websocket.Upgrader{}
	tg.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		gw.Serve(conn, r.URL.Query().Get("user"))
	}))
	t.Cleanup(func() {
		tg.server.Close()
		tg.tracker.Close()
		hub.Stop()
	})
	return tg
}

func (tg *testGateway) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(tg.server.URL, "http") + "/?user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	connected := readFrame(t, conn)
	require.Equal(t, EventConnected, connected.Type)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func readUntil(t *testing.T, conn *websocket.Conn, eventType string) frame {
	t.Helper()
	for i := 0; i < 10; i++ {
		if f := readFrame(t, conn); f.Type == eventType {
			return f
		}
	}
	t.Fatalf("no %s frame received", eventType)
	return frame{}
}

func writeFrame(t *testing.T, conn *websocket.Conn, eventType, id string, payload interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": eventType, "id": id, "payload": payload}))
}

func decodeAck(t *testing.T, f frame) AckPayload {
	t.Helper()
	var ack AckPayload
	require.NoError(t, json.Unmarshal(f.Payload, &ack))
	return ack
}

func TestGateway_SendAcknowledged(t *testing.T) {
	tg := newTestGateway(t)
	alice, bob := uuid.NewString(), uuid.NewString()
	conn := tg.dial(t, alice)

	writeFrame(t, conn, EventSend, "c1", map[string]string{"receiverId": bob, "body": "hello"})
	f := readUntil(t, conn, EventAck)
	assert.Equal(t, "c1", f.ID)
	ack := decodeAck(t, f)
	assert.True(t, ack.OK)
	require.NotNil(t, ack.Message)
	assert.Equal(t, "hello", ack.Message.Body)

	tg.sender.mu.Lock()
	defer tg.sender.mu.Unlock()
	require.Len(t, tg.sender.calls, 1)
	assert.Equal(t, service.SendInput{SenderID: alice, ReceiverID: bob, Body: "hello"}, tg.sender.calls[0])
}

func TestGateway_SendValidation(t *testing.T) {
	tg := newTestGateway(t)
	conn := tg.dial(t, uuid.NewString())

	writeFrame(t, conn, EventSend, "bad", map[string]string{"receiverId": "not-a-uuid", "body": "x"})
	ack := decodeAck(t, readUntil(t, conn, EventAck))
	assert.False(t, ack.OK)
	require.NotNil(t, ack.Error)
	assert.Equal(t, common.CodeValidation, ack.Error.Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	ack = decodeAck(t, readUntil(t, conn, EventAck))
	assert.False(t, ack.OK)

	tg.sender.mu.Lock()
	defer tg.sender.mu.Unlock()
	assert.Empty(t, tg.sender.calls)
}

func TestGateway_SendInsufficientCoins(t *testing.T) {
	tg := newTestGateway(t)
	tg.sender.err = common.ErrInsufficientCoins
	conn := tg.dial(t, uuid.NewString())

	writeFrame(t, conn, EventSend, "c2", map[string]string{"receiverId": uuid.NewString(), "body": "hi"})
	ack := decodeAck(t, readUntil(t, conn, EventAck))
	assert.False(t, ack.OK)
	require.NotNil(t, ack.Error)
	assert.Equal(t, common.CodeInsufficientCoins, ack.Error.Code)
}

func TestGateway_TypingRelayAndDisconnect(t *testing.T) {
	tg := newTestGateway(t)
	alice, bob := uuid.NewString(), uuid.NewString()
	aliceConn := tg.dial(t, alice)
	bobConn := tg.dial(t, bob)

	writeFrame(t, aliceConn, EventTypingStart, "", map[string]interface{}{"receiverId": bob, "conversationId": 9})
	f := readUntil(t, bobConn, EventTyping)
	var ev typing.Event
	require.NoError(t, json.Unmarshal(f.Payload, &ev))
	assert.Equal(t, typing.Event{SenderID: alice, ReceiverID: bob, ConversationID: 9, IsTyping: true}, ev)

	require.NoError(t, aliceConn.Close())
	f = readUntil(t, bobConn, EventTyping)
	require.NoError(t, json.Unmarshal(f.Payload, &ev))
	assert.False(t, ev.IsTyping)
	assert.Equal(t, alice, ev.SenderID)
}

func TestGateway_ConnectPrimesActiveTyping(t *testing.T) {
	tg := newTestGateway(t)
	alice, bob := uuid.NewString(), uuid.NewString()
	tg.tracker.Start(alice, bob, 0)

	url := "ws" + strings.TrimPrefix(tg.server.URL, "http") + "/?user=" + bob
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, EventConnected, readFrame(t, conn).Type)
	f := readFrame(t, conn)
	assert.Equal(t, EventTyping, f.Type)
}

func TestHub_FansOutToEveryConnection(t *testing.T) {
	tg := newTestGateway(t)
	user := uuid.NewString()
	first := tg.dial(t, user)
	second := tg.dial(t, user)

	require.Eventually(t, func() bool { return tg.hub.ConnectionCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, tg.hub.IsOnline(user))

	tg.hub.NotifyMessage([]string{user, user}, &domain.MessageView{ID: 5, Body: "fan"})
	tg.hub.NotifyWallet(user, &domain.Wallet{UserID: user, RemainingCoins: 12})

	for _, conn := range []*websocket.Conn{first, second} {
		f := readUntil(t, conn, EventMessage)
		var view domain.MessageView
		require.NoError(t, json.Unmarshal(f.Payload, &view))
		assert.Equal(t, int64(5), view.ID)

		f = readFrame(t, conn)
		assert.Equal(t, EventCoinsUpdated, f.Type)
		assert.JSONEq(t, `{"remainingCoins":12}`, string(f.Payload))
	}
}

func TestHub_HandleRemoteSkipsOwnPublications(t *testing.T) {
	tg := newTestGateway(t)
	user := uuid.NewString()
	conn := tg.dial(t, user)

	own, _ := json.Marshal(redisMessage{Origin: tg.hub.instanceID, UserID: user, Event: &Event{Type: EventMessage, Payload: "own"}})
	tg.hub.handleRemote(own)
	remote, _ := json.Marshal(redisMessage{Origin: "other", UserID: user, Event: &Event{Type: EventMessage, Payload: "remote"}})
	tg.hub.handleRemote(remote)
	tg.hub.handleRemote([]byte("garbage"))

	f := readFrame(t, conn)
	assert.Equal(t, EventMessage, f.Type)
	assert.JSONEq(t, `"remote"`, string(f.Payload))
}
