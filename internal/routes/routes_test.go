package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/damoang/coinchat/internal/config"
	"github.com/damoang/coinchat/internal/events"
	"github.com/damoang/coinchat/internal/handler"
	"github.com/damoang/coinchat/internal/migration"
	"github.com/damoang/coinchat/internal/repository"
	"github.com/damoang/coinchat/internal/service"
	"github.com/damoang/coinchat/internal/typing"
	"github.com/damoang/coinchat/internal/ws"
	"github.com/damoang/coinchat/pkg/cache"
	"github.com/damoang/coinchat/pkg/jwt"
	"github.com/damoang/coinchat/pkg/razorpay"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testKeySecret     = "rzp_test_secret"
	testWebhookSecret = "rzp_webhook_secret"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    *struct {
		Page    int  `json:"page"`
		Limit   int  `json:"limit"`
		HasMore bool `json:"hasMore"`
	} `json:"meta"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type RoutesSuite struct {
	suite.Suite
	router   *gin.Engine
	jwt      *jwt.Manager
	hub      *ws.Hub
	tracker  *typing.Tracker
	gateway  *httptest.Server
	orderSeq int

	alice, bob           string
	aliceToken, bobToken string
}

func TestRoutesSuite(t *testing.T) {
	suite.Run(t, new(RoutesSuite))
}

func (s *RoutesSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	t := s.T()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migration.Run(db))

	s.gateway = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req razorpay.OrderRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		s.orderSeq++
		_ = json.NewEncoder(w).Encode(razorpay.Order{
			ID: "order_" + strings.Repeat("x", s.orderSeq), Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: "created",
		})
	}))

	cfg := config.Default()
	cfg.Server.Env = "test"
	cfg.CORS.AllowOrigins = "*"

	s.jwt = jwt.NewManager("route-test-secret", time.Hour)
	s.hub = ws.NewHub(nil)
	go s.hub.Run()
	s.tracker = typing.NewTracker(typing.Config{}, s.hub.NotifyTyping)

	users := repository.NewUserRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	wallets := service.NewWalletService(db, repository.NewWalletRepository(db), cfg.Coins.FreeGrant)
	conversations := service.NewConversationService(repository.NewConversationRepository(db), messageRepo, users)
	messages := service.NewMessageService(messageRepo, service.PageOptions{DefaultSize: 20, MaxSize: 100})
	catalog := service.NewPlanCatalog(repository.NewCoinPlanRepository(db), cache.NewMemory())
	rzp := razorpay.NewClient(razorpay.Config{KeyID: "rzp_test_key", KeySecret: testKeySecret, BaseURL: s.gateway.URL})
	payments := service.NewPaymentService(db, repository.NewPaymentRepository(db), catalog, wallets, rzp, events.NewNopPublisher(), s.hub,
		service.PaymentConfig{KeySecret: testKeySecret, WebhookSecret: testWebhookSecret, Currency: "INR"})
	chat := service.NewChatService(db, users, wallets, conversations, messages, s.hub, events.NewNopPublisher(),
		service.ChatConfig{DuplicateWindow: 3 * time.Second})

	s.router = NewRouter(Deps{Config: cfg, JWT: s.jwt, Identity: chat, HealthPing: sqlDB.Ping}, Handlers{
		Chat:    handler.NewChatHandler(chat),
		Coin:    handler.NewCoinHandler(wallets, payments),
		Payment: handler.NewPaymentHandler(payments),
		WS:      handler.NewWSHandler(ws.NewGateway(s.hub, chat, s.tracker), s.jwt, chat, ""),
	})

	s.alice, s.bob = uuid.NewString(), uuid.NewString()
	s.aliceToken = s.token(s.alice, "Alice")
	s.bobToken = s.token(s.bob, "Bob")
	// 첫 요청에서 사용자 디렉터리에 등록된다
	s.call(http.MethodGet, "/api/coins/wallet", s.bobToken, nil)

	t.Cleanup(func() {
		s.tracker.Close()
		s.hub.Stop()
		s.gateway.Close()
		_ = sqlDB.Close()
	})
}

func (s *RoutesSuite) token(userID, name string) string {
	tok, err := s.jwt.GenerateToken(userID, name, strings.ToLower(name)+"@example.com")
	s.Require().NoError(err)
	return tok
}

func (s *RoutesSuite) call(method, path, token string, body interface{}) (int, apiResponse) {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp apiResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec.Code, resp
}

func (s *RoutesSuite) remainingCoins(token string) int {
	code, resp := s.call(http.MethodGet, "/api/coins/wallet", token, nil)
	s.Require().Equal(http.StatusOK, code)
	var w struct {
		RemainingCoins int `json:"remainingCoins"`
	}
	s.Require().NoError(json.Unmarshal(resp.Data, &w))
	return w.RemainingCoins
}

func (s *RoutesSuite) TestHealth() {
	code, _ := s.call(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusOK, code)
}

func (s *RoutesSuite) TestSwaggerDocs() {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	s.Require().Equal(http.StatusOK, rec.Code)

	var doc struct {
		BasePath string                     `json:"basePath"`
		Paths    map[string]json.RawMessage `json:"paths"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &doc))
	s.Equal("/api", doc.BasePath)
	for _, p := range []string{"/chat/messages", "/chat/inbox", "/coins/wallet", "/payments/razorpay/verify", "/payments/razorpay/webhook"} {
		s.Contains(doc.Paths, p)
	}

	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	s.Equal(http.StatusOK, rec.Code)
}

func (s *RoutesSuite) TestRequiresToken() {
	code, resp := s.call(http.MethodGet, "/api/chat/inbox", "", nil)
	s.Equal(http.StatusUnauthorized, code)
	s.Require().NotNil(resp.Error)
	s.Equal("UNAUTHORIZED", resp.Error.Code)

	code, _ = s.call(http.MethodGet, "/api/chat/inbox", "not.a.jwt", nil)
	s.Equal(http.StatusUnauthorized, code)
}

func (s *RoutesSuite) TestSendAndRead() {
	s.Equal(20, s.remainingCoins(s.aliceToken))

	code, resp := s.call(http.MethodPost, "/api/chat/messages", s.aliceToken, map[string]string{"receiverId": s.bob, "message": "hi bob"})
	s.Require().Equal(http.StatusCreated, code, string(resp.Data))
	var sent struct {
		Message struct {
			ID             int64  `json:"id"`
			ConversationID int64  `json:"conversationId"`
			Body           string `json:"body"`
		} `json:"message"`
		Wallet struct {
			RemainingCoins int `json:"remainingCoins"`
		} `json:"wallet"`
	}
	s.Require().NoError(json.Unmarshal(resp.Data, &sent))
	s.Equal("hi bob", sent.Message.Body)
	s.Equal(19, sent.Wallet.RemainingCoins)

	code, _ = s.call(http.MethodPost, "/api/chat/messages", s.aliceToken, map[string]string{"receiverId": s.bob, "message": "hi bob"})
	s.Equal(http.StatusOK, code, "duplicate send is absorbed")
	s.Equal(19, s.remainingCoins(s.aliceToken))

	code, resp = s.call(http.MethodGet, "/api/chat/inbox", s.bobToken, nil)
	s.Require().Equal(http.StatusOK, code)
	var inbox []struct {
		ConversationID int64  `json:"conversationId"`
		LastMessage    string `json:"lastMessage"`
		UnreadCount    int64  `json:"unreadCount"`
		OtherUser      struct {
			Name string `json:"name"`
		} `json:"otherUser"`
	}
	s.Require().NoError(json.Unmarshal(resp.Data, &inbox))
	s.Require().Len(inbox, 1)
	s.Equal("hi bob", inbox[0].LastMessage)
	s.Equal(int64(1), inbox[0].UnreadCount)
	s.Equal("Alice", inbox[0].OtherUser.Name)

	code, resp = s.call(http.MethodGet, "/api/chat/messages/"+s.alice+"?pageSize=5", s.bobToken, nil)
	s.Require().Equal(http.StatusOK, code)
	s.Require().NotNil(resp.Meta)
	s.Equal(5, resp.Meta.Limit)
	s.False(resp.Meta.HasMore)

	code, resp = s.call(http.MethodGet, "/api/chat/inbox", s.bobToken, nil)
	s.Require().Equal(http.StatusOK, code)
	s.Require().NoError(json.Unmarshal(resp.Data, &inbox))
	s.Equal(int64(0), inbox[0].UnreadCount)

	conv := sent.Message.ConversationID
	code, _ = s.call(http.MethodGet, "/api/chat/messages/conversation/"+itoa(conv), s.aliceToken, nil)
	s.Equal(http.StatusOK, code)
	code, _ = s.call(http.MethodPost, "/api/chat/conversations/"+itoa(conv)+"/read", s.bobToken, nil)
	s.Equal(http.StatusOK, code)

	outsider := s.token(uuid.NewString(), "Eve")
	code, resp = s.call(http.MethodGet, "/api/chat/messages/conversation/"+itoa(conv), outsider, nil)
	s.Equal(http.StatusForbidden, code)
	s.Equal("FORBIDDEN", resp.Error.Code)
}

func (s *RoutesSuite) TestSendValidation() {
	code, _ := s.call(http.MethodPost, "/api/chat/messages", s.aliceToken, map[string]string{"body": "no receiver"})
	s.Equal(http.StatusBadRequest, code)

	code, resp := s.call(http.MethodPost, "/api/chat/messages", s.aliceToken, map[string]string{"receiverId": uuid.NewString(), "body": "hi"})
	s.Equal(http.StatusNotFound, code)
	s.Equal("Receiver user not found", resp.Error.Message)
}

func (s *RoutesSuite) TestPurchaseFlow() {
	s.Equal(20, s.remainingCoins(s.aliceToken))
	code, resp := s.call(http.MethodGet, "/api/coins/plans", s.aliceToken, nil)
	s.Require().Equal(http.StatusOK, code)
	var plans []struct {
		PlanID     string `json:"planId"`
		TotalCoins int    `json:"totalCoins"`
	}
	s.Require().NoError(json.Unmarshal(resp.Data, &plans))
	s.Require().Len(plans, 3)
	s.Equal("coins-199", plans[0].PlanID)
	s.Equal(220, plans[0].TotalCoins)

	code, resp = s.call(http.MethodPost, "/api/payments/razorpay/order", s.aliceToken, map[string]string{"planId": "coins-199"})
	s.Require().Equal(http.StatusCreated, code, string(resp.Data))
	var order struct {
		OrderID string `json:"orderId"`
		Amount  int64  `json:"amount"`
		KeyID   string `json:"keyId"`
	}
	s.Require().NoError(json.Unmarshal(resp.Data, &order))
	s.Equal(int64(19900), order.Amount)
	s.Equal("rzp_test_key", order.KeyID)

	verify := map[string]string{
		"planId":              "coins-199",
		"razorpay_order_id":   order.OrderID,
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  "bogus",
	}
	code, resp = s.call(http.MethodPost, "/api/payments/razorpay/verify", s.aliceToken, verify)
	s.Equal(http.StatusBadRequest, code)
	s.Equal("INVALID_SIGNATURE", resp.Error.Code)

	verify["razorpay_signature"] = razorpay.PaymentSignature(testKeySecret, order.OrderID, "pay_1")
	for i, already := range []bool{false, true} {
		code, resp = s.call(http.MethodPost, "/api/payments/razorpay/verify", s.aliceToken, verify)
		s.Require().Equal(http.StatusOK, code, "attempt %d", i)
		var result struct {
			AlreadyCredited bool `json:"alreadyCredited"`
			Wallet          struct {
				RemainingCoins int `json:"remainingCoins"`
			} `json:"wallet"`
		}
		s.Require().NoError(json.Unmarshal(resp.Data, &result))
		s.Equal(already, result.AlreadyCredited)
		s.Equal(240, result.Wallet.RemainingCoins)
	}

	code, _ = s.call(http.MethodPost, "/api/payments/razorpay/verify", s.bobToken, verify)
	s.Equal(http.StatusNotFound, code)
}

func (s *RoutesSuite) TestWebhookCredits() {
	code, resp := s.call(http.MethodPost, "/api/payments/razorpay/order", s.bobToken, map[string]string{"planId": "coins-399"})
	s.Require().Equal(http.StatusCreated, code)
	var order struct {
		OrderID string `json:"orderId"`
	}
	s.Require().NoError(json.Unmarshal(resp.Data, &order))

	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_wh","order_id":"` + order.OrderID + `"}}}}`)
	send := func(sig string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/payments/razorpay/webhook", bytes.NewReader(body))
		req.Header.Set("X-Razorpay-Signature", sig)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		return rec.Code
	}

	s.Equal(http.StatusBadRequest, send("nope"))
	s.Equal(http.StatusOK, send(razorpay.WebhookSignature(testWebhookSecret, body)))
	s.Equal(http.StatusOK, send(razorpay.WebhookSignature(testWebhookSecret, body)))
	s.Equal(20+510, s.remainingCoins(s.bobToken))
}

func (s *RoutesSuite) TestWebSocketHandshake() {
	srv := httptest.NewServer(s.router)
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(base+"?token=bad", nil)
	s.Require().Error(err)
	s.Require().NotNil(resp)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	bobConn, _, err := websocket.DefaultDialer.Dial(base+"?token="+s.bobToken, nil)
	s.Require().NoError(err)
	defer bobConn.Close()
	s.Equal(ws.EventConnected, s.readType(bobConn))

	header := http.Header{"Authorization": {"Bearer " + s.aliceToken}}
	aliceConn, _, err := websocket.DefaultDialer.Dial(base, header)
	s.Require().NoError(err)
	defer aliceConn.Close()
	s.Equal(ws.EventConnected, s.readType(aliceConn))

	s.Require().NoError(aliceConn.WriteJSON(map[string]interface{}{
		"type": ws.EventSend, "id": "m1", "payload": map[string]string{"receiverId": s.bob, "body": "over the socket"},
	}))

	seen := map[string]bool{}
	for i := 0; i < 3 && !(seen[ws.EventAck] && seen[ws.EventMessage] && seen[ws.EventCoinsUpdated]); i++ {
		seen[s.readType(aliceConn)] = true
	}
	s.True(seen[ws.EventAck])
	s.True(seen[ws.EventMessage])
	s.True(seen[ws.EventCoinsUpdated])
	s.Equal(ws.EventMessage, s.readType(bobConn))
}

func (s *RoutesSuite) readType(conn *websocket.Conn) string {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	var f struct {
		Type string `json:"type"`
	}
	s.Require().NoError(conn.ReadJSON(&f))
	return f.Type
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
