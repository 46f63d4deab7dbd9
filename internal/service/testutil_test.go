package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/damoang/coinchat/internal/domain"
	"github.com/damoang/coinchat/internal/events"
	"github.com/damoang/coinchat/internal/repository"
	"github.com/damoang/coinchat/pkg/cache"
	"github.com/damoang/coinchat/pkg/razorpay"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testKeySecret = "test_secret"

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&domain.User{}, &domain.Wallet{}, &domain.LedgerEntry{}, &domain.CoinPlan{},
		&domain.PaymentTransaction{}, &domain.Conversation{}, &domain.Message{}, &domain.MessageRead{},
	))
	require.NoError(t, repository.NewCoinPlanRepository(db).Upsert(context.Background(), domain.DefaultCoinPlans()))
	return db
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type pushedMessage struct {
	To  []string
	Msg *domain.MessageView
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []pushedMessage
	wallets  map[string]int
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{wallets: make(map[string]int)}
}

func (n *recordingNotifier) NotifyMessage(userIDs []string, msg *domain.MessageView) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, pushedMessage{To: userIDs, Msg: msg})
}

func (n *recordingNotifier) NotifyWallet(userID string, w *domain.Wallet) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.wallets[userID] = w.RemainingCoins
}

func (n *recordingNotifier) Pushed() []pushedMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]pushedMessage(nil), n.messages...)
}

type fakeGateway struct {
	mu     sync.Mutex
	orders int
	err    error
}

func (g *fakeGateway) CreateOrder(_ context.Context, req razorpay.OrderRequest) (*razorpay.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.orders++
	return &razorpay.Order{ID: "order_" + uuid.NewString()[:8], Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: "created"}, nil
}

func (g *fakeGateway) KeyID() string { return "rzp_test_key" }

type testStack struct {
	db       *gorm.DB
	clock    *fakeClock
	notifier *recordingNotifier
	recorder *events.Recorder
	gateway  *fakeGateway

	walletRepo repository.WalletRepository
	users      repository.UserRepository

	wallets       *WalletService
	conversations *ConversationService
	messages      *MessageService
	payments      *PaymentService
	chat          *ChatService
}

func newTestStack(t *testing.T, freeGrant int) *testStack {
	t.Helper()
	db := setupTestDB(t)
	st := &testStack{
		db:       db,
		clock:    newFakeClock(),
		notifier: newRecordingNotifier(),
		recorder: events.NewRecorder(),
		gateway:  &fakeGateway{},
	}

	st.walletRepo = repository.NewWalletRepository(db)
	st.users = repository.NewUserRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	st.wallets = NewWalletService(db, st.walletRepo, freeGrant)
	st.conversations = NewConversationService(repository.NewConversationRepository(db), messageRepo, st.users)
	st.messages = NewMessageService(messageRepo, PageOptions{DefaultSize: 20, MaxSize: 100})
	catalog := NewPlanCatalog(repository.NewCoinPlanRepository(db), cache.NewMemory())
	st.payments = NewPaymentService(db, repository.NewPaymentRepository(db), catalog, st.wallets, st.gateway, st.recorder, st.notifier,
		PaymentConfig{KeySecret: testKeySecret, WebhookSecret: "whsec", Currency: "INR"})
	st.payments.now = st.clock.Now
	st.chat = NewChatService(db, st.users, st.wallets, st.conversations, st.messages, st.notifier, st.recorder,
		ChatConfig{DuplicateWindow: 3 * time.Second, PartnerLimit: 50, MaxPartnerLimit: 100})
	st.chat.SetClock(st.clock.Now)
	return st
}

func (st *testStack) newUser(t *testing.T, name string) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, st.chat.SyncUser(context.Background(), id, name, name+"@example.com"))
	return id
}

func (st *testStack) ledgerCount(t *testing.T, userID string, source domain.LedgerSource) int64 {
	t.Helper()
	n, err := st.walletRepo.CountLedger(context.Background(), userID, source)
	require.NoError(t, err)
	return n
}
