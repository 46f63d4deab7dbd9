package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/damoang/coinchat/internal/config"
	"github.com/damoang/coinchat/internal/events"
	"github.com/damoang/coinchat/internal/handler"
	"github.com/damoang/coinchat/internal/middleware"
	"github.com/damoang/coinchat/internal/migration"
	"github.com/damoang/coinchat/internal/repository"
	"github.com/damoang/coinchat/internal/routes"
	"github.com/damoang/coinchat/internal/service"
	"github.com/damoang/coinchat/internal/typing"
	"github.com/damoang/coinchat/internal/ws"
	pkgcache "github.com/damoang/coinchat/pkg/cache"
	"github.com/damoang/coinchat/pkg/jwt"
	pkglogger "github.com/damoang/coinchat/pkg/logger"
	"github.com/damoang/coinchat/pkg/razorpay"
	pkgredis "github.com/damoang/coinchat/pkg/redis"
	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// @title           Coinchat API
// @version         1.0
// @description     Coin wallet, Razorpay checkout and paid 1:1 chat
//
// @license.name    MIT
//
// @host            localhost:8080
// @BasePath        /api
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Authorization header using the Bearer scheme. Example: "Bearer {token}"

// getConfigPath returns config file path based on APP_ENV environment variable
func getConfigPath() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	return fmt.Sprintf("configs/config.%s.yaml", env)
}

func main() {
	dotenvFiles := config.LoadDotEnv()

	// 로거 초기화
	pkglogger.Init()
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	pkglogger.InitStructured(env)
	pkglogger.Info("APP_ENV=%s, loaded env files: %v", env, dotenvFiles)

	// 설정 로드
	configPath := getConfigPath()
	pkglogger.Info("Loading config from: %s", configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config.LogResolved(cfg)

	// MySQL 연결 (지갑/메시지 저장소라 DB 없이는 기동하지 않는다)
	db, err := initDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	pkglogger.Info("Connected to MySQL")
	if err := migration.Run(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get underlying DB: %v", err)
	}

	// Redis 연결 (optional: pub/sub fan-out, rate limit, plan cache)
	redisClient, err := pkgredis.NewClient(pkgredis.Options{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		pkglogger.Warn("Failed to connect to Redis: %v (continuing without Redis)", err)
		redisClient = nil
	} else {
		pkglogger.Info("Connected to Redis")
	}

	var cacheService pkgcache.Service
	if redisClient != nil {
		cacheService = pkgcache.NewService(redisClient)
	} else {
		cacheService = pkgcache.NewMemory()
	}

	// Domain events
	var publisher events.Publisher = events.NewNopPublisher()
	if cfg.AMQP.Enabled() {
		publisher = events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, events.AMQPOptions{})
		pkglogger.Info("Publishing domain events to exchange %q", cfg.AMQP.Exchange)
	}
	defer publisher.Close()

	jwtManager := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.ExpiresIn)
	rzp := razorpay.NewClient(razorpay.Config{
		KeyID:     cfg.Razorpay.KeyID,
		KeySecret: cfg.Razorpay.KeySecret,
		BaseURL:   cfg.Razorpay.BaseURL,
	})

	// WebSocket Hub + typing presence
	wsHub := ws.NewHub(redisClient)
	go wsHub.Run()
	tracker := typing.NewTracker(typing.Config{
		StartThrottle: cfg.Typing.StartThrottle,
		IdleStop:      cfg.Typing.IdleStop,
		StaleAfter:    cfg.Typing.StaleAfter,
	}, wsHub.NotifyTyping)

	// Repositories
	userRepo := repository.NewUserRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	planRepo := repository.NewCoinPlanRepository(db)

	// Services
	walletService := service.NewWalletService(db, walletRepo, cfg.Coins.FreeGrant)
	conversationService := service.NewConversationService(conversationRepo, messageRepo, userRepo)
	messageService := service.NewMessageService(messageRepo, service.PageOptions{
		DefaultSize: cfg.Chat.DefaultPageSize,
		MaxSize:     cfg.Chat.MaxPageSize,
	})
	catalog := service.NewPlanCatalog(planRepo, cacheService)
	paymentService := service.NewPaymentService(db, paymentRepo, catalog, walletService, rzp, publisher, wsHub, service.PaymentConfig{
		KeySecret:     cfg.Razorpay.KeySecret,
		WebhookSecret: cfg.Razorpay.WebhookSecret,
		Currency:      cfg.Coins.Currency,
	})
	chatService := service.NewChatService(db, userRepo, walletService, conversationService, messageService, wsHub, publisher, service.ChatConfig{
		DuplicateWindow: cfg.Chat.DuplicateWindow,
		PartnerLimit:    cfg.Chat.PartnerLimit,
		MaxPartnerLimit: cfg.Chat.MaxPartnerLimit,
	})

	gateway := ws.NewGateway(wsHub, chatService, tracker)
	router := routes.NewRouter(routes.Deps{
		Config:     cfg,
		JWT:        jwtManager,
		Identity:   chatService,
		Redis:      redisClient,
		HealthPing: sqlDB.Ping,
	}, routes.Handlers{
		Chat:    handler.NewChatHandler(chatService),
		Coin:    handler.NewCoinHandler(walletService, paymentService),
		Payment: handler.NewPaymentHandler(paymentService),
		WS:      handler.NewWSHandler(gateway, jwtManager, chatService, cfg.CORS.AllowOrigins),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go reportDBStats(ctx, sqlDB.Stats)

	// 서버 시작
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		pkglogger.Info("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	pkglogger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		pkglogger.Error("Server shutdown: %v", err)
	}
	tracker.Close()
	wsHub.Stop()
	if redisClient != nil {
		_ = redisClient.Close()
	}
	_ = sqlDB.Close()
}

// reportDBStats DB 커넥션 게이지 갱신
func reportDBStats(ctx context.Context, stats func() sql.DBStats) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			middleware.SetDBConnectionsActive(float64(stats().InUse))
		case <-ctx.Done():
			return
		}
	}
}

// initDB MySQL 연결 초기화
func initDB(cfg *config.Config) (*gorm.DB, error) {
	mysqlCfg, err := mysqldriver.ParseDSN(cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("DSN 파싱 실패: %w", err)
	}
	if mysqlCfg.Params == nil {
		mysqlCfg.Params = map[string]string{}
	}
	mysqlCfg.Params["time_zone"] = "'+00:00'"

	logLevel := gormlogger.Warn
	if cfg.IsDevelopment() {
		logLevel = gormlogger.Info
	}
	db, err := gorm.Open(mysql.Open(mysqlCfg.FormatDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	return db, nil
}
