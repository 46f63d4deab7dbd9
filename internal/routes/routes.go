package routes

import (
	"net/http"
	"strings"
	"time"

	_ "github.com/damoang/coinchat/docs"
	"github.com/damoang/coinchat/internal/config"
	"github.com/damoang/coinchat/internal/handler"
	"github.com/damoang/coinchat/internal/middleware"
	"github.com/damoang/coinchat/pkg/jwt"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// maxRequestBody JSON API 본문 상한
const maxRequestBody = 64 * 1024

// Handlers HTTP surface of the service
type Handlers struct {
	Chat    *handler.ChatHandler
	Coin    *handler.CoinHandler
	Payment *handler.PaymentHandler
	WS      *handler.WSHandler
}

// Deps shared middleware dependencies. Redis may be nil.
type Deps struct {
	Config     *config.Config
	JWT        *jwt.Manager
	Identity   middleware.IdentitySyncer
	Redis      *redis.Client
	HealthPing func() error
}

// NewRouter builds the gin engine with global middleware and all routes.
func NewRouter(deps Deps, h Handlers) *gin.Engine {
	if !deps.Config.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(deps.Config.CORS.AllowOrigins)))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.Metrics())
	router.Use(middleware.RequestLogger())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		if deps.HealthPing != nil {
			if err := deps.HealthPing(); err != nil {
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}
		c.JSON(code, gin.H{
			"status":  status,
			"service": "coinchat",
			"time":    time.Now().Unix(),
		})
	})

	if h.WS != nil {
		router.GET("/ws", h.WS.Connect)
	}

	Setup(router, h, deps)
	return router
}

// Setup configures all API routes
func Setup(router *gin.Engine, h Handlers, deps Deps) {
	api := router.Group("/api", middleware.MaxBodySize(maxRequestBody))

	// Razorpay → 서버 (서명 검증, JWT 없음)
	api.POST("/payments/razorpay/webhook",
		middleware.RateLimitByIP(deps.Redis, deps.Config.RateLimit.APIPerMinute),
		h.Payment.Webhook)

	authed := api.Group("",
		middleware.JWTAuth(deps.JWT),
		middleware.SyncIdentity(deps.Identity),
		middleware.RateLimitPerUser(deps.Redis, "api", deps.Config.RateLimit.APIPerMinute),
	)

	chat := authed.Group("/chat")
	chat.GET("/users", h.Chat.ListUsers)
	chat.GET("/inbox", h.Chat.GetInbox)
	chat.GET("/messages/:userId", h.Chat.GetMessages)
	chat.GET("/messages/conversation/:conversationId", h.Chat.GetConversationMessages)
	chat.POST("/messages",
		middleware.RateLimitPerUser(deps.Redis, "send", deps.Config.RateLimit.SendPerMinute),
		h.Chat.SendMessage)
	chat.POST("/conversations/:conversationId/read", h.Chat.MarkRead)

	coins := authed.Group("/coins")
	coins.GET("/wallet", h.Coin.GetWallet)
	coins.GET("/ledger", h.Coin.GetLedger)
	coins.GET("/plans", h.Coin.ListPlans)

	payments := authed.Group("/payments/razorpay")
	payments.POST("/order", h.Payment.CreateOrder)
	payments.POST("/verify", h.Payment.Verify)
}

func corsConfig(allowOrigins string) cors.Config {
	cfg := cors.Config{
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Remaining"},
		MaxAge:           12 * time.Hour,
	}
	for _, o := range strings.Split(allowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowOrigins = append(cfg.AllowOrigins, o)
		}
	}
	if len(cfg.AllowOrigins) == 0 || (len(cfg.AllowOrigins) == 1 && cfg.AllowOrigins[0] == "*") {
		cfg.AllowOrigins = nil
		cfg.AllowOriginFunc = func(string) bool { return true }
	}
	return cfg
}
