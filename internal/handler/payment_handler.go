package handler

import (
	"io"
	"net/http"

	"github.com/damoang/coinchat/internal/common"
	"github.com/damoang/coinchat/internal/domain"
	"github.com/damoang/coinchat/internal/middleware"
	"github.com/damoang/coinchat/internal/service"
	"github.com/gin-gonic/gin"
)

// maxWebhookBody Razorpay 웹훅 본문 상한
const maxWebhookBody = 1 << 20

// PaymentHandler Razorpay checkout endpoints
type PaymentHandler struct {
	service *service.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(service *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// CreateOrder handles POST /api/payments/razorpay/order
// @Summary Razorpay 주문 생성
// @Tags payments
// @Accept json
// @Produce json
// @Param request body domain.CreateOrderRequest true "플랜"
// @Success 201 {object} common.Response{data=domain.OrderResponse}
// @Failure 400 {object} common.Response
// @Failure 502 {object} common.Response
// @Security BearerAuth
// @Router /payments/razorpay/order [post]
func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	var req domain.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "planId is required", err)
		return
	}

	order, err := h.service.CreateOrder(c.Request.Context(), middleware.GetUserID(c), req.PlanID)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.Created(c, order)
}

// Verify handles POST /api/payments/razorpay/verify
// @Summary 결제 검증 및 코인 적립
// @Description 서명을 검증하고 주문당 한 번만 코인을 적립합니다. 재호출은 alreadyCredited=true
// @Tags payments
// @Accept json
// @Produce json
// @Param request body domain.VerifyPaymentRequest true "Razorpay 결제 결과"
// @Success 200 {object} common.Response{data=domain.VerifyResult}
// @Failure 400 {object} common.Response
// @Failure 404 {object} common.Response
// @Security BearerAuth
// @Router /payments/razorpay/verify [post]
func (h *PaymentHandler) Verify(c *gin.Context) {
	var req domain.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Missing payment verification fields", err)
		return
	}

	result, err := h.service.VerifyAndCredit(c.Request.Context(), service.VerifyInput{
		UserID:    middleware.GetUserID(c),
		PlanID:    req.PlanID,
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.Success(c, result)
}

// Webhook handles POST /api/payments/razorpay/webhook (no JWT; signed body)
// @Summary Razorpay 웹훅
// @Tags payments
// @Accept json
// @Produce json
// @Param X-Razorpay-Signature header string true "HMAC-SHA256 서명"
// @Success 200 {object} common.Response
// @Failure 400 {object} common.Response
// @Router /payments/razorpay/webhook [post]
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Unreadable body", err)
		return
	}
	if err := h.service.HandleWebhook(c.Request.Context(), body, c.GetHeader("X-Razorpay-Signature")); err != nil {
		common.RespondError(c, err)
		return
	}
	common.Success(c, gin.H{"received": true})
}
