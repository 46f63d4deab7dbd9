package handler

import (
	"github.com/damoang/coinchat/internal/common"
	"github.com/damoang/coinchat/internal/middleware"
	"github.com/damoang/coinchat/internal/service"
	"github.com/damoang/coinchat/pkg/ginutil"
	"github.com/gin-gonic/gin"
)

// CoinHandler wallet and catalog reads
type CoinHandler struct {
	wallets  *service.WalletService
	payments *service.PaymentService
}

// NewCoinHandler creates a new CoinHandler
func NewCoinHandler(wallets *service.WalletService, payments *service.PaymentService) *CoinHandler {
	return &CoinHandler{wallets: wallets, payments: payments}
}

// GetWallet handles GET /api/coins/wallet
// @Summary 내 코인 지갑
// @Description 지갑이 없으면 만들고 1회 무료 코인을 지급한 뒤 반환합니다
// @Tags coins
// @Produce json
// @Success 200 {object} common.Response{data=domain.Wallet}
// @Failure 401 {object} common.Response
// @Security BearerAuth
// @Router /coins/wallet [get]
func (h *CoinHandler) GetWallet(c *gin.Context) {
	wallet, err := h.wallets.EnsureWalletWithFreeGrant(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.Success(c, wallet)
}

// GetLedger handles GET /api/coins/ledger
// @Summary 코인 원장 내역
// @Tags coins
// @Produce json
// @Param page query int false "페이지" default(1)
// @Param limit query int false "페이지 크기" default(20)
// @Success 200 {object} common.Response{data=[]domain.LedgerEntry}
// @Security BearerAuth
// @Router /coins/ledger [get]
func (h *CoinHandler) GetLedger(c *gin.Context) {
	page, err := h.wallets.ListLedger(c.Request.Context(), middleware.GetUserID(c),
		ginutil.QueryInt(c, "page", 1), ginutil.QueryIntAny(c, 0, "limit", "pageSize"))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.SuccessWithMeta(c, page.Entries, &common.Meta{
		Page:    page.Page,
		Limit:   page.Limit,
		Total:   page.Total,
		HasMore: int64(page.Page*page.Limit) < page.Total,
	})
}

// ListPlans handles GET /api/coins/plans
// @Summary 코인 플랜 목록
// @Tags coins
// @Produce json
// @Success 200 {object} common.Response{data=[]domain.CoinPlan}
// @Security BearerAuth
// @Router /coins/plans [get]
func (h *CoinHandler) ListPlans(c *gin.Context) {
	plans, err := h.payments.ListPlans(c.Request.Context())
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.Success(c, plans)
}
