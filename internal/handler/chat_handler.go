package handler

import (
	"net/http"

	"github.com/damoang/coinchat/internal/common"
	"github.com/damoang/coinchat/internal/domain"
	"github.com/damoang/coinchat/internal/middleware"
	"github.com/damoang/coinchat/internal/service"
	"github.com/damoang/coinchat/pkg/ginutil"
	"github.com/gin-gonic/gin"
)

// ChatHandler handles chat requests
type ChatHandler struct {
	service *service.ChatService
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(service *service.ChatService) *ChatHandler {
	return &ChatHandler{service: service}
}

// ListUsers handles GET /api/chat/users
// @Summary 채팅 상대 목록
// @Description 본인을 제외한 사용자를 이름/이메일로 검색합니다 (최대 100명)
// @Tags chat
// @Produce json
// @Param search query string false "검색어"
// @Param limit query int false "최대 개수" default(50)
// @Success 200 {object} common.Response{data=[]domain.UserSummary}
// @Failure 401 {object} common.Response
// @Security BearerAuth
// @Router /chat/users [get]
func (h *ChatHandler) ListUsers(c *gin.Context) {
	users, err := h.service.ListUsers(c.Request.Context(), middleware.GetUserID(c), c.Query("search"), ginutil.QueryInt(c, "limit", 0))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.Success(c, users)
}

// GetInbox handles GET /api/chat/inbox
// @Summary 받은 대화함
// @Description 최근 메시지 순으로 대화 목록과 읽지 않은 수를 반환합니다
// @Tags chat
// @Produce json
// @Success 200 {object} common.Response{data=[]domain.InboxItem}
// @Failure 401 {object} common.Response
// @Security BearerAuth
// @Router /chat/inbox [get]
func (h *ChatHandler) GetInbox(c *gin.Context) {
	items, err := h.service.GetInbox(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.Success(c, items)
}

// GetMessages handles GET /api/chat/messages/:userId
// :userId 가 사용자가 아니면 대화 ID 로 다시 조회한다.
// @Summary 상대방과의 메시지 조회
// @Description 상대 사용자 ID(또는 대화 ID)로 메시지를 페이지 단위로 조회하고 읽음 처리합니다
// @Tags chat
// @Produce json
// @Param userId path string true "상대 사용자 ID 또는 대화 ID"
// @Param page query int false "페이지" default(1)
// @Param limit query int false "페이지 크기 (pageSize 별칭)" default(20)
// @Success 200 {object} common.Response{data=domain.MessagePage}
// @Failure 403 {object} common.Response
// @Failure 404 {object} common.Response
// @Security BearerAuth
// @Router /chat/messages/{userId} [get]
func (h *ChatHandler) GetMessages(c *gin.Context) {
	page, limit := pageParams(c)
	result, err := h.service.FetchMessages(c.Request.Context(), middleware.GetUserID(c), c.Param("userId"), page, limit)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	respondPage(c, result)
}

// GetConversationMessages handles GET /api/chat/messages/conversation/:conversationId
// @Summary 대화 메시지 조회
// @Tags chat
// @Produce json
// @Param conversationId path int true "대화 ID"
// @Param page query int false "페이지" default(1)
// @Param limit query int false "페이지 크기" default(20)
// @Success 200 {object} common.Response{data=domain.MessagePage}
// @Failure 403 {object} common.Response
// @Failure 404 {object} common.Response
// @Security BearerAuth
// @Router /chat/messages/conversation/{conversationId} [get]
func (h *ChatHandler) GetConversationMessages(c *gin.Context) {
	conversationID, err := service.ParseConversationID(c.Param("conversationId"))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	page, limit := pageParams(c)
	result, err := h.service.GetMessagesByConversation(c.Request.Context(), middleware.GetUserID(c), conversationID, page, limit)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	respondPage(c, result)
}

// SendMessage handles POST /api/chat/messages
// @Summary 메시지 전송
// @Description 코인 1개를 차감하고 메시지를 전송합니다. 3초 내 같은 내용 재전송은 200 으로 기존 메시지를 반환합니다
// @Tags chat
// @Accept json
// @Produce json
// @Param request body domain.SendMessageRequest true "수신자와 본문"
// @Success 201 {object} common.Response{data=domain.SendResult}
// @Success 200 {object} common.Response{data=domain.SendResult}
// @Failure 400 {object} common.Response
// @Failure 402 {object} common.Response
// @Failure 404 {object} common.Response
// @Security BearerAuth
// @Router /chat/messages [post]
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req domain.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.service.SendMessage(c.Request.Context(), service.SendInput{
		SenderID:   middleware.GetUserID(c),
		ReceiverID: req.ReceiverID,
		Body:       req.Text(),
	})
	if err != nil {
		common.RespondError(c, err)
		return
	}
	if result.Duplicate {
		common.Success(c, result)
		return
	}
	common.Created(c, result)
}

// MarkRead handles POST /api/chat/conversations/:conversationId/read
// @Summary 대화 읽음 처리
// @Tags chat
// @Produce json
// @Param conversationId path int true "대화 ID"
// @Success 200 {object} common.Response
// @Failure 403 {object} common.Response
// @Security BearerAuth
// @Router /chat/conversations/{conversationId}/read [post]
func (h *ChatHandler) MarkRead(c *gin.Context) {
	conversationID, err := service.ParseConversationID(c.Param("conversationId"))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	changed, err := h.service.MarkConversationRead(c.Request.Context(), middleware.GetUserID(c), conversationID)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.Success(c, gin.H{"conversationId": conversationID, "marked": changed})
}

// pageParams page & limit (pageSize 별칭 허용)
func pageParams(c *gin.Context) (int, int) {
	return ginutil.QueryInt(c, "page", 1), ginutil.QueryIntAny(c, 0, "limit", "pageSize")
}

func respondPage(c *gin.Context, p *domain.MessagePage) {
	common.SuccessWithMeta(c, p, &common.Meta{Page: p.Page, Limit: p.Limit, HasMore: p.HasMore})
}
