// Package handler 提供 HTTP 请求处理器
package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"slideshow-server/internal/middleware"
	"slideshow-server/internal/service"
	"slideshow-server/pkg/response"
)

// ConversationHandler 会话请求处理器
type ConversationHandler struct {
	conversationService *service.ConversationService
}

// NewConversationHandler 创建 ConversationHandler 实例
func NewConversationHandler(conversationService *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{
		conversationService: conversationService,
	}
}

// Create 创建会话
// @Summary 创建会话
// @Tags 会话
// @Security Bearer
// @Accept json
// @Produce json
// @Param body body service.CreateConversationRequest true "会话信息"
// @Success 200 {object} response.Response{data=model.Conversation}
// @Router /api/conversations [post]
func (h *ConversationHandler) Create(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req service.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	conversation, err := h.conversationService.CreateConversation(c.Request.Context(), userID, &req)
	if err != nil {
		if err == service.ErrUserNotFound {
			response.UserNotFound(c)
		} else {
			response.InternalError(c, "创建会话失败")
		}
		return
	}

	response.SuccessWithMessage(c, "创建成功", conversation)
}

// List 获取当前用户的会话列表
// @Summary 获取会话列表
// @Tags 会话
// @Security Bearer
// @Produce json
// @Success 200 {object} response.Response{data=[]model.Conversation}
// @Router /api/conversations [get]
func (h *ConversationHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)

	conversations, err := h.conversationService.ListConversations(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c, "获取会话列表失败")
		return
	}

	response.Success(c, conversations)
}

// Get 获取会话详情
// @Summary 获取会话详情（含参与者）
// @Tags 会话
// @Security Bearer
// @Produce json
// @Param id path int true "会话ID"
// @Success 200 {object} response.Response{data=model.Conversation}
// @Router /api/conversations/{id} [get]
func (h *ConversationHandler) Get(c *gin.Context) {
	userID := middleware.GetUserID(c)

	conversationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "无效的会话ID")
		return
	}

	conversation, err := h.conversationService.GetConversation(c.Request.Context(), userID, conversationID)
	if err != nil {
		switch err {
		case service.ErrConversationNotFound:
			response.ConversationNotFound(c)
		case service.ErrNotParticipant:
			response.NotParticipant(c)
		default:
			response.InternalError(c, "获取会话失败")
		}
		return
	}

	response.Success(c, conversation)
}

// AddParticipantRequest 添加参与者请求
type AddParticipantRequest struct {
	UserID int64 `json:"user_id" binding:"required"` // 新参与者用户ID
}

// AddParticipant 添加参与者
// @Summary 向会话添加参与者
// @Tags 会话
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path int true "会话ID"
// @Param body body AddParticipantRequest true "新参与者"
// @Success 200 {object} response.Response
// @Router /api/conversations/{id}/participants [post]
func (h *ConversationHandler) AddParticipant(c *gin.Context) {
	userID := middleware.GetUserID(c)

	conversationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "无效的会话ID")
		return
	}

	var req AddParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	if err := h.conversationService.AddParticipant(c.Request.Context(), userID, conversationID, req.UserID); err != nil {
		switch err {
		case service.ErrConversationNotFound:
			response.ConversationNotFound(c)
		case service.ErrNotParticipant:
			response.NotParticipant(c)
		case service.ErrUserNotFound:
			response.UserNotFound(c)
		default:
			response.InternalError(c, "添加参与者失败")
		}
		return
	}

	response.SuccessWithMessage(c, "添加成功", nil)
}
