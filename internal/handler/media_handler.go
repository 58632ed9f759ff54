// Package handler 提供 HTTP 请求处理器
package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"slideshow-server/internal/middleware"
	"slideshow-server/internal/service"
	"slideshow-server/pkg/response"
)

// MediaHandler 媒体请求处理器
type MediaHandler struct {
	mediaService *service.MediaService
}

// NewMediaHandler 创建 MediaHandler 实例
func NewMediaHandler(mediaService *service.MediaService) *MediaHandler {
	return &MediaHandler{
		mediaService: mediaService,
	}
}

// Create 登记上传媒体
// @Summary 登记一条上传媒体
// @Tags 媒体
// @Security Bearer
// @Accept json
// @Produce json
// @Param body body service.CreateMediaRequest true "媒体信息"
// @Success 200 {object} response.Response{data=model.Media}
// @Router /api/media [post]
func (h *MediaHandler) Create(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req service.CreateMediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	media, err := h.mediaService.CreateMedia(c.Request.Context(), userID, &req)
	if err != nil {
		switch err {
		case service.ErrInvalidMediaType:
			response.BadRequest(c, "不支持的媒体类型")
		case service.ErrConversationNotFound:
			response.ConversationNotFound(c)
		case service.ErrNotParticipant:
			response.NotParticipant(c)
		default:
			response.InternalError(c, "登记媒体失败")
		}
		return
	}

	response.SuccessWithMessage(c, "登记成功", media)
}

// List 分页获取会话内的媒体
// @Summary 获取会话内的媒体列表
// @Tags 媒体
// @Security Bearer
// @Produce json
// @Param conversation_id query int true "会话ID"
// @Param page query int false "页码，默认 1"
// @Param page_size query int false "每页数量，默认 20"
// @Success 200 {object} response.Response
// @Router /api/media [get]
func (h *MediaHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)

	conversationID, err := strconv.ParseInt(c.Query("conversation_id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "无效的会话ID")
		return
	}

	page, pageSize := parsePagination(c)

	list, total, err := h.mediaService.ListMedia(c.Request.Context(), userID, conversationID, page, pageSize)
	if err != nil {
		if err == service.ErrNotParticipant {
			response.NotParticipant(c)
		} else {
			response.InternalError(c, "获取媒体列表失败")
		}
		return
	}

	response.Success(c, gin.H{
		"list":  list,
		"total": total,
		"page":  page,
	})
}

// Delete 删除媒体记录
// @Summary 删除媒体记录
// @Tags 媒体
// @Security Bearer
// @Produce json
// @Param id path int true "媒体ID"
// @Success 200 {object} response.Response
// @Router /api/media/{id} [delete]
func (h *MediaHandler) Delete(c *gin.Context) {
	userID := middleware.GetUserID(c)

	mediaID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "无效的媒体ID")
		return
	}

	if err := h.mediaService.DeleteMedia(c.Request.Context(), userID, mediaID); err != nil {
		switch err {
		case service.ErrMediaNotFound:
			response.MediaNotFound(c)
		case service.ErrNotParticipant:
			response.Forbidden(c, "只有上传者可以删除")
		default:
			response.InternalError(c, "删除媒体失败")
		}
		return
	}

	response.SuccessWithMessage(c, "删除成功", nil)
}

// parsePagination 解析分页参数
func parsePagination(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if err != nil || pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
