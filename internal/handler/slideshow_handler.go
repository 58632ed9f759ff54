// Package handler 提供 HTTP 请求处理器
package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"slideshow-server/internal/middleware"
	"slideshow-server/internal/service"
	"slideshow-server/pkg/response"
)

// SlideshowHandler 幻灯片请求处理器
// 所有放映命令都提供 HTTP 入口，与 WebSocket 命令语义一致，
// 状态变更统一通过 WebSocket 广播给参与者
type SlideshowHandler struct {
	slideshowService *service.SlideshowService
}

// NewSlideshowHandler 创建 SlideshowHandler 实例
func NewSlideshowHandler(slideshowService *service.SlideshowService) *SlideshowHandler {
	return &SlideshowHandler{
		slideshowService: slideshowService,
	}
}

// Start 开始放映
// @Summary 开始放映
// @Tags 幻灯片
// @Security Bearer
// @Accept json
// @Produce json
// @Param body body service.StartSlideshowRequest true "放映参数"
// @Success 200 {object} response.Response{data=service.SlideshowState}
// @Router /api/slideshows [post]
func (h *SlideshowHandler) Start(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req service.StartSlideshowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	if req.SourceType != "personal" && req.SourceType != "subreddit" {
		response.BadRequest(c, "无效的来源类型")
		return
	}

	state, err := h.slideshowService.Start(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.SuccessWithMessage(c, "放映已开始", state)
}

// Navigate 翻页
// @Summary 翻页
// @Tags 幻灯片
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path int true "幻灯片ID"
// @Param body body service.NavigateRequest true "翻页参数"
// @Success 200 {object} response.Response{data=service.SlideshowState}
// @Router /api/slideshows/{id}/navigate [post]
func (h *SlideshowHandler) Navigate(c *gin.Context) {
	userID := middleware.GetUserID(c)

	slideshowID, ok := h.parseID(c)
	if !ok {
		return
	}

	var req service.NavigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	state, err := h.slideshowService.Navigate(c.Request.Context(), userID, slideshowID, &req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, state)
}

// TransferRequest 移交控制权请求
type TransferRequest struct {
	NewControllerID int64 `json:"new_controller_id" binding:"required"` // 新控制者用户ID
}

// Transfer 移交控制权
// @Summary 移交控制权
// @Tags 幻灯片
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path int true "幻灯片ID"
// @Param body body TransferRequest true "新控制者"
// @Success 200 {object} response.Response{data=service.SlideshowState}
// @Router /api/slideshows/{id}/transfer [post]
func (h *SlideshowHandler) Transfer(c *gin.Context) {
	userID := middleware.GetUserID(c)

	slideshowID, ok := h.parseID(c)
	if !ok {
		return
	}

	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	state, err := h.slideshowService.TransferControl(c.Request.Context(), userID, slideshowID, req.NewControllerID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.SuccessWithMessage(c, "控制权已移交", state)
}

// UpdateAutoAdvance 更新自动播放设置
// @Summary 更新自动播放设置
// @Tags 幻灯片
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path int true "幻灯片ID"
// @Param body body service.UpdateAutoAdvanceRequest true "自动播放设置"
// @Success 200 {object} response.Response{data=service.SlideshowState}
// @Router /api/slideshows/{id}/auto-advance [put]
func (h *SlideshowHandler) UpdateAutoAdvance(c *gin.Context) {
	userID := middleware.GetUserID(c)

	slideshowID, ok := h.parseID(c)
	if !ok {
		return
	}

	var req service.UpdateAutoAdvanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	state, err := h.slideshowService.UpdateAutoAdvance(c.Request.Context(), userID, slideshowID, &req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, state)
}

// ChangeSortRequest 切换排序方式请求
type ChangeSortRequest struct {
	SortOption string `json:"sort_option" binding:"required"` // 新排序方式
}

// ChangeSort 切换 subreddit 排序方式
// @Summary 切换排序方式
// @Tags 幻灯片
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path int true "幻灯片ID"
// @Param body body ChangeSortRequest true "排序方式"
// @Success 200 {object} response.Response{data=service.SlideshowState}
// @Router /api/slideshows/{id}/sort [put]
func (h *SlideshowHandler) ChangeSort(c *gin.Context) {
	userID := middleware.GetUserID(c)

	slideshowID, ok := h.parseID(c)
	if !ok {
		return
	}

	var req ChangeSortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	state, err := h.slideshowService.ChangeSort(c.Request.Context(), userID, slideshowID, req.SortOption)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, state)
}

// Stop 停止放映
// @Summary 停止放映
// @Tags 幻灯片
// @Security Bearer
// @Produce json
// @Param id path int true "幻灯片ID"
// @Success 200 {object} response.Response
// @Router /api/slideshows/{id}/stop [post]
func (h *SlideshowHandler) Stop(c *gin.Context) {
	userID := middleware.GetUserID(c)

	slideshowID, ok := h.parseID(c)
	if !ok {
		return
	}

	if err := h.slideshowService.Stop(c.Request.Context(), userID, slideshowID); err != nil {
		h.handleError(c, err)
		return
	}

	response.SuccessWithMessage(c, "放映已停止", nil)
}

// GetState 获取放映状态快照
// @Summary 获取放映状态快照
// @Description 客户端重连后用于对账的完整状态
// @Tags 幻灯片
// @Security Bearer
// @Produce json
// @Param id path int true "幻灯片ID"
// @Success 200 {object} response.Response{data=service.SlideshowState}
// @Router /api/slideshows/{id} [get]
func (h *SlideshowHandler) GetState(c *gin.Context) {
	userID := middleware.GetUserID(c)

	slideshowID, ok := h.parseID(c)
	if !ok {
		return
	}

	state, err := h.slideshowService.GetState(c.Request.Context(), userID, slideshowID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, state)
}

// GetActive 获取会话当前放映中的幻灯片
// @Summary 获取会话当前放映中的幻灯片
// @Tags 幻灯片
// @Security Bearer
// @Produce json
// @Param conversation_id query int true "会话ID"
// @Success 200 {object} response.Response{data=service.SlideshowState}
// @Router /api/slideshows/active [get]
func (h *SlideshowHandler) GetActive(c *gin.Context) {
	userID := middleware.GetUserID(c)

	conversationID, err := strconv.ParseInt(c.Query("conversation_id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "无效的会话ID")
		return
	}

	state, err := h.slideshowService.GetActiveForConversation(c.Request.Context(), userID, conversationID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if state == nil {
		response.SlideshowNotFound(c)
		return
	}

	response.Success(c, state)
}

// ListHistory 获取会话的历史放映记录
// @Summary 获取历史放映记录
// @Tags 幻灯片
// @Security Bearer
// @Produce json
// @Param conversation_id query int true "会话ID"
// @Param page query int false "页码，默认 1"
// @Param page_size query int false "每页数量，默认 20"
// @Success 200 {object} response.Response
// @Router /api/slideshows [get]
func (h *SlideshowHandler) ListHistory(c *gin.Context) {
	userID := middleware.GetUserID(c)

	conversationID, err := strconv.ParseInt(c.Query("conversation_id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "无效的会话ID")
		return
	}

	page, pageSize := parsePagination(c)

	list, total, err := h.slideshowService.ListHistory(c.Request.Context(), userID, conversationID, page, pageSize)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":  list,
		"total": total,
		"page":  page,
	})
}

// parseID 解析路径中的幻灯片ID
func (h *SlideshowHandler) parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "无效的幻灯片ID")
		return 0, false
	}
	return id, true
}

// handleError 把业务错误映射为 HTTP 响应
// ErrSourceUnavailable 可能被包装，用 errors.Is 匹配
func (h *SlideshowHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrConversationNotFound):
		response.ConversationNotFound(c)
	case errors.Is(err, service.ErrNotParticipant):
		response.NotParticipant(c)
	case errors.Is(err, service.ErrMediaNotFound):
		response.MediaNotFound(c)
	case errors.Is(err, service.ErrSlideshowNotFound):
		response.SlideshowNotFound(c)
	case errors.Is(err, service.ErrSlideshowActive):
		response.SlideshowActive(c)
	case errors.Is(err, service.ErrSlideshowEnded):
		response.SlideshowEnded(c)
	case errors.Is(err, service.ErrNotController):
		response.NotController(c)
	case errors.Is(err, service.ErrInvalidParticipant):
		response.InvalidParticipant(c)
	case errors.Is(err, service.ErrSourceUnavailable):
		response.SourceUnavailable(c)
	case errors.Is(err, service.ErrEmptySource):
		response.BadRequest(c, "没有可放映的媒体")
	case errors.Is(err, service.ErrInvalidDirection):
		response.BadRequest(c, "无效的翻页方向")
	case errors.Is(err, service.ErrInvalidSourceType):
		response.BadRequest(c, "无效的来源类型")
	case errors.Is(err, service.ErrInvalidSortOption):
		response.BadRequest(c, "无效的排序方式")
	case errors.Is(err, service.ErrInvalidInterval):
		response.BadRequest(c, "无效的自动播放间隔")
	case errors.Is(err, service.ErrNotSubredditSource):
		response.BadRequest(c, "只有 subreddit 来源支持切换排序")
	default:
		response.InternalError(c, "操作失败")
	}
}
