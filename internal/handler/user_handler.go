// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"
	"slideshow-server/internal/middleware"
	"slideshow-server/internal/service"
	"slideshow-server/pkg/response"
)

// UserHandler 用户请求处理器
type UserHandler struct {
	userService *service.UserService
}

// NewUserHandler 创建 UserHandler 实例
func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// GetProfile 获取当前用户资料
// @Summary 获取当前用户资料
// @Tags 用户
// @Security Bearer
// @Produce json
// @Success 200 {object} response.Response{data=service.UserProfile}
// @Router /api/user/profile [get]
func (h *UserHandler) GetProfile(c *gin.Context) {
	userID := middleware.GetUserID(c)

	profile, err := h.userService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		if err == service.ErrUserNotFound {
			response.UserNotFound(c)
		} else {
			response.InternalError(c, "获取用户资料失败")
		}
		return
	}

	response.Success(c, profile)
}

// UpdateProfile 更新当前用户资料
// @Summary 更新当前用户资料
// @Tags 用户
// @Security Bearer
// @Accept json
// @Produce json
// @Param body body service.UpdateProfileRequest true "资料字段"
// @Success 200 {object} response.Response
// @Router /api/user/profile [put]
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req service.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	if err := h.userService.UpdateProfile(c.Request.Context(), userID, &req); err != nil {
		switch err {
		case service.ErrUserNotFound:
			response.UserNotFound(c)
		case service.ErrEmailExists:
			response.ErrorWithCode(c, 400, response.CodeBadRequest, "邮箱已被注册")
		default:
			response.InternalError(c, "更新资料失败")
		}
		return
	}

	response.SuccessWithMessage(c, "更新成功", nil)
}

// ChangePassword 修改密码
// @Summary 修改当前用户密码
// @Tags 用户
// @Security Bearer
// @Accept json
// @Produce json
// @Param body body service.ChangePasswordRequest true "新旧密码"
// @Success 200 {object} response.Response
// @Router /api/user/password [put]
func (h *UserHandler) ChangePassword(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req service.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	if err := h.userService.ChangePassword(c.Request.Context(), userID, &req); err != nil {
		switch err {
		case service.ErrUserNotFound:
			response.UserNotFound(c)
		case service.ErrPasswordWrong:
			response.PasswordWrong(c)
		default:
			response.InternalError(c, "修改密码失败")
		}
		return
	}

	response.SuccessWithMessage(c, "密码已修改", nil)
}
