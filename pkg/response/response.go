// Package response 提供统一的 HTTP 响应格式
// 所有 API 都使用相同的响应结构，便于前端处理
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
// code: 业务状态码（0 表示成功）
// message: 提示信息
// data: 响应数据
type Response struct {
	Code    int         `json:"code"`           // 业务状态码
	Message string      `json:"message"`        // 提示信息
	Data    interface{} `json:"data,omitempty"` // 响应数据，可选
}

// 业务状态码定义
const (
	CodeSuccess              = 0    // 成功
	CodeBadRequest           = 1000 // 请求参数错误
	CodeUnauthorized         = 1001 // 未授权
	CodeForbidden            = 1002 // 禁止访问
	CodeNotFound             = 1003 // 资源不存在
	CodeInternalError        = 1004 // 服务器内部错误
	CodeUserExists           = 1101 // 用户已存在
	CodeUserNotFound         = 1102 // 用户不存在
	CodePasswordWrong        = 1103 // 密码错误
	CodeConversationNotFound = 1201 // 会话不存在
	CodeNotParticipant       = 1202 // 不是会话参与者
	CodeMediaNotFound        = 1301 // 媒体不存在
	CodeSlideshowNotFound    = 1401 // 幻灯片不存在
	CodeSlideshowActive      = 1402 // 会话已有放映中的幻灯片
	CodeSlideshowEnded       = 1403 // 幻灯片已停止
	CodeNotController        = 1404 // 不是当前控制者
	CodeInvalidParticipant   = 1405 // 移交目标不是会话参与者
	CodeSourceUnavailable    = 1406 // 媒体来源解析失败
)

// Success 返回成功响应
// 参数:
//   - c: Gin 上下文
//   - data: 响应数据，可以是任意类型
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 返回带自定义提示信息的成功响应
// 参数:
//   - c: Gin 上下文
//   - message: 提示信息
//   - data: 响应数据
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// Error 返回错误响应
// 参数:
//   - c: Gin 上下文
//   - httpCode: HTTP 状态码
//   - message: 错误信息
func Error(c *gin.Context, httpCode int, message string) {
	c.JSON(httpCode, Response{
		Code:    httpCode,
		Message: message,
	})
}

// ErrorWithCode 返回错误响应（带业务状态码）
// 参数:
//   - c: Gin 上下文
//   - httpCode: HTTP 状态码
//   - bizCode: 业务状态码
//   - message: 错误信息
func ErrorWithCode(c *gin.Context, httpCode, bizCode int, message string) {
	c.JSON(httpCode, Response{
		Code:    bizCode,
		Message: message,
	})
}

// BadRequest 返回 400 错误（请求参数错误）
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Code:    CodeBadRequest,
		Message: message,
	})
}

// Unauthorized 返回 401 错误（未授权）
func Unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, Response{
		Code:    CodeUnauthorized,
		Message: message,
	})
}

// Forbidden 返回 403 错误（禁止访问）
func Forbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, Response{
		Code:    CodeForbidden,
		Message: message,
	})
}

// NotFound 返回 404 错误（资源不存在）
func NotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, Response{
		Code:    CodeNotFound,
		Message: message,
	})
}

// InternalError 返回 500 错误（服务器内部错误）
func InternalError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, Response{
		Code:    CodeInternalError,
		Message: message,
	})
}

// UserExists 返回用户已存在错误
func UserExists(c *gin.Context) {
	c.JSON(http.StatusBadRequest, Response{
		Code:    CodeUserExists,
		Message: "用户名已存在",
	})
}

// UserNotFound 返回用户不存在错误
func UserNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, Response{
		Code:    CodeUserNotFound,
		Message: "用户不存在",
	})
}

// PasswordWrong 返回密码错误
func PasswordWrong(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, Response{
		Code:    CodePasswordWrong,
		Message: "密码错误",
	})
}

// ConversationNotFound 返回会话不存在错误
func ConversationNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, Response{
		Code:    CodeConversationNotFound,
		Message: "会话不存在",
	})
}

// NotParticipant 返回不是会话参与者错误
func NotParticipant(c *gin.Context) {
	c.JSON(http.StatusForbidden, Response{
		Code:    CodeNotParticipant,
		Message: "您不是该会话的参与者",
	})
}

// MediaNotFound 返回媒体不存在错误
func MediaNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, Response{
		Code:    CodeMediaNotFound,
		Message: "媒体不存在或不属于该会话",
	})
}

// SlideshowNotFound 返回幻灯片不存在错误
func SlideshowNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, Response{
		Code:    CodeSlideshowNotFound,
		Message: "幻灯片不存在",
	})
}

// SlideshowActive 返回已有放映中的幻灯片错误
func SlideshowActive(c *gin.Context) {
	c.JSON(http.StatusConflict, Response{
		Code:    CodeSlideshowActive,
		Message: "该会话已有放映中的幻灯片",
	})
}

// SlideshowEnded 返回幻灯片已停止错误
func SlideshowEnded(c *gin.Context) {
	c.JSON(http.StatusConflict, Response{
		Code:    CodeSlideshowEnded,
		Message: "幻灯片已停止",
	})
}

// NotController 返回不是控制者错误
func NotController(c *gin.Context) {
	c.JSON(http.StatusForbidden, Response{
		Code:    CodeNotController,
		Message: "只有当前控制者可以执行此操作",
	})
}

// InvalidParticipant 返回移交目标非参与者错误
func InvalidParticipant(c *gin.Context) {
	c.JSON(http.StatusBadRequest, Response{
		Code:    CodeInvalidParticipant,
		Message: "移交目标不是该会话的参与者",
	})
}

// SourceUnavailable 返回媒体来源解析失败错误
func SourceUnavailable(c *gin.Context) {
	c.JSON(http.StatusBadGateway, Response{
		Code:    CodeSourceUnavailable,
		Message: "媒体来源解析失败，请稍后重试",
	})
}

// Created 返回 201 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    CodeSuccess,
		Message: "创建成功",
		Data:    data,
	})
}

// NoContent 返回 204 无内容响应（用于删除操作）
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
