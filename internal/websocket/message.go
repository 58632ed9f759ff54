// Package websocket 提供 WebSocket 通信功能
// 实现幻灯片放映的实时同步：参与者在一个连接上收发放映命令和状态事件
package websocket

import (
	"time"

	"slideshow-server/pkg/util"
)

// MessageType 消息类型常量
const (
	// 客户端 → 服务端：放映命令
	TypeSlideshowStart       = "slideshow:start"        // 开始放映
	TypeSlideshowNavigate    = "slideshow:navigate"     // 翻页
	TypeSlideshowTransfer    = "slideshow:transfer"     // 移交控制权
	TypeSlideshowAutoAdvance = "slideshow:auto_advance" // 自动播放设置
	TypeSlideshowSort        = "slideshow:sort"         // 切换排序方式
	TypeSlideshowStop        = "slideshow:stop"         // 停止放映
	TypeSlideshowSync        = "slideshow:sync"         // 请求当前状态快照（重连对账）

	// 服务端 → 客户端：放映事件
	TypeSlideshowUpdated = "slideshow:updated" // 状态变更，携带完整快照
	TypeSlideshowStopped = "slideshow:stopped" // 放映停止

	// 通用
	TypeHeartbeat = "heartbeat" // 心跳
	TypePong      = "pong"      // 心跳响应
	TypeError     = "error"     // 错误消息
)

// Message WebSocket 消息结构
// 所有消息都使用这个统一的结构
type Message struct {
	Type      string      `json:"type"`                 // 消息类型
	Payload   interface{} `json:"payload"`              // 消息内容
	Timestamp int64       `json:"timestamp"`            // 时间戳（毫秒）
	MessageID string      `json:"message_id,omitempty"` // 消息ID，用于追踪
}

// NewMessage 创建新消息
// 服务端主动发出的消息分配新的消息ID，便于客户端去重和问题排查
func NewMessage(msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
		MessageID: util.GenerateUUID(),
	}
}

// NewMessageWithID 创建带消息ID的新消息
func NewMessageWithID(msgType string, payload interface{}, messageID string) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
		MessageID: messageID,
	}
}

// ==================== Payload 类型定义 ====================

// StartPayload 开始放映命令 Payload
// 字段与 HTTP 开始放映接口一致
type StartPayload struct {
	ConversationID int64   `json:"conversation_id"`         // 会话ID
	SourceType     string  `json:"source_type"`             // personal / subreddit
	MediaIDs       []int64 `json:"media_ids,omitempty"`     // personal: 媒体ID列表
	Subreddit      string  `json:"subreddit,omitempty"`     // subreddit: 名称
	SortOption     string  `json:"sort_option,omitempty"`   // subreddit: 排序方式
	AutoAdvance    bool    `json:"auto_advance,omitempty"`  // 是否开启自动播放
	ImageSeconds   int     `json:"image_seconds,omitempty"` // 图片间隔（秒）
	VideoSeconds   int     `json:"video_seconds,omitempty"` // 视频翻页延迟（秒）
}

// NavigatePayload 翻页命令 Payload
type NavigatePayload struct {
	SlideshowID int64  `json:"slideshow_id"`    // 幻灯片会话ID
	Direction   string `json:"direction"`       // next / prev / goto
	Index       int    `json:"index,omitempty"` // goto 的目标位置
}

// TransferPayload 移交控制权 Payload
type TransferPayload struct {
	SlideshowID     int64 `json:"slideshow_id"`      // 幻灯片会话ID
	NewControllerID int64 `json:"new_controller_id"` // 新控制者用户ID
}

// AutoAdvancePayload 自动播放设置 Payload
type AutoAdvancePayload struct {
	SlideshowID     int64  `json:"slideshow_id"`               // 幻灯片会话ID
	Enabled         bool   `json:"enabled"`                    // 是否开启
	AppliesTo       string `json:"applies_to,omitempty"`       // image / video
	IntervalSeconds int    `json:"interval_seconds,omitempty"` // 新间隔（秒）
}

// SortPayload 切换排序方式 Payload
type SortPayload struct {
	SlideshowID int64  `json:"slideshow_id"` // 幻灯片会话ID
	SortOption  string `json:"sort_option"`  // 新排序方式
}

// StopPayload 停止放映 Payload
type StopPayload struct {
	SlideshowID int64 `json:"slideshow_id"` // 幻灯片会话ID
}

// SyncPayload 状态同步请求 Payload
type SyncPayload struct {
	SlideshowID int64 `json:"slideshow_id"` // 幻灯片会话ID
}

// SlideshowStoppedPayload 放映停止事件 Payload
type SlideshowStoppedPayload struct {
	SlideshowID    int64 `json:"slideshow_id"`    // 幻灯片会话ID
	ConversationID int64 `json:"conversation_id"` // 所属会话ID
}

// ErrorPayload 错误消息 Payload
type ErrorPayload struct {
	Code    int    `json:"code"`    // 错误码
	Message string `json:"message"` // 错误信息
}
