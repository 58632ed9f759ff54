// Package model 定义了与数据库表对应的数据结构
package model

import (
	"time"
)

// 幻灯片会话状态常量
const (
	SlideshowStatusActive  = "active"  // 放映中
	SlideshowStatusStopped = "stopped" // 已停止（终态，不可再变更）
)

// 幻灯片来源类型常量
const (
	SourceTypePersonal  = "personal"  // 会话内上传的媒体
	SourceTypeSubreddit = "subreddit" // 实时抓取的 subreddit 图集
)

// Subreddit 排序方式常量
const (
	SortHot           = "hot"
	SortNew           = "new"
	SortTop           = "top"
	SortRising        = "rising"
	SortBest          = "best"
	SortControversial = "controversial"
)

// IsValidSortOption 判断是否为合法的排序方式
func IsValidSortOption(s string) bool {
	switch s {
	case SortHot, SortNew, SortTop, SortRising, SortBest, SortControversial:
		return true
	}
	return false
}

// 自动播放间隔白名单（秒）
// 图片间隔从翻页开始计时；视频间隔从播放结束开始计时，0 表示播完即翻页（无服务端定时器）
var (
	ImageIntervals = []int{3, 5, 10, 15, 30}
	VideoIntervals = []int{0, 3, 5, 10}
)

// IsValidImageInterval 判断图片间隔是否合法
func IsValidImageInterval(secs int) bool {
	for _, v := range ImageIntervals {
		if v == secs {
			return true
		}
	}
	return false
}

// IsValidVideoInterval 判断视频间隔是否合法
func IsValidVideoInterval(secs int) bool {
	for _, v := range VideoIntervals {
		if v == secs {
			return true
		}
	}
	return false
}

// SlideshowItem 幻灯片条目
// 以 JSON 数组形式整体存储在 slideshow_sessions.items 列中
// 条目列表一旦放映开始即不可变（subreddit 来源可以在尾部追加，但不会重排）
type SlideshowItem struct {
	URL     string `json:"url"`               // 媒体地址
	Type    string `json:"type"`              // image / video / gif
	Caption string `json:"caption,omitempty"` // 说明文字
}

// SlideshowSession 幻灯片会话模型
// 对应数据库表 slideshow_sessions
// 表示一个会话内所有参与者同步观看的一次放映
// 不变式:
//  1. 同一 conversation 同时最多只有一个 active 状态的放映
//  2. controller_user_id 必须是 conversation 的参与者
//  3. current_index 始终在 [0, len(items)-1] 范围内
type SlideshowSession struct {
	// ID 放映唯一标识，自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// ConversationID 所属会话ID
	ConversationID int64 `gorm:"index;not null" json:"conversation_id"`

	// SourceType 来源类型: personal / subreddit
	SourceType string `gorm:"size:20;not null" json:"source_type"`

	// Subreddit 来源 subreddit 名称（仅 subreddit 来源有值）
	Subreddit string `gorm:"size:100" json:"subreddit,omitempty"`

	// SortOption subreddit 排序方式（仅 subreddit 来源有值）
	// 放映中可以切换，切换会重新解析条目列表并重置位置
	SortOption string `gorm:"size:20" json:"sort_option,omitempty"`

	// Items 有序条目列表，JSON 数组
	Items []SlideshowItem `gorm:"serializer:json;type:json" json:"items"`

	// CurrentIndex 当前放映位置，范围 [0, len(items)-1]
	CurrentIndex int `gorm:"not null;default:0" json:"current_index"`

	// ControllerUserID 当前控制者用户ID
	// 只有控制者可以翻页、移交控制权、修改自动播放设置、切换排序
	ControllerUserID int64 `gorm:"not null" json:"controller_user_id"`

	// AutoAdvance 是否开启自动播放
	AutoAdvance bool `gorm:"not null;default:false" json:"auto_advance"`

	// ImageSeconds 图片自动播放间隔（秒）
	ImageSeconds int `gorm:"not null;default:5" json:"image_seconds"`

	// VideoSeconds 视频播放结束后的翻页延迟（秒），0 表示播完立即翻页
	VideoSeconds int `gorm:"not null;default:0" json:"video_seconds"`

	// Status 放映状态: active / stopped
	Status string `gorm:"size:20;default:active;index" json:"status"`

	// NextCursor subreddit 分页游标
	// 为空表示已经取完；客户端不感知分页，只看到 items 按需增长
	NextCursor string `gorm:"size:200" json:"-"`

	// Version 单调递增的版本号
	// 每次被接受的变更加一，用于识别过期的定时器触发和客户端重连后的状态对账
	Version int64 `gorm:"not null;default:0" json:"version"`

	// CreatedAt 创建时间
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// UpdatedAt 更新时间
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// StoppedAt 停止时间，仅当状态为 stopped 时有值
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
}

// TableName 指定表名
func (SlideshowSession) TableName() string {
	return "slideshow_sessions"
}

// CurrentItem 返回当前位置的条目
// 调用方需保证索引不变式成立
func (s *SlideshowSession) CurrentItem() *SlideshowItem {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Items) {
		return nil
	}
	return &s.Items[s.CurrentIndex]
}
