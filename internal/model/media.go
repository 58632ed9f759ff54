// Package model 定义了与数据库表对应的数据结构
package model

import (
	"time"
)

// 媒体类型常量
// 只有这三种类型可以在聊天内联渲染，幻灯片的条目也只接受这三种
const (
	MediaTypeImage = "image" // 图片
	MediaTypeVideo = "video" // 视频
	MediaTypeGif   = "gif"   // 动图
)

// IsInlineMediaType 判断是否为可内联渲染的媒体类型
func IsInlineMediaType(t string) bool {
	return t == MediaTypeImage || t == MediaTypeVideo || t == MediaTypeGif
}

// Media 上传媒体模型
// 对应数据库表 media
// 记录用户在会话中上传的媒体文件元数据（文件本身存储在对象存储中）
type Media struct {
	// ID 媒体唯一标识，自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// ConversationID 所属会话ID
	// 媒体归属于上传它的会话，幻灯片只能引用本会话的媒体
	ConversationID int64 `gorm:"index;not null" json:"conversation_id"`

	// UploaderID 上传者用户ID
	UploaderID int64 `gorm:"index;not null" json:"uploader_id"`

	// URL 媒体访问地址
	URL string `gorm:"size:1000;not null" json:"url"`

	// Type 媒体类型: image / video / gif
	Type string `gorm:"size:20;not null" json:"type"`

	// Caption 说明文字，可选
	Caption *string `gorm:"size:500" json:"caption,omitempty"`

	// CreatedAt 上传时间
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (Media) TableName() string {
	return "media"
}
