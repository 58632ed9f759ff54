// Package model 定义了与数据库表对应的数据结构
package model

import (
	"time"
)

// Conversation 会话（聊天线程）模型
// 对应数据库表 conversations
// 两个或多个用户之间的一个聊天线程，是幻灯片会话的归属单位
type Conversation struct {
	// ID 会话唯一标识，自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// Title 会话标题，可选
	Title *string `gorm:"size:200" json:"title,omitempty"`

	// CreatorID 创建者用户ID
	CreatorID int64 `gorm:"index;not null" json:"creator_id"`

	// CreatedAt 创建时间，由 GORM 自动填充
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// UpdatedAt 更新时间，由 GORM 自动更新
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Participants 会话的参与者（一对多关系）
	Participants []Participant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
}

// TableName 指定表名
func (Conversation) TableName() string {
	return "conversations"
}

// Participant 会话参与者模型
// 对应数据库表 participants
// 记录用户与会话的成员关系，一个用户可以加入多个会话
type Participant struct {
	// ID 自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// ConversationID 所属会话ID
	// 与 UserID 联合建立唯一索引，同一用户在同一会话中只有一条记录
	ConversationID int64 `gorm:"uniqueIndex:idx_conv_user;not null" json:"conversation_id"`

	// UserID 参与者用户ID
	UserID int64 `gorm:"uniqueIndex:idx_conv_user;index;not null" json:"user_id"`

	// JoinedAt 加入时间
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`

	// User 参与者用户信息（多对一关系）
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName 指定表名
func (Participant) TableName() string {
	return "participants"
}
