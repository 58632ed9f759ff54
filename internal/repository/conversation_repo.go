// Package repository 提供数据访问层的实现
package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"slideshow-server/internal/model"
)

// ConversationRepository 会话数据访问层
// 负责会话及参与者关系的所有数据库操作
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建 ConversationRepository 实例
func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create 创建新会话，并在同一事务中写入参与者记录
// 参数:
//   - ctx: 上下文
//   - conversation: 会话对象
//   - participantIDs: 参与者用户ID列表（应包含创建者）
//
// 返回:
//   - error: 数据库错误
func (r *ConversationRepository) Create(ctx context.Context, conversation *model.Conversation, participantIDs []int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conversation).Error; err != nil {
			return err
		}
		for _, userID := range participantIDs {
			p := &model.Participant{
				ConversationID: conversation.ID,
				UserID:         userID,
			}
			if err := tx.Create(p).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByID 根据 ID 获取会话
// 参数:
//   - ctx: 上下文
//   - id: 会话ID
//
// 返回:
//   - *model.Conversation: 会话对象，未找到返回 nil
//   - error: 数据库错误
func (r *ConversationRepository) GetByID(ctx context.Context, id int64) (*model.Conversation, error) {
	var conversation model.Conversation
	err := r.db.WithContext(ctx).First(&conversation, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conversation, nil
}

// GetByIDWithParticipants 根据 ID 获取会话及其参与者
// 参数:
//   - ctx: 上下文
//   - id: 会话ID
//
// 返回:
//   - *model.Conversation: 包含 Participants 字段的会话对象
//   - error: 数据库错误
func (r *ConversationRepository) GetByIDWithParticipants(ctx context.Context, id int64) (*model.Conversation, error) {
	var conversation model.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Preload("Participants.User").
		First(&conversation, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conversation, nil
}

// GetByUserID 获取用户参与的所有会话
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//
// 返回:
//   - []model.Conversation: 会话列表，按更新时间倒序
//   - error: 数据库错误
func (r *ConversationRepository) GetByUserID(ctx context.Context, userID int64) ([]model.Conversation, error) {
	var conversations []model.Conversation
	err := r.db.WithContext(ctx).
		Joins("JOIN participants ON participants.conversation_id = conversations.id").
		Where("participants.user_id = ?", userID).
		Order("conversations.updated_at DESC").
		Find(&conversations).Error
	return conversations, err
}

// GetParticipantIDs 获取会话所有参与者的用户ID
// 广播幻灯片事件时用于解析接收者集合
// 参数:
//   - ctx: 上下文
//   - conversationID: 会话ID
//
// 返回:
//   - []int64: 参与者用户ID列表
//   - error: 数据库错误
func (r *ConversationRepository) GetParticipantIDs(ctx context.Context, conversationID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.Participant{}).
		Where("conversation_id = ?", conversationID).
		Pluck("user_id", &ids).Error
	return ids, err
}

// IsParticipant 检查用户是否为会话参与者
// 所有幻灯片操作执行前都要先通过此检查
// 参数:
//   - ctx: 上下文
//   - conversationID: 会话ID
//   - userID: 用户ID
//
// 返回:
//   - bool: 是否为参与者
//   - error: 数据库错误
func (r *ConversationRepository) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Participant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	return count > 0, err
}

// AddParticipant 添加参与者
// 参数:
//   - ctx: 上下文
//   - conversationID: 会话ID
//   - userID: 用户ID
//
// 返回:
//   - error: 数据库错误（已存在时返回唯一索引冲突）
func (r *ConversationRepository) AddParticipant(ctx context.Context, conversationID, userID int64) error {
	p := &model.Participant{
		ConversationID: conversationID,
		UserID:         userID,
	}
	return r.db.WithContext(ctx).Create(p).Error
}
