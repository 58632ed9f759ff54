// Package service 提供业务逻辑层的实现
package service

import (
	"context"
	"errors"

	"slideshow-server/internal/model"
	"slideshow-server/internal/repository"
)

// 会话相关错误
var (
	ErrConversationNotFound = errors.New("会话不存在")
	ErrNotParticipant       = errors.New("您不是该会话的参与者")
)

// ConversationService 会话服务
// 处理会话的创建、查询和参与者管理
type ConversationService struct {
	conversationRepo *repository.ConversationRepository // 会话数据访问层
	userRepo         *repository.UserRepository         // 用户数据访问层
}

// NewConversationService 创建 ConversationService 实例
func NewConversationService(
	conversationRepo *repository.ConversationRepository,
	userRepo *repository.UserRepository,
) *ConversationService {
	return &ConversationService{
		conversationRepo: conversationRepo,
		userRepo:         userRepo,
	}
}

// CreateConversationRequest 创建会话请求
type CreateConversationRequest struct {
	Title          string  `json:"title"`                               // 会话标题（可选）
	ParticipantIDs []int64 `json:"participant_ids" binding:"required"` // 参与者用户ID列表（不含创建者）
}

// CreateConversation 创建会话
// 创建者自动成为参与者
// 参数:
//   - ctx: 上下文
//   - userID: 创建者用户ID
//   - req: 创建请求
//
// 返回:
//   - *model.Conversation: 创建的会话
//   - error: 业务错误
func (s *ConversationService) CreateConversation(ctx context.Context, userID int64, req *CreateConversationRequest) (*model.Conversation, error) {
	// 1. 校验所有参与者存在
	for _, pid := range req.ParticipantIDs {
		user, err := s.userRepo.GetByID(ctx, pid)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, ErrUserNotFound
		}
	}

	// 2. 创建者并入参与者列表并去重
	seen := map[int64]bool{userID: true}
	participantIDs := []int64{userID}
	for _, pid := range req.ParticipantIDs {
		if !seen[pid] {
			seen[pid] = true
			participantIDs = append(participantIDs, pid)
		}
	}

	conversation := &model.Conversation{
		CreatorID: userID,
	}
	if req.Title != "" {
		conversation.Title = &req.Title
	}

	// 3. 会话和参与者记录在同一事务中写入
	if err := s.conversationRepo.Create(ctx, conversation, participantIDs); err != nil {
		return nil, err
	}

	return conversation, nil
}

// GetConversation 获取会话详情（含参与者）
// 只有参与者可以查看
// 参数:
//   - ctx: 上下文
//   - userID: 请求者用户ID
//   - conversationID: 会话ID
//
// 返回:
//   - *model.Conversation: 会话详情
//   - error: 业务错误
func (s *ConversationService) GetConversation(ctx context.Context, userID, conversationID int64) (*model.Conversation, error) {
	isParticipant, err := s.conversationRepo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !isParticipant {
		return nil, ErrNotParticipant
	}

	conversation, err := s.conversationRepo.GetByIDWithParticipants(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}
	return conversation, nil
}

// ListConversations 获取用户参与的所有会话
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//
// 返回:
//   - []model.Conversation: 会话列表
//   - error: 数据库错误
func (s *ConversationService) ListConversations(ctx context.Context, userID int64) ([]model.Conversation, error) {
	return s.conversationRepo.GetByUserID(ctx, userID)
}

// AddParticipant 向会话添加参与者
// 只有现有参与者可以拉人
// 参数:
//   - ctx: 上下文
//   - userID: 请求者用户ID
//   - conversationID: 会话ID
//   - newUserID: 新参与者用户ID
//
// 返回:
//   - error: 业务错误
func (s *ConversationService) AddParticipant(ctx context.Context, userID, conversationID, newUserID int64) error {
	conversation, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conversation == nil {
		return ErrConversationNotFound
	}

	isParticipant, err := s.conversationRepo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !isParticipant {
		return ErrNotParticipant
	}

	user, err := s.userRepo.GetByID(ctx, newUserID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	// 已经是参与者则视为成功
	already, err := s.conversationRepo.IsParticipant(ctx, conversationID, newUserID)
	if err != nil {
		return err
	}
	if already {
		return nil
	}

	return s.conversationRepo.AddParticipant(ctx, conversationID, newUserID)
}
