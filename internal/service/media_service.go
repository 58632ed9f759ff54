// Package service 提供业务逻辑层的实现
package service

import (
	"context"
	"errors"

	"slideshow-server/internal/model"
	"slideshow-server/internal/repository"
)

// 媒体相关错误
var (
	ErrMediaNotFound    = errors.New("媒体不存在")
	ErrInvalidMediaType = errors.New("不支持的媒体类型")
)

// MediaService 媒体服务
// 维护上传媒体的元数据记录，实际文件存储在外部（CDN/对象存储），
// 这里只记录 URL 和类型
type MediaService struct {
	mediaRepo        *repository.MediaRepository        // 媒体数据访问层
	conversationRepo *repository.ConversationRepository // 会话数据访问层
}

// NewMediaService 创建 MediaService 实例
func NewMediaService(
	mediaRepo *repository.MediaRepository,
	conversationRepo *repository.ConversationRepository,
) *MediaService {
	return &MediaService{
		mediaRepo:        mediaRepo,
		conversationRepo: conversationRepo,
	}
}

// CreateMediaRequest 登记媒体请求
type CreateMediaRequest struct {
	ConversationID int64  `json:"conversation_id" binding:"required"` // 所属会话ID
	URL            string `json:"url" binding:"required,max=1000"`    // 媒体地址
	Type           string `json:"type" binding:"required"`            // image / video / gif
	Caption        string `json:"caption" binding:"max=500"`          // 说明文字（可选）
}

// CreateMedia 登记一条上传媒体
// 只有会话参与者可以上传，类型必须是可内联渲染的媒体
// 参数:
//   - ctx: 上下文
//   - userID: 上传者用户ID
//   - req: 登记请求
//
// 返回:
//   - *model.Media: 登记的媒体记录
//   - error: 业务错误
func (s *MediaService) CreateMedia(ctx context.Context, userID int64, req *CreateMediaRequest) (*model.Media, error) {
	if !model.IsInlineMediaType(req.Type) {
		return nil, ErrInvalidMediaType
	}

	conversation, err := s.conversationRepo.GetByID(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}

	isParticipant, err := s.conversationRepo.IsParticipant(ctx, req.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	if !isParticipant {
		return nil, ErrNotParticipant
	}

	media := &model.Media{
		ConversationID: req.ConversationID,
		UploaderID:     userID,
		URL:            req.URL,
		Type:           req.Type,
	}
	if req.Caption != "" {
		media.Caption = &req.Caption
	}

	if err := s.mediaRepo.Create(ctx, media); err != nil {
		return nil, err
	}
	return media, nil
}

// ListMedia 分页获取会话内的媒体
// 只有会话参与者可以查看
// 参数:
//   - ctx: 上下文
//   - userID: 请求者用户ID
//   - conversationID: 会话ID
//   - page: 页码，从 1 开始
//   - pageSize: 每页数量
//
// 返回:
//   - []model.Media: 媒体列表
//   - int64: 总数量
//   - error: 业务错误
func (s *MediaService) ListMedia(ctx context.Context, userID, conversationID int64, page, pageSize int) ([]model.Media, int64, error) {
	isParticipant, err := s.conversationRepo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, 0, err
	}
	if !isParticipant {
		return nil, 0, ErrNotParticipant
	}

	return s.mediaRepo.GetByConversationID(ctx, conversationID, page, pageSize)
}

// DeleteMedia 删除媒体记录
// 只有上传者本人可以删除
// 参数:
//   - ctx: 上下文
//   - userID: 请求者用户ID
//   - mediaID: 媒体ID
//
// 返回:
//   - error: 业务错误
func (s *MediaService) DeleteMedia(ctx context.Context, userID, mediaID int64) error {
	media, err := s.mediaRepo.GetByID(ctx, mediaID)
	if err != nil {
		return err
	}
	if media == nil {
		return ErrMediaNotFound
	}
	if media.UploaderID != userID {
		return ErrNotParticipant
	}
	return s.mediaRepo.Delete(ctx, mediaID)
}
