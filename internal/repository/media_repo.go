// Package repository 提供数据访问层的实现
package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"slideshow-server/internal/model"
)

// MediaRepository 媒体数据访问层
// 负责上传媒体元数据的所有数据库操作
type MediaRepository struct {
	db *gorm.DB
}

// NewMediaRepository 创建 MediaRepository 实例
func NewMediaRepository(db *gorm.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

// Create 记录一条上传媒体
// 参数:
//   - ctx: 上下文
//   - media: 媒体对象，ID 和时间字段会被自动填充
//
// 返回:
//   - error: 数据库错误
func (r *MediaRepository) Create(ctx context.Context, media *model.Media) error {
	return r.db.WithContext(ctx).Create(media).Error
}

// GetByID 根据 ID 获取媒体
// 参数:
//   - ctx: 上下文
//   - id: 媒体ID
//
// 返回:
//   - *model.Media: 媒体对象，未找到返回 nil
//   - error: 数据库错误
func (r *MediaRepository) GetByID(ctx context.Context, id int64) (*model.Media, error) {
	var media model.Media
	err := r.db.WithContext(ctx).First(&media, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &media, nil
}

// GetByIDs 按 ID 列表批量获取媒体
// 用于解析 personal 幻灯片的条目引用，结果以 map 返回便于按原始顺序重组
// 参数:
//   - ctx: 上下文
//   - ids: 媒体ID列表
//
// 返回:
//   - map[int64]*model.Media: ID 到媒体的映射，缺失的 ID 不在 map 中
//   - error: 数据库错误
func (r *MediaRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]*model.Media, error) {
	var list []model.Media
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error
	if err != nil {
		return nil, err
	}
	result := make(map[int64]*model.Media, len(list))
	for i := range list {
		result[list[i].ID] = &list[i]
	}
	return result, nil
}

// GetByConversationID 分页获取会话内的媒体
// 参数:
//   - ctx: 上下文
//   - conversationID: 会话ID
//   - page: 页码，从 1 开始
//   - pageSize: 每页数量
//
// 返回:
//   - []model.Media: 媒体列表，按上传时间倒序
//   - int64: 总数量
//   - error: 数据库错误
func (r *MediaRepository) GetByConversationID(ctx context.Context, conversationID int64, page, pageSize int) ([]model.Media, int64, error) {
	var list []model.Media
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Media{}).Where("conversation_id = ?", conversationID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&list).Error

	return list, total, err
}

// Delete 删除媒体记录
// 参数:
//   - ctx: 上下文
//   - id: 媒体ID
//
// 返回:
//   - error: 数据库错误
func (r *MediaRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&model.Media{}, id).Error
}
