// Package repository 提供数据访问层的实现
package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"slideshow-server/internal/model"
)

// SlideshowRepository 幻灯片会话数据访问层
// 负责幻灯片会话相关的所有数据库操作
// 版本号递增与状态迁移的业务规则在 service 层控制，这里只做读写
type SlideshowRepository struct {
	db *gorm.DB
}

// NewSlideshowRepository 创建 SlideshowRepository 实例
func NewSlideshowRepository(db *gorm.DB) *SlideshowRepository {
	return &SlideshowRepository{db: db}
}

// Create 创建新的幻灯片会话
// 参数:
//   - ctx: 上下文
//   - session: 幻灯片会话对象，ID 和时间字段会被自动填充
//
// 返回:
//   - error: 数据库错误
func (r *SlideshowRepository) Create(ctx context.Context, session *model.SlideshowSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// GetByID 根据 ID 获取幻灯片会话
// 参数:
//   - ctx: 上下文
//   - id: 幻灯片会话ID
//
// 返回:
//   - *model.SlideshowSession: 幻灯片会话对象，未找到返回 nil
//   - error: 数据库错误
func (r *SlideshowRepository) GetByID(ctx context.Context, id int64) (*model.SlideshowSession, error) {
	var session model.SlideshowSession
	err := r.db.WithContext(ctx).First(&session, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// GetActiveByConversationID 获取会话当前放映中的幻灯片
// 同一会话同时最多只有一个 active 的放映（由 service 层在会话级锁内保证）
// 参数:
//   - ctx: 上下文
//   - conversationID: 会话ID
//
// 返回:
//   - *model.SlideshowSession: 放映中的幻灯片会话，没有返回 nil
//   - error: 数据库错误
func (r *SlideshowRepository) GetActiveByConversationID(ctx context.Context, conversationID int64) (*model.SlideshowSession, error) {
	var session model.SlideshowSession
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND status = ?", conversationID, model.SlideshowStatusActive).
		Order("created_at DESC").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// Save 保存幻灯片会话的完整状态
// service 层在会话级锁内完成变更后整体写回
// 参数:
//   - ctx: 上下文
//   - session: 幻灯片会话对象，必须包含 ID
//
// 返回:
//   - error: 数据库错误
func (r *SlideshowRepository) Save(ctx context.Context, session *model.SlideshowSession) error {
	return r.db.WithContext(ctx).Save(session).Error
}

// Stop 停止幻灯片会话
// 将状态设为 stopped，并记录停止时间，版本号由调用方在 session 上递增后传入
// 参数:
//   - ctx: 上下文
//   - id: 幻灯片会话ID
//   - version: 停止时的版本号
//
// 返回:
//   - error: 数据库错误
func (r *SlideshowRepository) Stop(ctx context.Context, id, version int64) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&model.SlideshowSession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     model.SlideshowStatusStopped,
			"stopped_at": now,
			"version":    version,
		}).Error
}

// GetByConversationID 分页获取会话的历史放映记录
// 参数:
//   - ctx: 上下文
//   - conversationID: 会话ID
//   - page: 页码，从 1 开始
//   - pageSize: 每页数量
//
// 返回:
//   - []model.SlideshowSession: 放映记录列表，按创建时间倒序
//   - int64: 总数量
//   - error: 数据库错误
func (r *SlideshowRepository) GetByConversationID(ctx context.Context, conversationID int64, page, pageSize int) ([]model.SlideshowSession, int64, error) {
	var sessions []model.SlideshowSession
	var total int64

	query := r.db.WithContext(ctx).Model(&model.SlideshowSession{}).Where("conversation_id = ?", conversationID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&sessions).Error

	return sessions, total, err
}

// CountActive 统计当前放映中的幻灯片数量
// 用于进程关闭时的状态日志
// 参数:
//   - ctx: 上下文
//
// 返回:
//   - int64: 放映中的数量
//   - error: 数据库错误
func (r *SlideshowRepository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.SlideshowSession{}).
		Where("status = ?", model.SlideshowStatusActive).
		Count(&count).Error
	return count, err
}
