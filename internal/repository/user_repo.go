// Package repository 提供数据访问层的实现
package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"slideshow-server/internal/model"
)

// UserRepository 用户数据访问层
// 负责用户相关的所有数据库操作
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建 UserRepository 实例
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create 创建新用户
// 参数:
//   - ctx: 上下文
//   - user: 用户对象，ID 和时间字段会被自动填充
//
// 返回:
//   - error: 数据库错误
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByID 根据 ID 获取用户
// 参数:
//   - ctx: 上下文
//   - id: 用户ID
//
// 返回:
//   - *model.User: 用户对象，未找到返回 nil
//   - error: 数据库错误
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// GetByUsername 根据用户名获取用户
// 用于登录验证
// 参数:
//   - ctx: 上下文
//   - username: 用户名
//
// 返回:
//   - *model.User: 用户对象，未找到返回 nil
//   - error: 数据库错误
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// ExistsByUsername 检查用户名是否已存在
// 参数:
//   - ctx: 上下文
//   - username: 用户名
//
// 返回:
//   - bool: 是否存在
//   - error: 数据库错误
func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("username = ?", username).Count(&count).Error
	return count > 0, err
}

// ExistsByEmail 检查邮箱是否已存在
// 参数:
//   - ctx: 上下文
//   - email: 邮箱
//
// 返回:
//   - bool: 是否存在
//   - error: 数据库错误
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

// Update 更新用户信息
// 参数:
//   - ctx: 上下文
//   - user: 包含要更新字段的用户对象，必须包含 ID
//
// 返回:
//   - error: 数据库错误
func (r *UserRepository) Update(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

// UpdatePassword 更新用户密码哈希
// 参数:
//   - ctx: 上下文
//   - id: 用户ID
//   - passwordHash: 新的密码哈希
//
// 返回:
//   - error: 数据库错误
func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		Update("password_hash", passwordHash).Error
}
