// Package service 提供业务逻辑层的实现
package service

import (
	"context"

	"slideshow-server/internal/cache"
	"slideshow-server/internal/repository"
	"slideshow-server/pkg/util"
)

// UserService 用户服务
// 处理用户资料查询和修改
type UserService struct {
	userRepo *repository.UserRepository // 用户数据访问层
	cache    *cache.RedisCache          // Redis 缓存
}

// NewUserService 创建 UserService 实例
func NewUserService(userRepo *repository.UserRepository, redisCache *cache.RedisCache) *UserService {
	return &UserService{
		userRepo: userRepo,
		cache:    redisCache,
	}
}

// UserProfile 用户资料
type UserProfile struct {
	ID        int64   `json:"id"`
	Username  string  `json:"username"`
	Email     *string `json:"email,omitempty"`
	Avatar    *string `json:"avatar,omitempty"`
	Online    bool    `json:"online"` // 是否有活跃的 WebSocket 连接
	CreatedAt string  `json:"created_at"`
}

// GetProfile 获取用户资料
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//
// 返回:
//   - *UserProfile: 用户资料
//   - error: 用户不存在返回 ErrUserNotFound
func (s *UserService) GetProfile(ctx context.Context, userID int64) (*UserProfile, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	online := false
	if s.cache != nil {
		online = s.cache.IsUserOnline(ctx, userID)
	}

	return &UserProfile{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Avatar:    user.Avatar,
		Online:    online,
		CreatedAt: user.CreatedAt.Format("2006-01-02 15:04:05"),
	}, nil
}

// UpdateProfileRequest 更新资料请求
type UpdateProfileRequest struct {
	Email  *string `json:"email" binding:"omitempty,email"` // 新邮箱
	Avatar *string `json:"avatar"`                          // 新头像 URL
}

// UpdateProfile 更新用户资料
// 只更新请求中出现的字段
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//   - req: 更新请求
//
// 返回:
//   - error: 业务错误
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, req *UpdateProfileRequest) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	if req.Email != nil && *req.Email != "" {
		exists, err := s.userRepo.ExistsByEmail(ctx, *req.Email)
		if err != nil {
			return err
		}
		if exists && (user.Email == nil || *user.Email != *req.Email) {
			return ErrEmailExists
		}
		user.Email = req.Email
	}
	if req.Avatar != nil {
		user.Avatar = req.Avatar
	}

	return s.userRepo.Update(ctx, user)
}

// ChangePasswordRequest 修改密码请求
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`       // 旧密码
	NewPassword string `json:"new_password" binding:"required,min=6"` // 新密码
}

// ChangePassword 修改密码
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//   - req: 修改密码请求
//
// 返回:
//   - error: 旧密码错误返回 ErrPasswordWrong
func (s *UserService) ChangePassword(ctx context.Context, userID int64, req *ChangePasswordRequest) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	// 验证旧密码
	if !util.CheckPassword(req.OldPassword, user.PasswordHash) {
		return ErrPasswordWrong
	}

	newHash, err := util.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}

	return s.userRepo.UpdatePassword(ctx, userID, newHash)
}
