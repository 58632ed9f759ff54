// Package cache 提供 Redis 缓存操作的封装
// 处理在线状态、JWT 黑名单、subreddit 抓取缓存等需要快速访问的数据
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"slideshow-server/internal/config"
)

// RedisCache 封装 Redis 客户端，提供业务相关的缓存操作
type RedisCache struct {
	client *redis.Client // Redis 客户端实例
}

// NewRedisCache 创建 RedisCache 实例
// 参数:
//   - cfg: 应用配置（包含 Redis 连接信息）
//
// 返回:
//   - *RedisCache: 缓存实例
//   - error: 连接错误
func NewRedisCache(cfg *config.Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Username: cfg.Redis.Username, // 阿里云 Redis 需要用户名
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Close 关闭 Redis 连接
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// ==================== 在线状态管理 ====================
// 一个用户可能有多个 WebSocket 连接（多标签页），用计数器记录连接数
// 计数归零即视为离线

// IncrUserConnections 用户新连接建立时递增连接数
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//
// 返回:
//   - int64: 递增后的连接数
//   - error: Redis 操作错误
func (c *RedisCache) IncrUserConnections(ctx context.Context, userID int64) (int64, error) {
	pipe := c.client.Pipeline()

	incr := pipe.Incr(ctx, fmt.Sprintf("user:%d:connections", userID))

	// 加入全局在线用户集合
	// SADD 如果元素已存在，不会重复添加
	pipe.SAdd(ctx, "online:users", userID)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// DecrUserConnections 用户连接断开时递减连接数
// 计数归零时从在线集合移除
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//
// 返回:
//   - int64: 递减后的连接数
//   - error: Redis 操作错误
func (c *RedisCache) DecrUserConnections(ctx context.Context, userID int64) (int64, error) {
	key := fmt.Sprintf("user:%d:connections", userID)
	count, err := c.client.Decr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count <= 0 {
		pipe := c.client.Pipeline()
		pipe.Del(ctx, key)
		pipe.SRem(ctx, "online:users", userID)
		_, err = pipe.Exec(ctx)
	}
	return count, err
}

// IsUserOnline 检查用户是否在线
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//
// 返回:
//   - bool: 是否在线
func (c *RedisCache) IsUserOnline(ctx context.Context, userID int64) bool {
	ok, err := c.client.SIsMember(ctx, "online:users", userID).Result()
	if err != nil {
		return false
	}
	return ok
}

// ==================== JWT 黑名单 ====================
// 用户登出后 Token 加入黑名单，直到其自然过期

// BlacklistToken 将 Token 哈希加入黑名单
// TTL 设为 Token 的剩余有效期，过期后自动清除
// 参数:
//   - ctx: 上下文
//   - tokenHash: Token 的 SHA256 哈希
//   - expireAt: Token 的过期时间
//
// 返回:
//   - error: Redis 操作错误
func (c *RedisCache) BlacklistToken(ctx context.Context, tokenHash string, expireAt time.Time) error {
	ttl := time.Until(expireAt)
	if ttl <= 0 {
		// Token 已过期，无需加入黑名单
		return nil
	}
	return c.client.Set(ctx, fmt.Sprintf("blacklist:%s", tokenHash), 1, ttl).Err()
}

// IsTokenBlacklisted 检查 Token 是否在黑名单中
// 参数:
//   - ctx: 上下文
//   - tokenHash: Token 的 SHA256 哈希
//
// 返回:
//   - bool: 是否在黑名单中
func (c *RedisCache) IsTokenBlacklisted(ctx context.Context, tokenHash string) bool {
	exists, err := c.client.Exists(ctx, fmt.Sprintf("blacklist:%s", tokenHash)).Result()
	if err != nil {
		return false
	}
	return exists > 0
}

// ==================== 放映指针 ====================
// conversation -> 当前放映中的幻灯片会话ID，客户端重连后快速定位

// SetActiveSlideshow 记录会话当前放映中的幻灯片
// 参数:
//   - ctx: 上下文
//   - conversationID: 会话ID
//   - slideshowID: 幻灯片会话ID
//
// 返回:
//   - error: Redis 操作错误
func (c *RedisCache) SetActiveSlideshow(ctx context.Context, conversationID, slideshowID int64) error {
	return c.client.Set(ctx, fmt.Sprintf("conversation:%d:slideshow", conversationID), slideshowID, 0).Err()
}

// GetActiveSlideshow 获取会话当前放映中的幻灯片ID
// 参数:
//   - ctx: 上下文
//   - conversationID: 会话ID
//
// 返回:
//   - int64: 幻灯片会话ID，没有返回 0
//   - error: Redis 操作错误
func (c *RedisCache) GetActiveSlideshow(ctx context.Context, conversationID int64) (int64, error) {
	val, err := c.client.Get(ctx, fmt.Sprintf("conversation:%d:slideshow", conversationID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

// ClearActiveSlideshow 清除会话的放映指针
// 放映停止时调用
// 参数:
//   - ctx: 上下文
//   - conversationID: 会话ID
//
// 返回:
//   - error: Redis 操作错误
func (c *RedisCache) ClearActiveSlideshow(ctx context.Context, conversationID int64) error {
	return c.client.Del(ctx, fmt.Sprintf("conversation:%d:slideshow", conversationID)).Err()
}

// ==================== Subreddit 抓取缓存 ====================
// 同一 (subreddit, sort, cursor) 的抓取结果短暂缓存，避免多个放映重复请求 Reddit

// redditPageKey 生成抓取缓存的 Key
func redditPageKey(subreddit, sort, after string) string {
	return fmt.Sprintf("reddit:%s:%s:%s", subreddit, sort, after)
}

// SetRedditPage 缓存一页抓取结果
// 参数:
//   - ctx: 上下文
//   - subreddit: subreddit 名称
//   - sort: 排序方式
//   - after: 分页游标（首页为空字符串）
//   - data: 可 JSON 序列化的页面数据
//   - ttl: 缓存时长
//
// 返回:
//   - error: Redis 操作错误
func (c *RedisCache) SetRedditPage(ctx context.Context, subreddit, sort, after string, data interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, redditPageKey(subreddit, sort, after), raw, ttl).Err()
}

// GetRedditPage 读取缓存的抓取结果
// 参数:
//   - ctx: 上下文
//   - subreddit: subreddit 名称
//   - sort: 排序方式
//   - after: 分页游标
//   - dest: 反序列化目标
//
// 返回:
//   - bool: 是否命中缓存
//   - error: Redis 操作错误
func (c *RedisCache) GetRedditPage(ctx context.Context, subreddit, sort, after string, dest interface{}) (bool, error) {
	raw, err := c.client.Get(ctx, redditPageKey(subreddit, sort, after)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}
