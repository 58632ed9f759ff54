// Package reddit 提供 Reddit 公开接口的抓取客户端
// 只使用无需授权的公开 listing 接口，按 subreddit + 排序方式分页抓取帖子
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"slideshow-server/internal/cache"
	"slideshow-server/internal/config"
)

// Post 帖子元数据
// 只保留判断"能否内联渲染"以及组装幻灯片条目所需的字段
type Post struct {
	ID       string `json:"id"`        // 帖子ID
	Title    string `json:"title"`     // 标题，用作条目说明文字
	URL      string `json:"url"`       // 帖子指向的资源地址
	PostHint string `json:"post_hint"` // Reddit 的内容类型提示: image / hosted:video / link / self...
	IsVideo  bool   `json:"is_video"`  // 是否为 Reddit 托管视频
	IsSelf   bool   `json:"is_self"`   // 是否为纯文本帖
	Domain   string `json:"domain"`    // 资源域名，用于识别外链
	VideoURL string `json:"video_url"` // 托管视频的直链（从 media 字段提取）
}

// ListingPage 一页抓取结果
type ListingPage struct {
	Posts []Post `json:"posts"` // 帖子列表，保持 Reddit 返回的顺序
	After string `json:"after"` // 下一页游标，为空表示没有更多
}

// Client Reddit 抓取客户端
// 抓取结果按 (subreddit, sort, after) 在 Redis 中短暂缓存
type Client struct {
	baseURL   string
	userAgent string
	pageSize  int
	cacheTTL  time.Duration
	client    *http.Client
	cache     *cache.RedisCache // 可以为 nil（测试环境）
}

// NewClient 创建 Client 实例
// 参数:
//   - cfg: 应用配置（包含 Reddit 接口配置）
//   - redisCache: Redis 缓存，传 nil 则不缓存
//
// 返回:
//   - *Client: 客户端实例
func NewClient(cfg *config.Config, redisCache *cache.RedisCache) *Client {
	return &Client{
		baseURL:   cfg.Reddit.BaseURL,
		userAgent: cfg.Reddit.UserAgent,
		pageSize:  cfg.Reddit.PageSize,
		cacheTTL:  cfg.Reddit.CacheTTL,
		client: &http.Client{
			Timeout: cfg.Reddit.Timeout, // 设置超时
		},
		cache: redisCache,
	}
}

// listingResponse Reddit listing 接口的响应结构
// 只声明需要的字段
type listingResponse struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data struct {
				ID       string `json:"id"`
				Title    string `json:"title"`
				URL      string `json:"url"`
				PostHint string `json:"post_hint"`
				IsVideo  bool   `json:"is_video"`
				IsSelf   bool   `json:"is_self"`
				Domain   string `json:"domain"`
				Media    struct {
					RedditVideo struct {
						FallbackURL string `json:"fallback_url"`
					} `json:"reddit_video"`
				} `json:"media"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Listing 抓取一页帖子
// 先查 Redis 缓存，未命中时请求 Reddit；瞬时失败重试一次
// 参数:
//   - ctx: 上下文
//   - subreddit: subreddit 名称（不含 r/ 前缀）
//   - sort: 排序方式: hot / new / top / rising / best / controversial
//   - after: 分页游标，首页传空字符串
//
// 返回:
//   - *ListingPage: 一页帖子及下一页游标
//   - error: 抓取或解析错误
func (c *Client) Listing(ctx context.Context, subreddit, sort, after string) (*ListingPage, error) {
	// 1. 查缓存
	if c.cache != nil {
		var page ListingPage
		hit, err := c.cache.GetRedditPage(ctx, subreddit, sort, after, &page)
		if err != nil {
			log.Printf("Failed to read reddit cache: %v", err)
		}
		if hit {
			return &page, nil
		}
	}

	// 2. 请求 Reddit，瞬时错误重试一次
	page, err := c.fetch(ctx, subreddit, sort, after)
	if err != nil {
		page, err = c.fetch(ctx, subreddit, sort, after)
	}
	if err != nil {
		return nil, err
	}

	// 3. 写缓存（失败不影响结果）
	if c.cache != nil {
		if err := c.cache.SetRedditPage(ctx, subreddit, sort, after, page, c.cacheTTL); err != nil {
			log.Printf("Failed to write reddit cache: %v", err)
		}
	}

	return page, nil
}

// fetch 请求 Reddit listing 接口并解析响应
func (c *Client) fetch(ctx context.Context, subreddit, sort, after string) (*ListingPage, error) {
	// 构建 URL: {base}/r/{subreddit}/{sort}.json?limit=N&after=...
	endpoint := fmt.Sprintf("%s/r/%s/%s.json", c.baseURL, url.PathEscape(subreddit), url.PathEscape(sort))

	query := url.Values{}
	query.Set("limit", fmt.Sprintf("%d", c.pageSize))
	query.Set("raw_json", "1") // 避免 HTML 实体转义
	if after != "" {
		query.Set("after", after)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	// Reddit 要求使用自定义 UA，默认 UA 会被限流
	httpReq.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call reddit: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var listing listingResponse
	if err := json.Unmarshal(bodyBytes, &listing); err != nil {
		return nil, fmt.Errorf("failed to parse reddit response: %w", err)
	}

	page := &ListingPage{
		After: listing.Data.After,
		Posts: make([]Post, 0, len(listing.Data.Children)),
	}
	for _, child := range listing.Data.Children {
		d := child.Data
		page.Posts = append(page.Posts, Post{
			ID:       d.ID,
			Title:    d.Title,
			URL:      d.URL,
			PostHint: d.PostHint,
			IsVideo:  d.IsVideo,
			IsSelf:   d.IsSelf,
			Domain:   d.Domain,
			VideoURL: d.Media.RedditVideo.FallbackURL,
		})
	}

	return page, nil
}
