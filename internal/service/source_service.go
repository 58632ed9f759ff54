// Package service 提供业务逻辑层的实现
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"slideshow-server/internal/model"
	"slideshow-server/internal/reddit"
	"slideshow-server/internal/repository"
	"slideshow-server/pkg/util"
)

// 媒体来源相关错误
var (
	ErrEmptySource       = errors.New("没有可放映的媒体")
	ErrSourceUnavailable = errors.New("媒体来源解析失败")
)

// RedditLister Reddit 抓取接口
// 由 reddit.Client 实现，测试中可替换为桩实现
type RedditLister interface {
	Listing(ctx context.Context, subreddit, sort, after string) (*reddit.ListingPage, error)
}

// 单次解析最多抓取的页数
// 某些 subreddit 整页都是文本帖，过滤后可能一条不剩，最多再翻两页
const maxResolvePages = 3

// SourceService 媒体来源适配器
// 负责把"来源参数"解析成幻灯片条目列表:
//   - personal: 校验媒体引用属于该会话，保持调用方给定的顺序
//   - subreddit: 抓取并过滤出可内联渲染的帖子，保持 Reddit 的顺序
type SourceService struct {
	mediaRepo *repository.MediaRepository // 媒体数据访问层
	reddit    RedditLister                // Reddit 抓取客户端
}

// NewSourceService 创建 SourceService 实例
func NewSourceService(mediaRepo *repository.MediaRepository, redditClient RedditLister) *SourceService {
	return &SourceService{
		mediaRepo: mediaRepo,
		reddit:    redditClient,
	}
}

// ResolvePersonal 解析个人上传来源
// 每个媒体引用都必须存在且属于指定会话，顺序与传入的 ID 列表一致
// 参数:
//   - ctx: 上下文
//   - conversationID: 会话ID
//   - mediaIDs: 媒体ID列表，不能为空
//
// 返回:
//   - []model.SlideshowItem: 幻灯片条目列表
//   - error: ErrEmptySource / ErrMediaNotFound / 数据库错误
func (s *SourceService) ResolvePersonal(ctx context.Context, conversationID int64, mediaIDs []int64) ([]model.SlideshowItem, error) {
	if len(mediaIDs) == 0 {
		return nil, ErrEmptySource
	}

	mediaMap, err := s.mediaRepo.GetByIDs(ctx, mediaIDs)
	if err != nil {
		return nil, err
	}

	items := make([]model.SlideshowItem, 0, len(mediaIDs))
	for _, id := range mediaIDs {
		media, exists := mediaMap[id]
		// 引用不存在，或者媒体属于别的会话，都按"媒体不存在"处理
		if !exists || media.ConversationID != conversationID {
			return nil, ErrMediaNotFound
		}
		item := model.SlideshowItem{
			URL:  media.URL,
			Type: media.Type,
		}
		if media.Caption != nil {
			item.Caption = *media.Caption
		}
		items = append(items, item)
	}

	return items, nil
}

// ResolveSubreddit 解析 subreddit 来源
// 从指定游标开始抓取，过滤出可内联渲染的帖子；如果整页被滤空，
// 最多继续翻 maxResolvePages 页
// 参数:
//   - ctx: 上下文
//   - subreddit: subreddit 名称
//   - sort: 排序方式
//   - after: 分页游标，首页传空字符串
//
// 返回:
//   - []model.SlideshowItem: 幻灯片条目列表（可能为空）
//   - string: 下一页游标，为空表示没有更多
//   - error: ErrSourceUnavailable（抓取失败）
func (s *SourceService) ResolveSubreddit(ctx context.Context, subreddit, sort, after string) ([]model.SlideshowItem, string, error) {
	var items []model.SlideshowItem
	cursor := after

	for page := 0; page < maxResolvePages; page++ {
		listing, err := s.reddit.Listing(ctx, subreddit, sort, cursor)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}

		for _, post := range listing.Posts {
			if item, ok := itemFromPost(post); ok {
				items = append(items, item)
			}
		}

		cursor = listing.After
		// 拿到条目或者没有更多页就停止
		if len(items) > 0 || cursor == "" {
			break
		}
	}

	return items, cursor, nil
}

// itemFromPost 将 Reddit 帖子转换为幻灯片条目
// 只接受可内联渲染的媒体（图片/视频/动图），文本帖和外链帖被丢弃
// 返回:
//   - model.SlideshowItem: 转换后的条目
//   - bool: 是否可用
func itemFromPost(post reddit.Post) (model.SlideshowItem, bool) {
	// 纯文本帖直接丢弃
	if post.IsSelf {
		return model.SlideshowItem{}, false
	}

	// 标题作为说明文字，超长的截断
	caption := util.TruncateString(post.Title, 300)

	// Reddit 托管视频
	if post.IsVideo {
		url := post.VideoURL
		if url == "" {
			url = post.URL
		}
		return model.SlideshowItem{URL: url, Type: model.MediaTypeVideo, Caption: caption}, true
	}

	lower := strings.ToLower(post.URL)

	// 按扩展名识别
	switch {
	case strings.HasSuffix(lower, ".gif"), strings.HasSuffix(lower, ".gifv"):
		return model.SlideshowItem{URL: post.URL, Type: model.MediaTypeGif, Caption: caption}, true
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"),
		strings.HasSuffix(lower, ".png"), strings.HasSuffix(lower, ".webp"):
		return model.SlideshowItem{URL: post.URL, Type: model.MediaTypeImage, Caption: caption}, true
	case strings.HasSuffix(lower, ".mp4"), strings.HasSuffix(lower, ".webm"):
		return model.SlideshowItem{URL: post.URL, Type: model.MediaTypeVideo, Caption: caption}, true
	}

	// 按 Reddit 的类型提示识别
	switch post.PostHint {
	case "image":
		return model.SlideshowItem{URL: post.URL, Type: model.MediaTypeImage, Caption: caption}, true
	case "hosted:video":
		url := post.VideoURL
		if url == "" {
			url = post.URL
		}
		return model.SlideshowItem{URL: url, Type: model.MediaTypeVideo, Caption: caption}, true
	}

	// 其余（外链、图集跳转页等）一律丢弃
	return model.SlideshowItem{}, false
}
