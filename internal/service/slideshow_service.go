// Package service 提供业务逻辑层的实现
package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"slideshow-server/internal/cache"
	"slideshow-server/internal/model"
	"slideshow-server/internal/repository"
)

// 幻灯片服务相关错误
var (
	ErrSlideshowNotFound  = errors.New("幻灯片不存在")
	ErrSlideshowActive    = errors.New("该会话已有放映中的幻灯片")
	ErrSlideshowEnded     = errors.New("幻灯片已停止")
	ErrNotController      = errors.New("只有当前控制者可以执行此操作")
	ErrInvalidParticipant = errors.New("移交目标不是该会话的参与者")
	ErrInvalidDirection   = errors.New("无效的翻页方向")
	ErrInvalidSourceType  = errors.New("无效的来源类型")
	ErrInvalidSortOption  = errors.New("无效的排序方式")
	ErrInvalidInterval    = errors.New("无效的自动播放间隔")
	ErrNotSubredditSource = errors.New("只有 subreddit 来源支持切换排序")
)

// 距已知末尾还剩多少条时触发下一页预取
const prefetchThreshold = 3

// SlideshowNotifier 幻灯片事件通知接口
// 由 WebSocket Hub 实现；变更在会话锁内同步调用，
// 保证同一放映的事件按版本号顺序送达
type SlideshowNotifier interface {
	// NotifySlideshowUpdated 状态变更（含自动播放触发的翻页），携带完整快照
	NotifySlideshowUpdated(conversationID int64, state *SlideshowState)
	// NotifySlideshowStopped 放映停止
	NotifySlideshowStopped(conversationID, slideshowID int64)
}

// SlideshowState 幻灯片状态快照
// 所有变更操作都返回变更后的完整快照（从不返回增量），
// 客户端无论错过多少事件，收到一个快照即可完全对齐
type SlideshowState struct {
	ID               int64                 `json:"id"`
	ConversationID   int64                 `json:"conversation_id"`
	SourceType       string                `json:"source_type"`
	Subreddit        string                `json:"subreddit,omitempty"`
	SortOption       string                `json:"sort_option,omitempty"`
	Items            []model.SlideshowItem `json:"items"`
	CurrentIndex     int                   `json:"current_index"`
	ControllerUserID int64                 `json:"controller_user_id"`
	AutoAdvance      bool                  `json:"auto_advance"`
	ImageSeconds     int                   `json:"image_seconds"`
	VideoSeconds     int                   `json:"video_seconds"`
	Status           string                `json:"status"`
	Version          int64                 `json:"version"`
	AtStart          bool                  `json:"at_start"` // 已在第一条，客户端应禁用"上一张"
	AtEnd            bool                  `json:"at_end"`   // 已在已知的最后一条，客户端应禁用"下一张"
	CreatedAt        string                `json:"created_at"`
}

// keyedMutex 按 ID 分配的互斥锁
// 锁对象按需创建后不回收，数量以放映/会话数为上界
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int64]*sync.Mutex)}
}

// get 获取指定 ID 对应的锁
func (k *keyedMutex) get(id int64) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, exists := k.locks[id]
	if !exists {
		l = &sync.Mutex{}
		k.locks[id] = l
	}
	return l
}

// SlideshowService 幻灯片服务
// 同步放映的状态机: 校验并执行 start / navigate / transfer /
// auto-advance / change-sort / stop，维护单控制者与单放映不变式
//
// 并发模型: 所有变更操作持有对应放映的会话级锁，临界区覆盖
// 校验 → 写库 → 重置定时器 → 同步广播，不同放映完全并行
type SlideshowService struct {
	slideshowRepo    *repository.SlideshowRepository    // 幻灯片数据访问层
	conversationRepo *repository.ConversationRepository // 会话数据访问层
	source           *SourceService                     // 媒体来源适配器
	cache            *cache.RedisCache                  // Redis 缓存，可以为 nil（测试环境）
	scheduler        *AdvanceScheduler                  // 自动播放调度器
	notifier         SlideshowNotifier                  // 事件通知器

	sessionLocks *keyedMutex // 放映级锁
	convLocks    *keyedMutex // 会话级锁，仅用于 start 时的唯一性检查
}

// NewSlideshowService 创建 SlideshowService 实例
// 调度器的触发回调在这里接回本服务
func NewSlideshowService(
	slideshowRepo *repository.SlideshowRepository,
	conversationRepo *repository.ConversationRepository,
	source *SourceService,
	redisCache *cache.RedisCache,
	scheduler *AdvanceScheduler,
) *SlideshowService {
	s := &SlideshowService{
		slideshowRepo:    slideshowRepo,
		conversationRepo: conversationRepo,
		source:           source,
		cache:            redisCache,
		scheduler:        scheduler,
		sessionLocks:     newKeyedMutex(),
		convLocks:        newKeyedMutex(),
	}
	scheduler.SetHandler(s.onAdvanceTimer)
	return s
}

// SetNotifier 设置事件通知器
func (s *SlideshowService) SetNotifier(n SlideshowNotifier) {
	s.notifier = n
}

// StartSlideshowRequest 开始放映请求
type StartSlideshowRequest struct {
	ConversationID int64   `json:"conversation_id" binding:"required"` // 会话ID
	SourceType     string  `json:"source_type" binding:"required"`     // personal / subreddit
	MediaIDs       []int64 `json:"media_ids"`                          // personal: 媒体ID列表，顺序即放映顺序
	Subreddit      string  `json:"subreddit"`                          // subreddit: 名称
	SortOption     string  `json:"sort_option"`                        // subreddit: 排序方式，默认 hot
	AutoAdvance    bool    `json:"auto_advance"`                       // 是否开启自动播放
	ImageSeconds   int     `json:"image_seconds"`                      // 图片间隔，0 使用默认值
	VideoSeconds   int     `json:"video_seconds"`                      // 视频翻页延迟
}

// Start 开始放映
// 同一会话同时只能有一个放映，冲突返回 ErrSlideshowActive 而不是顶替
// 参数:
//   - ctx: 上下文
//   - userID: 发起者用户ID，成为初始控制者
//   - req: 开始放映请求
//
// 返回:
//   - *SlideshowState: 放映初始状态快照
//   - error: 业务错误
func (s *SlideshowService) Start(ctx context.Context, userID int64, req *StartSlideshowRequest) (*SlideshowState, error) {
	// 1. 校验发起者是会话参与者
	if err := s.requireParticipant(ctx, req.ConversationID, userID); err != nil {
		return nil, err
	}

	// 2. 校验来源参数并填默认值
	session := &model.SlideshowSession{
		ConversationID:   req.ConversationID,
		SourceType:       req.SourceType,
		ControllerUserID: userID,
		AutoAdvance:      req.AutoAdvance,
		ImageSeconds:     req.ImageSeconds,
		VideoSeconds:     req.VideoSeconds,
		Status:           model.SlideshowStatusActive,
	}
	if session.ImageSeconds == 0 {
		session.ImageSeconds = 5
	}
	if !model.IsValidImageInterval(session.ImageSeconds) || !model.IsValidVideoInterval(session.VideoSeconds) {
		return nil, ErrInvalidInterval
	}

	// 3. 解析条目列表
	switch req.SourceType {
	case model.SourceTypePersonal:
		items, err := s.source.ResolvePersonal(ctx, req.ConversationID, req.MediaIDs)
		if err != nil {
			return nil, err
		}
		session.Items = items

	case model.SourceTypeSubreddit:
		sort := req.SortOption
		if sort == "" {
			sort = model.SortHot
		}
		if !model.IsValidSortOption(sort) {
			return nil, ErrInvalidSortOption
		}
		items, cursor, err := s.source.ResolveSubreddit(ctx, req.Subreddit, sort, "")
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, ErrEmptySource
		}
		session.Subreddit = req.Subreddit
		session.SortOption = sort
		session.Items = items
		session.NextCursor = cursor

	default:
		return nil, ErrInvalidSourceType
	}

	// 4. 会话级锁内检查唯一性并创建
	// 没有这把锁，两个参与者同时 start 会各自通过检查、创建出两个放映
	convLock := s.convLocks.get(req.ConversationID)
	convLock.Lock()
	defer convLock.Unlock()

	existing, err := s.slideshowRepo.GetActiveByConversationID(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrSlideshowActive
	}

	if err := s.slideshowRepo.Create(ctx, session); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetActiveSlideshow(ctx, req.ConversationID, session.ID); err != nil {
			log.Printf("Failed to cache active slideshow: %v", err)
		}
	}

	// 5. 布防定时器并广播初始状态
	s.rearmLocked(session)

	state := s.toState(session)
	if s.notifier != nil {
		s.notifier.NotifySlideshowUpdated(session.ConversationID, state)
	}

	return state, nil
}

// NavigateRequest 翻页请求
type NavigateRequest struct {
	Direction string `json:"direction" binding:"required"` // next / prev / goto
	Index     int    `json:"index"`                        // goto 的目标位置
}

// Navigate 翻页
// 只有当前控制者可以翻页；越界不报错，返回原状态并带上边界标记，
// 版本号不变，也不广播（没有实际变更）
// 参数:
//   - ctx: 上下文
//   - userID: 请求者用户ID
//   - slideshowID: 幻灯片会话ID
//   - req: 翻页请求
//
// 返回:
//   - *SlideshowState: 变更后（或未变更）的状态快照
//   - error: 业务错误
func (s *SlideshowService) Navigate(ctx context.Context, userID, slideshowID int64, req *NavigateRequest) (*SlideshowState, error) {
	lock := s.sessionLocks.get(slideshowID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.loadActiveLocked(ctx, slideshowID)
	if err != nil {
		return nil, err
	}
	if session.ControllerUserID != userID {
		return nil, ErrNotController
	}

	// 计算目标位置，越界钳制到边界
	target := session.CurrentIndex
	switch req.Direction {
	case "next":
		target++
	case "prev":
		target--
	case "goto":
		target = req.Index
	default:
		return nil, ErrInvalidDirection
	}
	if target < 0 {
		target = 0
	}
	if max := len(session.Items) - 1; target > max {
		target = max
	}

	// 钳制后位置不变: 边界空操作，不递增版本号，不广播
	if target == session.CurrentIndex {
		return s.toState(session), nil
	}

	session.CurrentIndex = target
	session.Version++
	if err := s.slideshowRepo.Save(ctx, session); err != nil {
		return nil, err
	}

	s.rearmLocked(session)

	state := s.toState(session)
	if s.notifier != nil {
		s.notifier.NotifySlideshowUpdated(session.ConversationID, state)
	}

	s.maybePrefetchLocked(session)

	return state, nil
}

// TransferControl 移交控制权
// 只有当前控制者可以移交，目标必须是会话参与者
// 自动播放配置和在途定时器都保持不变
// 参数:
//   - ctx: 上下文
//   - userID: 请求者用户ID
//   - slideshowID: 幻灯片会话ID
//   - newController: 新控制者用户ID
//
// 返回:
//   - *SlideshowState: 变更后的状态快照
//   - error: 业务错误
func (s *SlideshowService) TransferControl(ctx context.Context, userID, slideshowID, newController int64) (*SlideshowState, error) {
	lock := s.sessionLocks.get(slideshowID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.loadActiveLocked(ctx, slideshowID)
	if err != nil {
		return nil, err
	}
	if session.ControllerUserID != userID {
		return nil, ErrNotController
	}

	isParticipant, err := s.conversationRepo.IsParticipant(ctx, session.ConversationID, newController)
	if err != nil {
		return nil, err
	}
	if !isParticipant {
		return nil, ErrInvalidParticipant
	}

	session.ControllerUserID = newController
	session.Version++
	if err := s.slideshowRepo.Save(ctx, session); err != nil {
		return nil, err
	}

	state := s.toState(session)
	if s.notifier != nil {
		s.notifier.NotifySlideshowUpdated(session.ConversationID, state)
	}

	return state, nil
}

// UpdateAutoAdvanceRequest 自动播放设置请求
type UpdateAutoAdvanceRequest struct {
	Enabled         bool   `json:"enabled"`          // 是否开启
	AppliesTo       string `json:"applies_to"`       // image / video，为空则不改间隔
	IntervalSeconds int    `json:"interval_seconds"` // 新间隔（秒）
}

// UpdateAutoAdvance 更新自动播放设置
// 只有当前控制者可以修改；开启时立即用新间隔重新布防，关闭时撤掉定时器
// 参数:
//   - ctx: 上下文
//   - userID: 请求者用户ID
//   - slideshowID: 幻灯片会话ID
//   - req: 设置请求
//
// 返回:
//   - *SlideshowState: 变更后的状态快照
//   - error: 业务错误
func (s *SlideshowService) UpdateAutoAdvance(ctx context.Context, userID, slideshowID int64, req *UpdateAutoAdvanceRequest) (*SlideshowState, error) {
	lock := s.sessionLocks.get(slideshowID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.loadActiveLocked(ctx, slideshowID)
	if err != nil {
		return nil, err
	}
	if session.ControllerUserID != userID {
		return nil, ErrNotController
	}

	switch req.AppliesTo {
	case "":
		// 只改开关
	case model.MediaTypeImage:
		if !model.IsValidImageInterval(req.IntervalSeconds) {
			return nil, ErrInvalidInterval
		}
		session.ImageSeconds = req.IntervalSeconds
	case model.MediaTypeVideo:
		if !model.IsValidVideoInterval(req.IntervalSeconds) {
			return nil, ErrInvalidInterval
		}
		session.VideoSeconds = req.IntervalSeconds
	default:
		return nil, ErrInvalidInterval
	}
	session.AutoAdvance = req.Enabled

	session.Version++
	if err := s.slideshowRepo.Save(ctx, session); err != nil {
		return nil, err
	}

	s.rearmLocked(session)

	state := s.toState(session)
	if s.notifier != nil {
		s.notifier.NotifySlideshowUpdated(session.ConversationID, state)
	}

	return state, nil
}

// ChangeSort 切换 subreddit 排序方式
// 只有当前控制者可以切换；条目列表按新排序重新解析，
// 位置重置到 0，控制者和自动播放配置保持不变
// 解析失败时放映状态不受影响
// 参数:
//   - ctx: 上下文
//   - userID: 请求者用户ID
//   - slideshowID: 幻灯片会话ID
//   - sortOption: 新排序方式
//
// 返回:
//   - *SlideshowState: 变更后的状态快照
//   - error: 业务错误
func (s *SlideshowService) ChangeSort(ctx context.Context, userID, slideshowID int64, sortOption string) (*SlideshowState, error) {
	lock := s.sessionLocks.get(slideshowID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.loadActiveLocked(ctx, slideshowID)
	if err != nil {
		return nil, err
	}
	if session.ControllerUserID != userID {
		return nil, ErrNotController
	}
	if session.SourceType != model.SourceTypeSubreddit {
		return nil, ErrNotSubredditSource
	}
	if !model.IsValidSortOption(sortOption) {
		return nil, ErrInvalidSortOption
	}

	// 先解析再落库，解析失败时现有状态原封不动
	items, cursor, err := s.source.ResolveSubreddit(ctx, session.Subreddit, sortOption, "")
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptySource
	}

	session.SortOption = sortOption
	session.Items = items
	session.NextCursor = cursor
	session.CurrentIndex = 0
	session.Version++
	if err := s.slideshowRepo.Save(ctx, session); err != nil {
		return nil, err
	}

	s.rearmLocked(session)

	state := s.toState(session)
	if s.notifier != nil {
		s.notifier.NotifySlideshowUpdated(session.ConversationID, state)
	}

	return state, nil
}

// Stop 停止放映
// 任何参与者都可以停止（不限控制者），幂等:
// 对已停止的放映再次调用仍然成功，并重新广播 stopped 事件，
// 防止此前的事件丢失导致部分客户端停留在放映界面
// 参数:
//   - ctx: 上下文
//   - userID: 请求者用户ID
//   - slideshowID: 幻灯片会话ID
//
// 返回:
//   - error: 业务错误
func (s *SlideshowService) Stop(ctx context.Context, userID, slideshowID int64) error {
	lock := s.sessionLocks.get(slideshowID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.slideshowRepo.GetByID(ctx, slideshowID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSlideshowNotFound
	}

	if err := s.requireParticipant(ctx, session.ConversationID, userID); err != nil {
		return err
	}

	if session.Status == model.SlideshowStatusStopped {
		// 已停止: 成功返回并补发一次事件
		if s.notifier != nil {
			s.notifier.NotifySlideshowStopped(session.ConversationID, session.ID)
		}
		return nil
	}

	session.Version++
	if err := s.slideshowRepo.Stop(ctx, session.ID, session.Version); err != nil {
		return err
	}

	// 无条件撤掉定时器，这里是防止定时器泄漏的唯一出口
	s.scheduler.Cancel(session.ID)

	if s.cache != nil {
		if err := s.cache.ClearActiveSlideshow(ctx, session.ConversationID); err != nil {
			log.Printf("Failed to clear active slideshow cache: %v", err)
		}
	}

	if s.notifier != nil {
		s.notifier.NotifySlideshowStopped(session.ConversationID, session.ID)
	}

	return nil
}

// GetState 获取放映状态快照
// 客户端重连后用它对账，不需要事件回放
// 参数:
//   - ctx: 上下文
//   - userID: 请求者用户ID
//   - slideshowID: 幻灯片会话ID
//
// 返回:
//   - *SlideshowState: 状态快照
//   - error: 业务错误
func (s *SlideshowService) GetState(ctx context.Context, userID, slideshowID int64) (*SlideshowState, error) {
	session, err := s.slideshowRepo.GetByID(ctx, slideshowID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSlideshowNotFound
	}
	if err := s.requireParticipant(ctx, session.ConversationID, userID); err != nil {
		return nil, err
	}
	return s.toState(session), nil
}

// GetActiveForConversation 获取会话当前放映中的幻灯片
// 优先查 Redis 指针，未命中回退数据库
// 参数:
//   - ctx: 上下文
//   - userID: 请求者用户ID
//   - conversationID: 会话ID
//
// 返回:
//   - *SlideshowState: 状态快照，没有放映中的返回 nil
//   - error: 业务错误
func (s *SlideshowService) GetActiveForConversation(ctx context.Context, userID, conversationID int64) (*SlideshowState, error) {
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	var session *model.SlideshowSession
	if s.cache != nil {
		slideshowID, err := s.cache.GetActiveSlideshow(ctx, conversationID)
		if err != nil {
			log.Printf("Failed to read active slideshow cache: %v", err)
		}
		if slideshowID > 0 {
			session, err = s.slideshowRepo.GetByID(ctx, slideshowID)
			if err != nil {
				return nil, err
			}
			if session != nil && session.Status != model.SlideshowStatusActive {
				session = nil
			}
		}
	}
	if session == nil {
		var err error
		session, err = s.slideshowRepo.GetActiveByConversationID(ctx, conversationID)
		if err != nil {
			return nil, err
		}
	}
	if session == nil {
		return nil, nil
	}
	return s.toState(session), nil
}

// ListHistory 分页获取会话的历史放映记录
// 参数:
//   - ctx: 上下文
//   - userID: 请求者用户ID
//   - conversationID: 会话ID
//   - page: 页码，从 1 开始
//   - pageSize: 每页数量
//
// 返回:
//   - []SlideshowState: 放映记录列表
//   - int64: 总数量
//   - error: 业务错误
func (s *SlideshowService) ListHistory(ctx context.Context, userID, conversationID int64, page, pageSize int) ([]SlideshowState, int64, error) {
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return nil, 0, err
	}

	sessions, total, err := s.slideshowRepo.GetByConversationID(ctx, conversationID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	result := make([]SlideshowState, len(sessions))
	for i := range sessions {
		result[i] = *s.toState(&sessions[i])
	}
	return result, total, nil
}

// onAdvanceTimer 自动播放定时器触发回调
// 在会话锁内重新校验版本号: 如果手动翻页抢先了哪怕一次，
// 版本号就对不上，本次触发被当作空操作丢弃
func (s *SlideshowService) onAdvanceTimer(slideshowID, generation, version int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	lock := s.sessionLocks.get(slideshowID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.slideshowRepo.GetByID(ctx, slideshowID)
	if err != nil {
		log.Printf("Advance timer: failed to load slideshow %d: %v", slideshowID, err)
		return
	}
	if session == nil || session.Status != model.SlideshowStatusActive || !session.AutoAdvance {
		return
	}
	// 版本号不匹配说明布防之后发生过别的变更，定时器已经过期
	if session.Version != version {
		return
	}

	target := session.CurrentIndex + 1
	if target >= len(session.Items) {
		// 已到已知末尾: 有游标就去取下一页（追加成功后会重新布防），没有就停在这
		s.maybePrefetchLocked(session)
		return
	}

	session.CurrentIndex = target
	session.Version++
	if err := s.slideshowRepo.Save(ctx, session); err != nil {
		log.Printf("Advance timer: failed to save slideshow %d: %v", slideshowID, err)
		return
	}

	s.rearmLocked(session)

	if s.notifier != nil {
		s.notifier.NotifySlideshowUpdated(session.ConversationID, s.toState(session))
	}

	s.maybePrefetchLocked(session)
}

// rearmLocked 按当前状态重新布防或撤掉定时器
// 必须在会话锁内调用
func (s *SlideshowService) rearmLocked(session *model.SlideshowSession) {
	interval := s.advanceInterval(session)
	if interval <= 0 {
		s.scheduler.Cancel(session.ID)
		return
	}
	s.scheduler.Arm(session.ID, interval, session.Version)
}

// advanceInterval 计算当前条目的自动播放延迟
// 返回 0 表示不需要定时器:
// 自动播放关闭、视频间隔为 0（播完即翻，由客户端驱动）、或已到末尾且没有更多页
func (s *SlideshowService) advanceInterval(session *model.SlideshowSession) time.Duration {
	if !session.AutoAdvance || session.Status != model.SlideshowStatusActive {
		return 0
	}
	if session.CurrentIndex >= len(session.Items)-1 && session.NextCursor == "" {
		return 0
	}

	item := session.CurrentItem()
	if item == nil {
		return 0
	}
	secs := session.ImageSeconds
	if item.Type == model.MediaTypeVideo {
		secs = session.VideoSeconds
	}
	return time.Duration(secs) * time.Second
}

// maybePrefetchLocked 接近已知末尾时在后台预取下一页
// 必须在会话锁内调用；实际追加在单独的 goroutine 中重新拿锁执行
func (s *SlideshowService) maybePrefetchLocked(session *model.SlideshowSession) {
	if session.SourceType != model.SourceTypeSubreddit || session.NextCursor == "" {
		return
	}
	if len(session.Items)-1-session.CurrentIndex > prefetchThreshold {
		return
	}
	go s.extendItems(session.ID)
}

// extendItems 抓取下一页并追加到条目列表
// 追加是一次正常的状态变更: 版本号递增并广播快照，
// current_index 保持不动，客户端只会看到列表变长
func (s *SlideshowService) extendItems(slideshowID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	lock := s.sessionLocks.get(slideshowID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.slideshowRepo.GetByID(ctx, slideshowID)
	if err != nil {
		log.Printf("Prefetch: failed to load slideshow %d: %v", slideshowID, err)
		return
	}
	if session == nil || session.Status != model.SlideshowStatusActive || session.NextCursor == "" {
		return
	}

	items, cursor, err := s.source.ResolveSubreddit(ctx, session.Subreddit, session.SortOption, session.NextCursor)
	if err != nil {
		// 预取失败不影响放映，下次接近末尾时会再试
		log.Printf("Prefetch: failed to resolve subreddit for slideshow %d: %v", slideshowID, err)
		return
	}

	session.NextCursor = cursor
	if len(items) == 0 {
		// 没有新条目，只记下游标推进，不算状态变更
		if err := s.slideshowRepo.Save(ctx, session); err != nil {
			log.Printf("Prefetch: failed to save slideshow %d: %v", slideshowID, err)
		}
		return
	}

	session.Items = append(session.Items, items...)
	session.Version++
	if err := s.slideshowRepo.Save(ctx, session); err != nil {
		log.Printf("Prefetch: failed to save slideshow %d: %v", slideshowID, err)
		return
	}

	// 之前可能因为到了末尾没有布防，追加后重新布防
	s.rearmLocked(session)

	if s.notifier != nil {
		s.notifier.NotifySlideshowUpdated(session.ConversationID, s.toState(session))
	}
}

// loadActiveLocked 加载放映中的幻灯片
// 必须在会话锁内调用
func (s *SlideshowService) loadActiveLocked(ctx context.Context, slideshowID int64) (*model.SlideshowSession, error) {
	session, err := s.slideshowRepo.GetByID(ctx, slideshowID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSlideshowNotFound
	}
	if session.Status != model.SlideshowStatusActive {
		return nil, ErrSlideshowEnded
	}
	return session, nil
}

// requireParticipant 校验用户是会话参与者
func (s *SlideshowService) requireParticipant(ctx context.Context, conversationID, userID int64) error {
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
	return nil
}

// toState 将幻灯片模型转换为状态快照
func (s *SlideshowService) toState(session *model.SlideshowSession) *SlideshowState {
	return &SlideshowState{
		ID:               session.ID,
		ConversationID:   session.ConversationID,
		SourceType:       session.SourceType,
		Subreddit:        session.Subreddit,
		SortOption:       session.SortOption,
		Items:            session.Items,
		CurrentIndex:     session.CurrentIndex,
		ControllerUserID: session.ControllerUserID,
		AutoAdvance:      session.AutoAdvance,
		ImageSeconds:     session.ImageSeconds,
		VideoSeconds:     session.VideoSeconds,
		Status:           session.Status,
		Version:          session.Version,
		AtStart:          session.CurrentIndex == 0,
		AtEnd:            session.CurrentIndex >= len(session.Items)-1,
		CreatedAt:        session.CreatedAt.Format(time.RFC3339),
	}
}
