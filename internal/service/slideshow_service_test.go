package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"slideshow-server/internal/model"
	"slideshow-server/internal/reddit"
	"slideshow-server/internal/repository"
)

var testDBSeq int64

// newTestDB 创建测试用的内存数据库
// cache=shared 让同一测试内的多个连接（包括定时器 goroutine）看到同一份数据
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:slideshow_test_%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	if err := db.AutoMigrate(
		&model.User{},
		&model.Conversation{},
		&model.Participant{},
		&model.Media{},
		&model.SlideshowSession{},
	); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}

	return db
}

// recordingNotifier 记录广播事件的通知器桩
type recordingNotifier struct {
	mu      sync.Mutex
	updated []*SlideshowState
	stopped []int64
}

func (n *recordingNotifier) NotifySlideshowUpdated(conversationID int64, state *SlideshowState) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updated = append(n.updated, state)
}

func (n *recordingNotifier) NotifySlideshowStopped(conversationID, slideshowID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopped = append(n.stopped, slideshowID)
}

func (n *recordingNotifier) updatedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.updated)
}

func (n *recordingNotifier) stoppedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.stopped)
}

func (n *recordingNotifier) lastUpdated() *SlideshowState {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.updated) == 0 {
		return nil
	}
	return n.updated[len(n.updated)-1]
}

// slideshowEnv 幻灯片服务的测试环境
// userA、userB 是会话参与者（A 为创建者），userC 不是
type slideshowEnv struct {
	svc       *SlideshowService
	scheduler *AdvanceScheduler
	notifier  *recordingNotifier
	lister    *stubLister
	mediaRepo *repository.MediaRepository
	userA     int64
	userB     int64
	userC     int64
	convID    int64
}

func newSlideshowEnv(t *testing.T) *slideshowEnv {
	t.Helper()
	db := newTestDB(t)
	ctx := context.Background()

	userRepo := repository.NewUserRepository(db)
	convRepo := repository.NewConversationRepository(db)
	mediaRepo := repository.NewMediaRepository(db)
	slideshowRepo := repository.NewSlideshowRepository(db)

	users := make([]*model.User, 3)
	for i, name := range []string{"alice", "bob", "carol"} {
		users[i] = &model.User{Username: name, PasswordHash: "x", Status: 1}
		if err := userRepo.Create(ctx, users[i]); err != nil {
			t.Fatalf("failed to create user: %v", err)
		}
	}

	conv := &model.Conversation{CreatorID: users[0].ID}
	if err := convRepo.Create(ctx, conv, []int64{users[0].ID, users[1].ID}); err != nil {
		t.Fatalf("failed to create conversation: %v", err)
	}

	lister := &stubLister{pages: map[string]*reddit.ListingPage{}}
	source := NewSourceService(mediaRepo, lister)
	scheduler := NewAdvanceScheduler()
	svc := NewSlideshowService(slideshowRepo, convRepo, source, nil, scheduler)
	notifier := &recordingNotifier{}
	svc.SetNotifier(notifier)

	return &slideshowEnv{
		svc:       svc,
		scheduler: scheduler,
		notifier:  notifier,
		lister:    lister,
		mediaRepo: mediaRepo,
		userA:     users[0].ID,
		userB:     users[1].ID,
		userC:     users[2].ID,
		convID:    conv.ID,
	}
}

// seedMedia 在测试会话中登记 n 条图片媒体
func (e *slideshowEnv) seedMedia(t *testing.T, n int) []int64 {
	t.Helper()
	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		m := &model.Media{
			ConversationID: e.convID,
			UploaderID:     e.userA,
			URL:            fmt.Sprintf("https://cdn.example.com/%d.jpg", i),
			Type:           model.MediaTypeImage,
		}
		if err := e.mediaRepo.Create(context.Background(), m); err != nil {
			t.Fatalf("failed to seed media: %v", err)
		}
		ids[i] = m.ID
	}
	return ids
}

// startPersonal 以 personal 来源开始一个放映
func (e *slideshowEnv) startPersonal(t *testing.T, n int) *SlideshowState {
	t.Helper()
	state, err := e.svc.Start(context.Background(), e.userA, &StartSlideshowRequest{
		ConversationID: e.convID,
		SourceType:     model.SourceTypePersonal,
		MediaIDs:       e.seedMedia(t, n),
	})
	if err != nil {
		t.Fatalf("failed to start slideshow: %v", err)
	}
	return state
}

// redditPage 生成一页指定数量的图片帖
func redditPage(after string, prefix string, n int) *reddit.ListingPage {
	page := &reddit.ListingPage{After: after}
	for i := 0; i < n; i++ {
		page.Posts = append(page.Posts, reddit.Post{
			ID:    fmt.Sprintf("%s%d", prefix, i),
			Title: fmt.Sprintf("%s %d", prefix, i),
			URL:   fmt.Sprintf("https://i.redd.it/%s%d.jpg", prefix, i),
		})
	}
	return page
}

func TestStartPersonalSlideshow(t *testing.T) {
	env := newSlideshowEnv(t)

	state := env.startPersonal(t, 3)

	if state.SourceType != model.SourceTypePersonal {
		t.Fatalf("unexpected source type: %s", state.SourceType)
	}
	if len(state.Items) != 3 || state.CurrentIndex != 0 {
		t.Fatalf("unexpected initial state: %+v", state)
	}
	if state.ControllerUserID != env.userA {
		t.Fatalf("starter should be initial controller")
	}
	if state.Version != 0 {
		t.Fatalf("initial version should be 0, got %d", state.Version)
	}
	if !state.AtStart || state.AtEnd {
		t.Fatalf("unexpected boundary flags: %+v", state)
	}
	if env.notifier.updatedCount() != 1 {
		t.Fatalf("start should broadcast one snapshot, got %d", env.notifier.updatedCount())
	}
}

func TestStartRejectsSecondActive(t *testing.T) {
	env := newSlideshowEnv(t)

	env.startPersonal(t, 2)

	_, err := env.svc.Start(context.Background(), env.userB, &StartSlideshowRequest{
		ConversationID: env.convID,
		SourceType:     model.SourceTypePersonal,
		MediaIDs:       env.seedMedia(t, 2),
	})
	if !errors.Is(err, ErrSlideshowActive) {
		t.Fatalf("expected ErrSlideshowActive, got %v", err)
	}
}

func TestStartRequiresParticipant(t *testing.T) {
	env := newSlideshowEnv(t)

	_, err := env.svc.Start(context.Background(), env.userC, &StartSlideshowRequest{
		ConversationID: env.convID,
		SourceType:     model.SourceTypePersonal,
		MediaIDs:       env.seedMedia(t, 2),
	})
	if !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestStartValidatesIntervals(t *testing.T) {
	env := newSlideshowEnv(t)

	_, err := env.svc.Start(context.Background(), env.userA, &StartSlideshowRequest{
		ConversationID: env.convID,
		SourceType:     model.SourceTypePersonal,
		MediaIDs:       env.seedMedia(t, 2),
		ImageSeconds:   4, // 不在白名单中
	})
	if !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
}

func TestStartRejectsUnknownSourceType(t *testing.T) {
	env := newSlideshowEnv(t)

	_, err := env.svc.Start(context.Background(), env.userA, &StartSlideshowRequest{
		ConversationID: env.convID,
		SourceType:     "playlist",
	})
	if !errors.Is(err, ErrInvalidSourceType) {
		t.Fatalf("expected ErrInvalidSourceType, got %v", err)
	}
}

func TestNavigateSequence(t *testing.T) {
	env := newSlideshowEnv(t)
	ctx := context.Background()

	state := env.startPersonal(t, 5)
	id := state.ID

	// next next -> 2
	for i := 0; i < 2; i++ {
		var err error
		state, err = env.svc.Navigate(ctx, env.userA, id, &NavigateRequest{Direction: "next"})
		if err != nil {
			t.Fatalf("navigate next failed: %v", err)
		}
	}
	if state.CurrentIndex != 2 || state.Version != 2 {
		t.Fatalf("expected index 2 version 2, got %+v", state)
	}

	// prev -> 1
	state, err := env.svc.Navigate(ctx, env.userA, id, &NavigateRequest{Direction: "prev"})
	if err != nil {
		t.Fatalf("navigate prev failed: %v", err)
	}
	if state.CurrentIndex != 1 || state.Version != 3 {
		t.Fatalf("expected index 1 version 3, got %+v", state)
	}

	// goto 4 -> 末尾
	state, err = env.svc.Navigate(ctx, env.userA, id, &NavigateRequest{Direction: "goto", Index: 4})
	if err != nil {
		t.Fatalf("navigate goto failed: %v", err)
	}
	if state.CurrentIndex != 4 || !state.AtEnd {
		t.Fatalf("expected index 4 at end, got %+v", state)
	}

	// 末尾继续 next: 钳制空操作，版本号不变，不广播
	broadcasts := env.notifier.updatedCount()
	state, err = env.svc.Navigate(ctx, env.userA, id, &NavigateRequest{Direction: "next"})
	if err != nil {
		t.Fatalf("clamped navigate should not fail: %v", err)
	}
	if state.CurrentIndex != 4 || state.Version != 4 {
		t.Fatalf("clamp should keep state, got %+v", state)
	}
	if env.notifier.updatedCount() != broadcasts {
		t.Fatalf("clamped noop must not broadcast")
	}

	// 开头继续 prev 同理
	env.svc.Navigate(ctx, env.userA, id, &NavigateRequest{Direction: "goto", Index: 0})
	broadcasts = env.notifier.updatedCount()
	state, err = env.svc.Navigate(ctx, env.userA, id, &NavigateRequest{Direction: "prev"})
	if err != nil {
		t.Fatalf("clamped prev should not fail: %v", err)
	}
	if state.CurrentIndex != 0 || !state.AtStart {
		t.Fatalf("expected clamp at start, got %+v", state)
	}
	if env.notifier.updatedCount() != broadcasts {
		t.Fatalf("clamped noop must not broadcast")
	}

	// goto 越界也钳制
	state, err = env.svc.Navigate(ctx, env.userA, id, &NavigateRequest{Direction: "goto", Index: 99})
	if err != nil {
		t.Fatalf("goto out of range should clamp: %v", err)
	}
	if state.CurrentIndex != 4 {
		t.Fatalf("expected clamp to 4, got %d", state.CurrentIndex)
	}
}

func TestNavigateOnlyController(t *testing.T) {
	env := newSlideshowEnv(t)

	state := env.startPersonal(t, 3)

	_, err := env.svc.Navigate(context.Background(), env.userB, state.ID, &NavigateRequest{Direction: "next"})
	if !errors.Is(err, ErrNotController) {
		t.Fatalf("expected ErrNotController, got %v", err)
	}

	_, err = env.svc.Navigate(context.Background(), env.userA, state.ID, &NavigateRequest{Direction: "sideways"})
	if !errors.Is(err, ErrInvalidDirection) {
		t.Fatalf("expected ErrInvalidDirection, got %v", err)
	}
}

func TestTransferControl(t *testing.T) {
	env := newSlideshowEnv(t)
	ctx := context.Background()

	state := env.startPersonal(t, 3)
	id := state.ID

	// 非参与者不能成为控制者
	_, err := env.svc.TransferControl(ctx, env.userA, id, env.userC)
	if !errors.Is(err, ErrInvalidParticipant) {
		t.Fatalf("expected ErrInvalidParticipant, got %v", err)
	}

	// 移交给 B
	state, err = env.svc.TransferControl(ctx, env.userA, id, env.userB)
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if state.ControllerUserID != env.userB || state.Version != 1 {
		t.Fatalf("unexpected state after transfer: %+v", state)
	}

	// 原控制者失去控制权
	_, err = env.svc.Navigate(ctx, env.userA, id, &NavigateRequest{Direction: "next"})
	if !errors.Is(err, ErrNotController) {
		t.Fatalf("old controller should lose control, got %v", err)
	}

	// 新控制者可以翻页
	if _, err := env.svc.Navigate(ctx, env.userB, id, &NavigateRequest{Direction: "next"}); err != nil {
		t.Fatalf("new controller should navigate: %v", err)
	}
}

func TestAdvanceTimerMovesForward(t *testing.T) {
	env := newSlideshowEnv(t)
	ctx := context.Background()

	state, err := env.svc.Start(ctx, env.userA, &StartSlideshowRequest{
		ConversationID: env.convID,
		SourceType:     model.SourceTypePersonal,
		MediaIDs:       env.seedMedia(t, 3),
		AutoAdvance:    true,
		ImageSeconds:   30, // 足够长，真实定时器不会在测试中触发
	})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !env.scheduler.IsArmed(state.ID) {
		t.Fatalf("auto-advance slideshow should arm a timer")
	}

	// 模拟定时器到期
	env.svc.onAdvanceTimer(state.ID, 1, state.Version)

	got, err := env.svc.GetState(ctx, env.userA, state.ID)
	if err != nil {
		t.Fatalf("get state failed: %v", err)
	}
	if got.CurrentIndex != 1 || got.Version != 1 {
		t.Fatalf("timer should advance to index 1 version 1, got %+v", got)
	}
	if !env.scheduler.IsArmed(state.ID) {
		t.Fatalf("timer should rearm after advancing")
	}
}

func TestStaleTimerDiscarded(t *testing.T) {
	env := newSlideshowEnv(t)
	ctx := context.Background()

	state, err := env.svc.Start(ctx, env.userA, &StartSlideshowRequest{
		ConversationID: env.convID,
		SourceType:     model.SourceTypePersonal,
		MediaIDs:       env.seedMedia(t, 5),
		AutoAdvance:    true,
		ImageSeconds:   30,
	})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// 手动翻页抢先，版本号前进到 1
	state, err = env.svc.Navigate(ctx, env.userA, state.ID, &NavigateRequest{Direction: "next"})
	if err != nil {
		t.Fatalf("navigate failed: %v", err)
	}

	// 以布防时的旧版本号触发: 必须被丢弃，恰好前进一格而不是两格
	broadcasts := env.notifier.updatedCount()
	env.svc.onAdvanceTimer(state.ID, 1, 0)

	got, _ := env.svc.GetState(ctx, env.userA, state.ID)
	if got.CurrentIndex != 1 || got.Version != 1 {
		t.Fatalf("stale timer must be discarded, got %+v", got)
	}
	if env.notifier.updatedCount() != broadcasts {
		t.Fatalf("stale timer must not broadcast")
	}
}

func TestUpdateAutoAdvance(t *testing.T) {
	env := newSlideshowEnv(t)
	ctx := context.Background()

	state := env.startPersonal(t, 3)
	id := state.ID
	if env.scheduler.IsArmed(id) {
		t.Fatalf("auto-advance off should not arm a timer")
	}

	// 非控制者不能修改
	_, err := env.svc.UpdateAutoAdvance(ctx, env.userB, id, &UpdateAutoAdvanceRequest{Enabled: true})
	if !errors.Is(err, ErrNotController) {
		t.Fatalf("expected ErrNotController, got %v", err)
	}

	// 白名单外的间隔被拒绝
	_, err = env.svc.UpdateAutoAdvance(ctx, env.userA, id, &UpdateAutoAdvanceRequest{
		Enabled: true, AppliesTo: model.MediaTypeImage, IntervalSeconds: 7,
	})
	if !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}

	// 开启并设置图片间隔
	state, err = env.svc.UpdateAutoAdvance(ctx, env.userA, id, &UpdateAutoAdvanceRequest{
		Enabled: true, AppliesTo: model.MediaTypeImage, IntervalSeconds: 10,
	})
	if err != nil {
		t.Fatalf("update auto-advance failed: %v", err)
	}
	if !state.AutoAdvance || state.ImageSeconds != 10 || state.Version != 1 {
		t.Fatalf("unexpected state: %+v", state)
	}
	if !env.scheduler.IsArmed(id) {
		t.Fatalf("enabling auto-advance should arm a timer")
	}

	// 关闭后撤掉定时器
	state, err = env.svc.UpdateAutoAdvance(ctx, env.userA, id, &UpdateAutoAdvanceRequest{Enabled: false})
	if err != nil {
		t.Fatalf("disable auto-advance failed: %v", err)
	}
	if state.AutoAdvance || env.scheduler.IsArmed(id) {
		t.Fatalf("disabling auto-advance should cancel the timer")
	}
}

func TestVideoZeroIntervalHasNoTimer(t *testing.T) {
	env := newSlideshowEnv(t)
	ctx := context.Background()

	m := &model.Media{ConversationID: env.convID, UploaderID: env.userA, URL: "https://cdn/v.mp4", Type: model.MediaTypeVideo}
	if err := env.mediaRepo.Create(ctx, m); err != nil {
		t.Fatalf("failed to seed media: %v", err)
	}

	state, err := env.svc.Start(ctx, env.userA, &StartSlideshowRequest{
		ConversationID: env.convID,
		SourceType:     model.SourceTypePersonal,
		MediaIDs:       []int64{m.ID},
		AutoAdvance:    true,
		VideoSeconds:   0, // 播完即翻，由客户端驱动
	})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if env.scheduler.IsArmed(state.ID) {
		t.Fatalf("video with zero interval must not arm a server timer")
	}
}

func TestStopIdempotent(t *testing.T) {
	env := newSlideshowEnv(t)
	ctx := context.Background()

	state := env.startPersonal(t, 3)
	id := state.ID

	// 非参与者不能停止
	if err := env.svc.Stop(ctx, env.userC, id); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}

	// 任何参与者（不限控制者）都可以停止
	if err := env.svc.Stop(ctx, env.userB, id); err != nil {
		t.Fatalf("participant should stop slideshow: %v", err)
	}
	if env.notifier.stoppedCount() != 1 {
		t.Fatalf("expected 1 stopped event, got %d", env.notifier.stoppedCount())
	}
	if env.scheduler.IsArmed(id) {
		t.Fatalf("stop must cancel the timer")
	}

	got, err := env.svc.GetState(ctx, env.userA, id)
	if err != nil {
		t.Fatalf("get state failed: %v", err)
	}
	if got.Status != model.SlideshowStatusStopped {
		t.Fatalf("expected stopped status, got %s", got.Status)
	}

	// 重复停止: 仍然成功，并补发一次事件
	if err := env.svc.Stop(ctx, env.userA, id); err != nil {
		t.Fatalf("repeated stop should succeed: %v", err)
	}
	if env.notifier.stoppedCount() != 2 {
		t.Fatalf("repeated stop should re-emit the event, got %d", env.notifier.stoppedCount())
	}

	// 已停止的放映拒绝其他命令
	_, err = env.svc.Navigate(ctx, env.userA, id, &NavigateRequest{Direction: "next"})
	if !errors.Is(err, ErrSlideshowEnded) {
		t.Fatalf("expected ErrSlideshowEnded, got %v", err)
	}

	// 停止后可以开始新的放映
	if _, err := env.svc.Start(ctx, env.userA, &StartSlideshowRequest{
		ConversationID: env.convID,
		SourceType:     model.SourceTypePersonal,
		MediaIDs:       env.seedMedia(t, 2),
	}); err != nil {
		t.Fatalf("new slideshow after stop should start: %v", err)
	}
}

func TestChangeSort(t *testing.T) {
	env := newSlideshowEnv(t)
	ctx := context.Background()

	env.lister.mu.Lock()
	env.lister.pages[""] = redditPage("p2", "hot", 10)
	env.lister.mu.Unlock()

	state, err := env.svc.Start(ctx, env.userA, &StartSlideshowRequest{
		ConversationID: env.convID,
		SourceType:     model.SourceTypeSubreddit,
		Subreddit:      "earthporn",
	})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if state.SortOption != model.SortHot {
		t.Fatalf("default sort should be hot, got %s", state.SortOption)
	}

	// 翻到中间再切换排序
	state, err = env.svc.Navigate(ctx, env.userA, state.ID, &NavigateRequest{Direction: "goto", Index: 4})
	if err != nil {
		t.Fatalf("navigate failed: %v", err)
	}

	env.lister.mu.Lock()
	env.lister.pages[""] = redditPage("", "top", 6)
	env.lister.mu.Unlock()

	state, err = env.svc.ChangeSort(ctx, env.userA, state.ID, model.SortTop)
	if err != nil {
		t.Fatalf("change sort failed: %v", err)
	}
	if state.SortOption != model.SortTop || state.CurrentIndex != 0 {
		t.Fatalf("sort change should reset position: %+v", state)
	}
	if len(state.Items) != 6 {
		t.Fatalf("items should be re-resolved, got %d", len(state.Items))
	}
	if state.Version != 2 {
		t.Fatalf("expected version 2, got %d", state.Version)
	}
	if state.ControllerUserID != env.userA {
		t.Fatalf("controller must survive sort change")
	}

	// 非法排序
	if _, err := env.svc.ChangeSort(ctx, env.userA, state.ID, "spicy"); !errors.Is(err, ErrInvalidSortOption) {
		t.Fatalf("expected ErrInvalidSortOption, got %v", err)
	}
}

func TestChangeSortRejectsPersonalSource(t *testing.T) {
	env := newSlideshowEnv(t)

	state := env.startPersonal(t, 2)

	_, err := env.svc.ChangeSort(context.Background(), env.userA, state.ID, model.SortNew)
	if !errors.Is(err, ErrNotSubredditSource) {
		t.Fatalf("expected ErrNotSubredditSource, got %v", err)
	}
}

func TestSubredditPrefetchExtendsItems(t *testing.T) {
	env := newSlideshowEnv(t)
	ctx := context.Background()

	env.lister.mu.Lock()
	env.lister.pages[""] = redditPage("p2", "a", 20)
	env.lister.pages["p2"] = redditPage("", "b", 20)
	env.lister.mu.Unlock()

	state, err := env.svc.Start(ctx, env.userA, &StartSlideshowRequest{
		ConversationID: env.convID,
		SourceType:     model.SourceTypeSubreddit,
		Subreddit:      "earthporn",
	})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if len(state.Items) != 20 {
		t.Fatalf("expected 20 items, got %d", len(state.Items))
	}

	// 翻到距已知末尾 3 条以内，触发后台预取
	state, err = env.svc.Navigate(ctx, env.userA, state.ID, &NavigateRequest{Direction: "goto", Index: 17})
	if err != nil {
		t.Fatalf("navigate failed: %v", err)
	}

	// 等待后台追加完成
	deadline := time.Now().Add(2 * time.Second)
	var got *SlideshowState
	for time.Now().Before(deadline) {
		got, err = env.svc.GetState(ctx, env.userA, state.ID)
		if err != nil {
			t.Fatalf("get state failed: %v", err)
		}
		if len(got.Items) == 40 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(got.Items) != 40 {
		t.Fatalf("expected items to extend to 40, got %d", len(got.Items))
	}
	if got.CurrentIndex != 17 {
		t.Fatalf("extension must not move the position, got %d", got.CurrentIndex)
	}
	// 翻页 + 追加各递增一次版本号
	if got.Version != 2 {
		t.Fatalf("expected version 2 after extension, got %d", got.Version)
	}
	if got.AtEnd {
		t.Fatalf("position 17 of 40 should not be at end")
	}
}

func TestGetActiveForConversation(t *testing.T) {
	env := newSlideshowEnv(t)
	ctx := context.Background()

	// 没有放映时返回 nil
	state, err := env.svc.GetActiveForConversation(ctx, env.userA, env.convID)
	if err != nil {
		t.Fatalf("get active failed: %v", err)
	}
	if state != nil {
		t.Fatalf("expected nil state without active slideshow")
	}

	started := env.startPersonal(t, 2)

	state, err = env.svc.GetActiveForConversation(ctx, env.userB, env.convID)
	if err != nil {
		t.Fatalf("get active failed: %v", err)
	}
	if state == nil || state.ID != started.ID {
		t.Fatalf("expected active slideshow %d, got %+v", started.ID, state)
	}

	// 非参与者不可见
	if _, err := env.svc.GetActiveForConversation(ctx, env.userC, env.convID); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestVersionStrictlyIncreases(t *testing.T) {
	env := newSlideshowEnv(t)
	ctx := context.Background()

	state := env.startPersonal(t, 5)
	id := state.ID
	last := state.Version

	ops := []func() (*SlideshowState, error){
		func() (*SlideshowState, error) {
			return env.svc.Navigate(ctx, env.userA, id, &NavigateRequest{Direction: "next"})
		},
		func() (*SlideshowState, error) {
			return env.svc.UpdateAutoAdvance(ctx, env.userA, id, &UpdateAutoAdvanceRequest{Enabled: true})
		},
		func() (*SlideshowState, error) {
			return env.svc.TransferControl(ctx, env.userA, id, env.userB)
		},
		func() (*SlideshowState, error) {
			return env.svc.Navigate(ctx, env.userB, id, &NavigateRequest{Direction: "next"})
		},
	}
	for i, op := range ops {
		state, err := op()
		if err != nil {
			t.Fatalf("op %d failed: %v", i, err)
		}
		if state.Version != last+1 {
			t.Fatalf("op %d: expected version %d, got %d", i, last+1, state.Version)
		}
		last = state.Version
	}
}
