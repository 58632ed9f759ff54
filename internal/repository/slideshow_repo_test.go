package repository

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"slideshow-server/internal/model"
)

var repoTestDBSeq int64

// newTestDB 创建测试用的内存数据库
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:repo_test_%d?mode=memory&cache=shared", atomic.AddInt64(&repoTestDBSeq, 1))
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

func newTestSession(conversationID int64) *model.SlideshowSession {
	return &model.SlideshowSession{
		ConversationID:   conversationID,
		SourceType:       model.SourceTypePersonal,
		ControllerUserID: 1,
		ImageSeconds:     5,
		Status:           model.SlideshowStatusActive,
		Items: []model.SlideshowItem{
			{URL: "https://cdn/a.jpg", Type: model.MediaTypeImage, Caption: "one"},
			{URL: "https://cdn/b.mp4", Type: model.MediaTypeVideo},
		},
	}
}

func TestSlideshowCreateAndGet(t *testing.T) {
	repo := NewSlideshowRepository(newTestDB(t))
	ctx := context.Background()

	session := newTestSession(1)
	if err := repo.Create(ctx, session); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if session.ID == 0 {
		t.Fatalf("id should be assigned")
	}

	got, err := repo.GetByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil {
		t.Fatalf("session not found")
	}
	// 条目列表以 JSON 整体存储，读出后结构完整
	if len(got.Items) != 2 || got.Items[0].Caption != "one" || got.Items[1].Type != model.MediaTypeVideo {
		t.Fatalf("items not restored: %+v", got.Items)
	}
	if got.Version != 0 {
		t.Fatalf("initial version should be 0, got %d", got.Version)
	}

	// 未找到返回 nil, nil
	got, err = repo.GetByID(ctx, 9999)
	if err != nil || got != nil {
		t.Fatalf("missing id should return nil, nil; got %v, %v", got, err)
	}
}

func TestSlideshowGetActiveByConversation(t *testing.T) {
	repo := NewSlideshowRepository(newTestDB(t))
	ctx := context.Background()

	// 没有放映
	got, err := repo.GetActiveByConversationID(ctx, 1)
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil; got %v, %v", got, err)
	}

	stopped := newTestSession(1)
	stopped.Status = model.SlideshowStatusStopped
	if err := repo.Create(ctx, stopped); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	active := newTestSession(1)
	if err := repo.Create(ctx, active); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	other := newTestSession(2)
	if err := repo.Create(ctx, other); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err = repo.GetActiveByConversationID(ctx, 1)
	if err != nil {
		t.Fatalf("get active failed: %v", err)
	}
	if got == nil || got.ID != active.ID {
		t.Fatalf("expected active session %d, got %+v", active.ID, got)
	}
}

func TestSlideshowSaveAndStop(t *testing.T) {
	repo := NewSlideshowRepository(newTestDB(t))
	ctx := context.Background()

	session := newTestSession(1)
	if err := repo.Create(ctx, session); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	session.CurrentIndex = 1
	session.Version = 1
	if err := repo.Save(ctx, session); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, _ := repo.GetByID(ctx, session.ID)
	if got.CurrentIndex != 1 || got.Version != 1 {
		t.Fatalf("save not persisted: %+v", got)
	}

	if err := repo.Stop(ctx, session.ID, 2); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	got, _ = repo.GetByID(ctx, session.ID)
	if got.Status != model.SlideshowStatusStopped {
		t.Fatalf("expected stopped status, got %s", got.Status)
	}
	if got.StoppedAt == nil {
		t.Fatalf("stopped_at should be set")
	}
	if got.Version != 2 {
		t.Fatalf("expected version 2, got %d", got.Version)
	}
}

func TestSlideshowHistoryPagination(t *testing.T) {
	repo := NewSlideshowRepository(newTestDB(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		s := newTestSession(1)
		s.Status = model.SlideshowStatusStopped
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	list, total, err := repo.GetByConversationID(ctx, 1, 1, 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 5 {
		t.Fatalf("expected total 5, got %d", total)
	}
	if len(list) != 2 {
		t.Fatalf("expected page of 2, got %d", len(list))
	}

	list, _, err = repo.GetByConversationID(ctx, 1, 3, 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected last page of 1, got %d", len(list))
	}
}

func TestConversationParticipants(t *testing.T) {
	db := newTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()

	conv := &model.Conversation{CreatorID: 1}
	if err := repo.Create(ctx, conv, []int64{1, 2}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	ids, err := repo.GetParticipantIDs(ctx, conv.ID)
	if err != nil {
		t.Fatalf("get participants failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(ids))
	}

	ok, err := repo.IsParticipant(ctx, conv.ID, 1)
	if err != nil || !ok {
		t.Fatalf("user 1 should be participant")
	}
	ok, _ = repo.IsParticipant(ctx, conv.ID, 3)
	if ok {
		t.Fatalf("user 3 should not be participant")
	}

	if err := repo.AddParticipant(ctx, conv.ID, 3); err != nil {
		t.Fatalf("add participant failed: %v", err)
	}
	ok, _ = repo.IsParticipant(ctx, conv.ID, 3)
	if !ok {
		t.Fatalf("user 3 should be participant after add")
	}

	// 同一用户重复加入触发唯一索引冲突
	if err := repo.AddParticipant(ctx, conv.ID, 3); err == nil {
		t.Fatalf("duplicate participant should fail")
	}
}
