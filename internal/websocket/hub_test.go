package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"slideshow-server/internal/model"
	"slideshow-server/internal/repository"
	"slideshow-server/internal/service"
)

var hubTestDBSeq int64

// newTestHub 创建带内存数据库的测试 Hub
// 返回 Hub 和预置的会话ID，参与者为用户 1 和 2
func newTestHub(t *testing.T) (*Hub, int64) {
	t.Helper()

	dsn := fmt.Sprintf("file:hub_test_%d?mode=memory&cache=shared", atomic.AddInt64(&hubTestDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.AutoMigrate(&model.Conversation{}, &model.Participant{}); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}

	convRepo := repository.NewConversationRepository(db)
	conv := &model.Conversation{CreatorID: 1}
	if err := convRepo.Create(context.Background(), conv, []int64{1, 2}); err != nil {
		t.Fatalf("failed to create conversation: %v", err)
	}

	hub := NewHub(nil, convRepo, nil)
	go hub.Run()
	return hub, conv.ID
}

// newCommandHub 创建接上真实幻灯片服务的测试 Hub
// 会话参与者为用户 1 和 2
func newCommandHub(t *testing.T) (*Hub, int64, *repository.MediaRepository) {
	t.Helper()

	dsn := fmt.Sprintf("file:hub_cmd_test_%d?mode=memory&cache=shared", atomic.AddInt64(&hubTestDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&model.Conversation{},
		&model.Participant{},
		&model.Media{},
		&model.SlideshowSession{},
	); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}

	convRepo := repository.NewConversationRepository(db)
	conv := &model.Conversation{CreatorID: 1}
	if err := convRepo.Create(context.Background(), conv, []int64{1, 2}); err != nil {
		t.Fatalf("failed to create conversation: %v", err)
	}

	mediaRepo := repository.NewMediaRepository(db)
	slideshowRepo := repository.NewSlideshowRepository(db)
	source := service.NewSourceService(mediaRepo, nil)
	svc := service.NewSlideshowService(slideshowRepo, convRepo, source, nil, service.NewAdvanceScheduler())

	hub := NewHub(svc, convRepo, nil)
	svc.SetNotifier(hub)
	go hub.Run()
	return hub, conv.ID, mediaRepo
}

// seedHubMedia 在测试会话中登记 n 条图片媒体
func seedHubMedia(t *testing.T, mediaRepo *repository.MediaRepository, convID int64, n int) []int64 {
	t.Helper()
	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		m := &model.Media{
			ConversationID: convID,
			UploaderID:     1,
			URL:            fmt.Sprintf("https://cdn.example.com/%d.jpg", i),
			Type:           model.MediaTypeImage,
		}
		if err := mediaRepo.Create(context.Background(), m); err != nil {
			t.Fatalf("failed to seed media: %v", err)
		}
		ids[i] = m.ID
	}
	return ids
}

// registerAndWait 注册客户端并等待注册完成
func registerAndWait(t *testing.T, hub *Hub, client *Client) {
	t.Helper()
	hub.Register(client)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		hub.mu.RLock()
		exists := false
		for _, c := range hub.clients[client.userID] {
			if c == client {
				exists = true
				break
			}
		}
		hub.mu.RUnlock()
		if exists {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("client was not registered in time")
}

// readMessage 从客户端发送通道读出一条消息
func readMessage(t *testing.T, client *Client) *Message {
	t.Helper()
	select {
	case raw := <-client.send:
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("failed to parse message: %v", err)
		}
		return &msg
	case <-time.After(time.Second):
		t.Fatalf("no message received")
		return nil
	}
}

func TestHubBroadcastToParticipants(t *testing.T) {
	hub, convID := newTestHub(t)

	alice := NewClient(hub, nil, 1)
	bob := NewClient(hub, nil, 2)
	carol := NewClient(hub, nil, 3) // 不是参与者
	registerAndWait(t, hub, alice)
	registerAndWait(t, hub, bob)
	registerAndWait(t, hub, carol)

	state := &service.SlideshowState{ID: 7, ConversationID: convID, Version: 3, Status: model.SlideshowStatusActive}
	hub.NotifySlideshowUpdated(convID, state)

	for _, client := range []*Client{alice, bob} {
		msg := readMessage(t, client)
		if msg.Type != TypeSlideshowUpdated {
			t.Fatalf("expected %s, got %s", TypeSlideshowUpdated, msg.Type)
		}
	}

	// 非参与者不应收到广播
	select {
	case <-carol.send:
		t.Fatalf("non-participant must not receive broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubBroadcastReachesAllConnectionsOfUser(t *testing.T) {
	hub, convID := newTestHub(t)

	// 同一用户的两个连接（多标签页）
	first := NewClient(hub, nil, 1)
	second := NewClient(hub, nil, 1)
	registerAndWait(t, hub, first)
	registerAndWait(t, hub, second)

	hub.NotifySlideshowStopped(convID, 7)

	for _, client := range []*Client{first, second} {
		msg := readMessage(t, client)
		if msg.Type != TypeSlideshowStopped {
			t.Fatalf("expected %s, got %s", TypeSlideshowStopped, msg.Type)
		}
	}
}

func TestHubUnregister(t *testing.T) {
	hub, _ := newTestHub(t)

	first := NewClient(hub, nil, 1)
	second := NewClient(hub, nil, 1)
	registerAndWait(t, hub, first)
	registerAndWait(t, hub, second)

	if hub.OnlineUserCount() != 1 {
		t.Fatalf("expected 1 online user, got %d", hub.OnlineUserCount())
	}

	hub.Unregister(first)

	// 还有一个连接在，用户仍然在线
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		hub.mu.RLock()
		remaining := len(hub.clients[1])
		hub.mu.RUnlock()
		if remaining == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if hub.OnlineUserCount() != 1 {
		t.Fatalf("user should stay online with one connection left")
	}

	hub.Unregister(second)
	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if hub.OnlineUserCount() == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if hub.OnlineUserCount() != 0 {
		t.Fatalf("user should go offline after last connection closes")
	}
}

func TestStartCommandOverSocket(t *testing.T) {
	hub, convID, mediaRepo := newCommandHub(t)

	alice := NewClient(hub, nil, 1)
	bob := NewClient(hub, nil, 2)
	registerAndWait(t, hub, alice)
	registerAndWait(t, hub, bob)

	ids := seedHubMedia(t, mediaRepo, convID, 2)
	hub.handleSlideshowCommand(alice, &Message{
		Type:      TypeSlideshowStart,
		MessageID: "cmd-1",
		Payload: map[string]interface{}{
			"conversation_id": convID,
			"source_type":     model.SourceTypePersonal,
			"media_ids":       ids,
		},
	})

	// 发起者先收到广播，再收到带原 message_id 的回执
	broadcast := readMessage(t, alice)
	if broadcast.Type != TypeSlideshowUpdated {
		t.Fatalf("expected %s, got %s", TypeSlideshowUpdated, broadcast.Type)
	}
	ack := readMessage(t, alice)
	if ack.Type != TypeSlideshowUpdated {
		t.Fatalf("expected %s, got %s", TypeSlideshowUpdated, ack.Type)
	}
	if ack.MessageID != "cmd-1" {
		t.Fatalf("expected ack message_id cmd-1, got %s", ack.MessageID)
	}

	var state service.SlideshowState
	if err := decodePayload(ack.Payload, &state); err != nil {
		t.Fatalf("failed to decode ack payload: %v", err)
	}
	if state.ControllerUserID != 1 || state.CurrentIndex != 0 || len(state.Items) != 2 {
		t.Fatalf("unexpected start state: %+v", state)
	}

	// 另一个参与者收到广播
	msg := readMessage(t, bob)
	if msg.Type != TypeSlideshowUpdated {
		t.Fatalf("expected %s, got %s", TypeSlideshowUpdated, msg.Type)
	}
}

func TestStartCommandRejectsUnknownSource(t *testing.T) {
	hub, convID, _ := newCommandHub(t)

	alice := NewClient(hub, nil, 1)
	registerAndWait(t, hub, alice)

	hub.handleSlideshowCommand(alice, &Message{
		Type:      TypeSlideshowStart,
		MessageID: "cmd-9",
		Payload: map[string]interface{}{
			"conversation_id": convID,
			"source_type":     "playlist",
		},
	})

	msg := readMessage(t, alice)
	if msg.Type != TypeError {
		t.Fatalf("expected %s, got %s", TypeError, msg.Type)
	}
	if msg.MessageID != "cmd-9" {
		t.Fatalf("expected message_id cmd-9, got %s", msg.MessageID)
	}
	var payload ErrorPayload
	if err := decodePayload(msg.Payload, &payload); err != nil {
		t.Fatalf("failed to decode error payload: %v", err)
	}
	if payload.Code != 400 {
		t.Fatalf("expected code 400, got %d", payload.Code)
	}
}

func TestNavigateCommandAcksClampedMove(t *testing.T) {
	hub, convID, mediaRepo := newCommandHub(t)

	alice := NewClient(hub, nil, 1)
	registerAndWait(t, hub, alice)

	ids := seedHubMedia(t, mediaRepo, convID, 1)
	hub.handleSlideshowCommand(alice, &Message{
		Type:      TypeSlideshowStart,
		MessageID: "start-1",
		Payload: map[string]interface{}{
			"conversation_id": convID,
			"source_type":     model.SourceTypePersonal,
			"media_ids":       ids,
		},
	})
	readMessage(t, alice) // 开始广播
	started := readMessage(t, alice)
	var before service.SlideshowState
	if err := decodePayload(started.Payload, &before); err != nil {
		t.Fatalf("failed to decode start ack: %v", err)
	}

	// 单条放映里向后翻页被钳制：没有广播，
	// 但发起者必须收到带边界标记的回执
	hub.handleSlideshowCommand(alice, &Message{
		Type:      TypeSlideshowNavigate,
		MessageID: "nav-1",
		Payload: map[string]interface{}{
			"slideshow_id": before.ID,
			"direction":    "next",
		},
	})

	ack := readMessage(t, alice)
	if ack.Type != TypeSlideshowUpdated {
		t.Fatalf("expected %s, got %s", TypeSlideshowUpdated, ack.Type)
	}
	if ack.MessageID != "nav-1" {
		t.Fatalf("expected ack message_id nav-1, got %s", ack.MessageID)
	}
	var after service.SlideshowState
	if err := decodePayload(ack.Payload, &after); err != nil {
		t.Fatalf("failed to decode ack payload: %v", err)
	}
	if !after.AtEnd {
		t.Fatalf("clamped navigate ack should carry at_end")
	}
	if after.Version != before.Version {
		t.Fatalf("clamped navigate must not bump version: %d -> %d", before.Version, after.Version)
	}
	if after.CurrentIndex != before.CurrentIndex {
		t.Fatalf("clamped navigate must not move index")
	}

	// 钳制不广播，回执之后不应再有消息
	select {
	case raw := <-alice.send:
		t.Fatalf("unexpected extra message: %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubNotifyWhileUnregistering(t *testing.T) {
	hub, convID := newTestHub(t)

	clients := make([]*Client, 8)
	for i := range clients {
		clients[i] = NewClient(hub, nil, 1)
		hub.Register(clients[i])
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		hub.mu.RLock()
		registered := len(hub.clients[1])
		hub.mu.RUnlock()
		if registered == len(clients) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	// 注销和广播并发进行，广播遍历的必须是快照而不是共享的底层数组
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, c := range clients {
			hub.Unregister(c)
		}
	}()
	for i := 0; i < 100; i++ {
		hub.NotifySlideshowStopped(convID, 7)
	}
	<-done

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if hub.OnlineUserCount() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("all connections should be unregistered")
}

func TestClientCloseOnFullBuffer(t *testing.T) {
	client := NewClient(nil, nil, 1)

	// 填满发送缓冲区
	msg := NewMessage(TypePong, nil)
	for i := 0; i < 256; i++ {
		if err := client.SendMessage(msg); err != nil {
			t.Fatalf("send failed: %v", err)
		}
	}

	// 缓冲区满: 连接被标记关闭而不是悄悄丢消息
	if err := client.SendMessage(msg); err != nil {
		t.Fatalf("send on full buffer should not error: %v", err)
	}
	client.mu.Lock()
	closed := client.closed
	client.mu.Unlock()
	if !closed {
		t.Fatalf("client should be closed after buffer overflow")
	}

	// 已关闭后继续发送是安全的空操作
	if err := client.SendMessage(msg); err != nil {
		t.Fatalf("send after close should be a no-op: %v", err)
	}

	// 重复 Close 也不会 panic
	client.Close()
}

func TestErrorCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{service.ErrSlideshowNotFound, 1401},
		{service.ErrSlideshowActive, 1402},
		{service.ErrSlideshowEnded, 1403},
		{service.ErrNotController, 1404},
		{service.ErrInvalidParticipant, 1405},
		{service.ErrSourceUnavailable, 1406},
		{service.ErrNotParticipant, 1202},
		{service.ErrInvalidDirection, 400},
		{service.ErrInvalidSourceType, 400},
	}
	for _, tc := range cases {
		payload := errorPayloadFor(tc.err)
		if payload.Code != tc.code {
			t.Fatalf("error %v: expected code %d, got %d", tc.err, tc.code, payload.Code)
		}
	}
}
