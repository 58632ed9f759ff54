// Package websocket 提供 WebSocket 通信功能
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"slideshow-server/internal/cache"
	"slideshow-server/internal/repository"
	"slideshow-server/internal/service"
)

// Hub 是 WebSocket 连接的中心管理器
// 负责：
// 1. 管理所有客户端连接
// 2. 接收放映命令并转交服务层
// 3. 把放映事件广播给会话的所有参与者
// 4. 同步在线状态
//
// Hub 实现了 service.SlideshowNotifier 接口，
// 广播在服务层的会话锁内同步执行，保证事件按版本号顺序送达
type Hub struct {
	// 客户端映射：userID -> []*Client
	// 一个用户可能有多个连接（多设备登录）
	clients map[int64][]*Client

	// 注册通道
	register chan *Client

	// 注销通道
	unregister chan *Client

	// 互斥锁，保护并发访问
	mu sync.RWMutex

	// 依赖的服务
	slideshowService *service.SlideshowService
	conversationRepo *repository.ConversationRepository
	cache            *cache.RedisCache
}

// NewHub 创建 Hub 实例
func NewHub(
	slideshowService *service.SlideshowService,
	conversationRepo *repository.ConversationRepository,
	redisCache *cache.RedisCache,
) *Hub {
	return &Hub{
		clients:          make(map[int64][]*Client),
		register:         make(chan *Client),
		unregister:       make(chan *Client),
		slideshowService: slideshowService,
		conversationRepo: conversationRepo,
		cache:            redisCache,
	}
}

// Run 启动 Hub 的主循环
// 应该在单独的 goroutine 中运行
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client.userID] = append(h.clients[client.userID], client)
	h.mu.Unlock()

	// 更新 Redis 在线状态
	if h.cache != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := h.cache.IncrUserConnections(ctx, client.userID); err != nil {
				log.Printf("Failed to incr user connections: %v", err)
			}
		}()
	}

	log.Printf("Client registered: userID=%d", client.userID)
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	clients := h.clients[client.userID]
	removed := false
	for i, c := range clients {
		if c == client {
			h.clients[client.userID] = append(clients[:i], clients[i+1:]...)
			removed = true
			break
		}
	}
	// 如果没有连接了，删除 key
	if len(h.clients[client.userID]) == 0 {
		delete(h.clients, client.userID)
	}
	h.mu.Unlock()

	if !removed {
		return
	}

	// 更新 Redis 在线状态
	if h.cache != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := h.cache.DecrUserConnections(ctx, client.userID); err != nil {
				log.Printf("Failed to decr user connections: %v", err)
			}
		}()
	}

	// 关闭客户端
	client.Close()
	log.Printf("Client unregistered: userID=%d", client.userID)
}

// Register 注册客户端（供外部调用）
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销客户端（供外部调用）
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// notifyUser 向用户的所有连接发送消息
// 注销会原地收缩底层数组，出锁前必须复制切片再遍历
func (h *Hub) notifyUser(userID int64, msg *Message) {
	h.mu.RLock()
	clients := append([]*Client(nil), h.clients[userID]...)
	h.mu.RUnlock()

	for _, client := range clients {
		client.SendMessage(msg)
	}
}

// broadcastToConversation 向会话的所有参与者广播消息
// 不在线的参与者直接跳过，重连后通过状态快照对账
func (h *Hub) broadcastToConversation(conversationID int64, msg *Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	participantIDs, err := h.conversationRepo.GetParticipantIDs(ctx, conversationID)
	if err != nil {
		log.Printf("Failed to resolve participants for broadcast: %v", err)
		return
	}

	for _, userID := range participantIDs {
		h.notifyUser(userID, msg)
	}
}

// NotifySlideshowUpdated 实现 service.SlideshowNotifier
// 放映状态变更时把完整快照广播给所有参与者
func (h *Hub) NotifySlideshowUpdated(conversationID int64, state *service.SlideshowState) {
	h.broadcastToConversation(conversationID, NewMessage(TypeSlideshowUpdated, state))
}

// NotifySlideshowStopped 实现 service.SlideshowNotifier
// 放映停止时通知所有参与者
func (h *Hub) NotifySlideshowStopped(conversationID, slideshowID int64) {
	h.broadcastToConversation(conversationID, NewMessage(TypeSlideshowStopped, &SlideshowStoppedPayload{
		SlideshowID:    slideshowID,
		ConversationID: conversationID,
	}))
}

// handleSlideshowCommand 处理放映命令
// 成功的变更通过 Notifier 广播快照；发起者另外收到一条带原 message_id
// 的快照回执，命令和结果由此对应。翻页在边界被钳制时没有广播，
// 发起者也能从回执拿到边界标记
func (h *Hub) handleSlideshowCommand(client *Client, msg *Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var state *service.SlideshowState
	var err error
	switch msg.Type {
	case TypeSlideshowStart:
		var payload StartPayload
		if err = decodePayload(msg.Payload, &payload); err == nil {
			state, err = h.slideshowService.Start(ctx, client.userID, &service.StartSlideshowRequest{
				ConversationID: payload.ConversationID,
				SourceType:     payload.SourceType,
				MediaIDs:       payload.MediaIDs,
				Subreddit:      payload.Subreddit,
				SortOption:     payload.SortOption,
				AutoAdvance:    payload.AutoAdvance,
				ImageSeconds:   payload.ImageSeconds,
				VideoSeconds:   payload.VideoSeconds,
			})
		}

	case TypeSlideshowNavigate:
		var payload NavigatePayload
		if err = decodePayload(msg.Payload, &payload); err == nil {
			state, err = h.slideshowService.Navigate(ctx, client.userID, payload.SlideshowID, &service.NavigateRequest{
				Direction: payload.Direction,
				Index:     payload.Index,
			})
		}

	case TypeSlideshowTransfer:
		var payload TransferPayload
		if err = decodePayload(msg.Payload, &payload); err == nil {
			state, err = h.slideshowService.TransferControl(ctx, client.userID, payload.SlideshowID, payload.NewControllerID)
		}

	case TypeSlideshowAutoAdvance:
		var payload AutoAdvancePayload
		if err = decodePayload(msg.Payload, &payload); err == nil {
			state, err = h.slideshowService.UpdateAutoAdvance(ctx, client.userID, payload.SlideshowID, &service.UpdateAutoAdvanceRequest{
				Enabled:         payload.Enabled,
				AppliesTo:       payload.AppliesTo,
				IntervalSeconds: payload.IntervalSeconds,
			})
		}

	case TypeSlideshowSort:
		var payload SortPayload
		if err = decodePayload(msg.Payload, &payload); err == nil {
			state, err = h.slideshowService.ChangeSort(ctx, client.userID, payload.SlideshowID, payload.SortOption)
		}

	case TypeSlideshowStop:
		// stop 没有快照可回，停止事件已在服务层同步广播给所有参与者
		var payload StopPayload
		if err = decodePayload(msg.Payload, &payload); err == nil {
			err = h.slideshowService.Stop(ctx, client.userID, payload.SlideshowID)
		}

	case TypeSlideshowSync:
		// 状态快照只发回请求者本人，不广播
		var payload SyncPayload
		if err = decodePayload(msg.Payload, &payload); err == nil {
			state, err = h.slideshowService.GetState(ctx, client.userID, payload.SlideshowID)
		}
	}

	if err != nil {
		client.SendMessage(NewMessageWithID(TypeError, errorPayloadFor(err), msg.MessageID))
		return
	}
	if state != nil {
		client.SendMessage(NewMessageWithID(TypeSlideshowUpdated, state, msg.MessageID))
	}
}

// decodePayload 把泛型 Payload 解析为具体结构
func decodePayload(payload interface{}, dest interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// errorPayloadFor 把业务错误映射为错误码
// 错误码与 HTTP 接口保持一致，客户端可以共用处理逻辑
func errorPayloadFor(err error) *ErrorPayload {
	code := 500
	switch {
	case errors.Is(err, service.ErrConversationNotFound):
		code = 1201
	case errors.Is(err, service.ErrNotParticipant):
		code = 1202
	case errors.Is(err, service.ErrMediaNotFound):
		code = 1301
	case errors.Is(err, service.ErrSlideshowNotFound):
		code = 1401
	case errors.Is(err, service.ErrSlideshowActive):
		code = 1402
	case errors.Is(err, service.ErrSlideshowEnded):
		code = 1403
	case errors.Is(err, service.ErrNotController):
		code = 1404
	case errors.Is(err, service.ErrInvalidParticipant):
		code = 1405
	case errors.Is(err, service.ErrSourceUnavailable):
		code = 1406
	case errors.Is(err, service.ErrInvalidDirection),
		errors.Is(err, service.ErrInvalidSourceType),
		errors.Is(err, service.ErrInvalidSortOption),
		errors.Is(err, service.ErrInvalidInterval),
		errors.Is(err, service.ErrNotSubredditSource),
		errors.Is(err, service.ErrEmptySource):
		code = 400
	}
	return &ErrorPayload{Code: code, Message: err.Error()}
}

// OnlineUserCount 当前在线用户数
// 仅用于状态日志和测试
func (h *Hub) OnlineUserCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
