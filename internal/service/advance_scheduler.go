// Package service 提供业务逻辑层的实现
package service

import (
	"sync"
	"time"
)

// AdvanceHandler 定时器触发回调
// 参数为幻灯片会话ID、触发时的代号（generation）和布防时的版本号
type AdvanceHandler func(slideshowID, generation, version int64)

// armedTimer 一个已布防的定时器
type armedTimer struct {
	generation int64       // 布防时分配的代号
	timer      *time.Timer // 底层定时器
}

// AdvanceScheduler 自动播放调度器
// 每个放映中且开启自动播放的幻灯片会话最多持有一个定时器
//
// 取消语义: Arm 会原子地使同一会话之前的定时器失效（代号递增），
// 已经触发但尚未执行的旧定时器在 fire 中因代号不匹配被丢弃，
// 不存在"取消了却仍然生效"的窗口；版本号校验由回调方作为第二道防线
type AdvanceScheduler struct {
	mu      sync.Mutex
	timers  map[int64]*armedTimer // slideshowID -> 当前定时器
	nextGen int64                 // 全局单调递增的代号
	handler AdvanceHandler        // 触发回调
}

// NewAdvanceScheduler 创建 AdvanceScheduler 实例
func NewAdvanceScheduler() *AdvanceScheduler {
	return &AdvanceScheduler{
		timers: make(map[int64]*armedTimer),
	}
}

// SetHandler 设置触发回调
// 由 SlideshowService 在构造时注入，避免构造顺序上的循环依赖
func (s *AdvanceScheduler) SetHandler(h AdvanceHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Arm 为幻灯片会话布防一个一次性定时器
// 之前的定时器（若有）立即失效；到期后回调会带上这里分配的代号和传入的版本号
// 参数:
//   - slideshowID: 幻灯片会话ID
//   - delay: 触发延迟
//   - version: 布防时刻的会话版本号
//
// 返回:
//   - int64: 本次布防的代号
func (s *AdvanceScheduler) Arm(slideshowID int64, delay time.Duration, version int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 使旧定时器失效
	if old, exists := s.timers[slideshowID]; exists {
		old.timer.Stop()
	}

	s.nextGen++
	gen := s.nextGen

	at := &armedTimer{generation: gen}
	at.timer = time.AfterFunc(delay, func() {
		s.fire(slideshowID, gen, version)
	})
	s.timers[slideshowID] = at

	return gen
}

// Cancel 取消幻灯片会话的定时器
// 停止放映时无条件调用；没有定时器时是空操作
// 参数:
//   - slideshowID: 幻灯片会话ID
func (s *AdvanceScheduler) Cancel(slideshowID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if at, exists := s.timers[slideshowID]; exists {
		at.timer.Stop()
		delete(s.timers, slideshowID)
	}
}

// CancelAll 取消所有定时器
// 进程优雅关闭时调用
func (s *AdvanceScheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, at := range s.timers {
		at.timer.Stop()
		delete(s.timers, id)
	}
}

// fire 定时器到期入口
// 先在调度器锁内确认代号仍是当前代号（Stop 无法追回已经出队的定时器，
// 这里的检查保证失效的触发一定被丢弃），再调用回调
func (s *AdvanceScheduler) fire(slideshowID, generation, version int64) {
	s.mu.Lock()
	at, exists := s.timers[slideshowID]
	if !exists || at.generation != generation {
		// 过期触发，丢弃
		s.mu.Unlock()
		return
	}
	delete(s.timers, slideshowID)
	handler := s.handler
	s.mu.Unlock()

	if handler != nil {
		handler(slideshowID, generation, version)
	}
}

// IsArmed 检查幻灯片会话是否有在途定时器
// 仅用于测试和状态日志
func (s *AdvanceScheduler) IsArmed(slideshowID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.timers[slideshowID]
	return exists
}
