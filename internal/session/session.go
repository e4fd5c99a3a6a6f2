package session

import (
	"errors"
	"sync"
	"time"

	"storyharness/internal/harness"
	"storyharness/internal/suite"
	"storyharness/pkg/model"
)

// ErrBusy 会话中已有套件在运行
var ErrBusy = errors.New("session is running")

// Session 一次 harness 运行会话
type Session struct {
	ID        model.SessionID
	Harness   *harness.Harness
	StartedAt time.Time

	mu      sync.Mutex
	events  chan model.Event
	done    chan struct{}
	running bool
	closed  bool
	results *suite.Results
}

// New 创建会话
func New(id model.SessionID, h *harness.Harness, events chan model.Event) *Session {
	return &Session{ID: id, Harness: h, StartedAt: time.Now(), events: events, done: make(chan struct{})}
}

// Events 事件通道；拦截回调可能晚于会话关闭到达，因此通道不关闭，订阅方同时监听 Done
func (s *Session) Events() <-chan model.Event { return s.events }

// Done 会话关闭时关闭
func (s *Session) Done() <-chan struct{} { return s.done }

// Begin 标记开始运行；同一会话不能并发运行
func (s *Session) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("session closed")
	}
	if s.running {
		return ErrBusy
	}
	s.running = true
	return nil
}

// End 保存结果并结束运行
func (s *Session) End(res suite.Results) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.results = &res
}

// Results 最近一次运行的结果
func (s *Session) Results() (suite.Results, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.results == nil {
		return suite.Results{}, false
	}
	return *s.results, true
}

// Running 是否正在运行
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Close 释放 harness，可重复调用
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	if s.Harness != nil {
		return s.Harness.Close()
	}
	return nil
}
