// Package session 跟踪正在进行的 harness 运行。
package session

import (
	"sort"
	"sync"

	"storyharness/internal/harness"
	"storyharness/internal/logger"
	"storyharness/pkg/model"
)

// Manager 全局会话管理器
type Manager struct {
	mu       sync.RWMutex
	sessions map[model.SessionID]*Session
	log      logger.Logger
}

// NewManager 创建会话管理器
func NewManager(l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		sessions: make(map[model.SessionID]*Session),
		log:      l,
	}
}

// Create 创建并注册新会话
func (m *Manager) Create(id model.SessionID, h *harness.Harness, events chan model.Event) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := New(id, h, events)
	m.sessions[id] = s
	m.log.Info("创建业务会话", "sessionID", string(id))
	return s
}

// Get 获取会话
func (m *Manager) Get(id model.SessionID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete 关闭并移除会话
func (m *Manager) Delete(id model.SessionID) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	m.log.Info("销毁业务会话", "sessionID", string(id))
	return s.Close()
}

// List 返回所有活动会话，按创建时间排序
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].StartedAt.Before(list[j].StartedAt) })
	return list
}
