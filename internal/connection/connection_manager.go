// Package connection 实现了 JTP 连接的管理与收发
package connection

import (
	"sync"
	"sync/atomic"

	"github.com/life-stream-dev/life-stream-go-jtp/internal/logger"
)

// Entry 是被管理的连接
type Entry interface {
	ID() string
	Close() error
}

// Manager 活跃连接表, 以远端地址为键
type Manager struct {
	connections sync.Map
	count       atomic.Int64
}

func NewManager() *Manager {
	return &Manager{}
}

// TryAdd registers the entry unless limit connections are already present.
// A limit of zero or less disables the check.
func (m *Manager) TryAdd(entry Entry, limit int) bool {
	if n := m.count.Add(1); limit > 0 && n > int64(limit) {
		m.count.Add(-1)
		return false
	}
	if _, loaded := m.connections.LoadOrStore(entry.ID(), entry); loaded {
		m.count.Add(-1)
		logger.WarnF("Client %s is already registered", entry.ID())
		return false
	}
	logger.InfoF("Client %s connected", entry.ID())
	return true
}

func (m *Manager) Remove(clientID string) {
	if _, loaded := m.connections.LoadAndDelete(clientID); loaded {
		m.count.Add(-1)
		logger.InfoF("Client %s disconnected", clientID)
	}
}

func (m *Manager) Get(clientID string) (Entry, bool) {
	if value, ok := m.connections.Load(clientID); ok {
		return value.(Entry), true
	}
	return nil, false
}

func (m *Manager) Count() int {
	return int(m.count.Load())
}

// Snapshot returns the entries registered at the time of the call.
func (m *Manager) Snapshot() []Entry {
	var entries []Entry
	m.connections.Range(func(_, value any) bool {
		entries = append(entries, value.(Entry))
		return true
	})
	return entries
}
