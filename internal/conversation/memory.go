package conversation

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/codex-k8s/orion-orchestrator/internal/llm"
)

// Memory keeps sessions in process, evicting the least recently used session
// beyond maxSessions and sessions idle for longer than ttl.
type Memory struct {
	mu          sync.Mutex
	items       map[string]*list.Element
	order       *list.List
	ttl         time.Duration
	maxSessions int
	tail        int
	now         func() time.Time
}

type session struct {
	id        string
	messages  []llm.Message
	expiresAt time.Time
}

// NewMemory creates a store with the given ttl, session cap and message limit.
func NewMemory(ttl time.Duration, maxSessions, limit int) *Memory {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if maxSessions <= 0 {
		maxSessions = 1000
	}
	return &Memory{
		items:       make(map[string]*list.Element),
		order:       list.New(),
		ttl:         ttl,
		maxSessions: maxSessions,
		tail:        tailLimit(limit),
		now:         time.Now,
	}
}

// History implements Store.
func (m *Memory) History(_ context.Context, sessionID, systemPrompt string) ([]llm.Message, error) {
	sessionID = strings.TrimSpace(sessionID)
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[sessionID]
	if !ok {
		return compose(systemPrompt, nil), nil
	}
	entry := elem.Value.(*session)
	if m.now().After(entry.expiresAt) {
		m.order.Remove(elem)
		delete(m.items, sessionID)
		return compose(systemPrompt, nil), nil
	}
	entry.expiresAt = m.now().Add(m.ttl)
	m.order.MoveToFront(elem)
	return compose(systemPrompt, entry.messages), nil
}

// Append implements Store.
func (m *Memory) Append(_ context.Context, sessionID string, messages ...llm.Message) error {
	sessionID = strings.TrimSpace(sessionID)
	if len(messages) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[sessionID]; ok {
		entry := elem.Value.(*session)
		if m.now().After(entry.expiresAt) {
			entry.messages = nil
		}
		entry.messages = m.trimTail(append(entry.messages, messages...))
		entry.expiresAt = m.now().Add(m.ttl)
		m.order.MoveToFront(elem)
		return nil
	}

	entry := &session{
		id:        sessionID,
		messages:  m.trimTail(append([]llm.Message(nil), messages...)),
		expiresAt: m.now().Add(m.ttl),
	}
	m.items[sessionID] = m.order.PushFront(entry)
	m.evict()
	return nil
}

// Reset implements Store.
func (m *Memory) Reset(_ context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if elem, ok := m.items[sessionID]; ok {
		m.order.Remove(elem)
		delete(m.items, sessionID)
	}
	return nil
}

// Prune implements Store.
func (m *Memory) Prune(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for elem := m.order.Back(); elem != nil; {
		prev := elem.Prev()
		entry := elem.Value.(*session)
		if now.After(entry.expiresAt) {
			m.order.Remove(elem)
			delete(m.items, entry.id)
			removed++
		}
		elem = prev
	}
	return removed, nil
}

// Len returns the number of tracked sessions.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *Memory) trimTail(messages []llm.Message) []llm.Message {
	if len(messages) <= m.tail {
		return messages
	}
	return append([]llm.Message(nil), messages[len(messages)-m.tail:]...)
}

func (m *Memory) evict() {
	for len(m.items) > m.maxSessions {
		elem := m.order.Back()
		if elem == nil {
			return
		}
		entry := elem.Value.(*session)
		delete(m.items, entry.id)
		m.order.Remove(elem)
	}
}
