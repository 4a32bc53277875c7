// Package clock отдаёт текущее время в UTC. Все сервисы получают Clock
// через конструктор, в тестах подставляется Manual.
package clock

import (
	"sync"
	"time"
)

// Clock источник текущего момента.
type Clock interface {
	Now() time.Time
}

// UTC системные часы в UTC.
type UTC struct{}

// Now возвращает текущее время в UTC.
func (UTC) Now() time.Time {
	return time.Now().UTC()
}

// Manual часы, которые двигаются только вручную.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual создаёт часы, остановленные на now.
func NewManual(now time.Time) *Manual {
	return &Manual{now: now.UTC()}
}

// Now возвращает установленный момент.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set переставляет часы.
func (m *Manual) Set(now time.Time) {
	m.mu.Lock()
	m.now = now.UTC()
	m.mu.Unlock()
}

// Advance сдвигает часы вперёд на d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
