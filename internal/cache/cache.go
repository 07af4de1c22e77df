// Package cache holds in-process caches for computed reports.
package cache

import (
	"sync"
	"time"

	"settleflow/internal/log"
)

// Cache is the subset of LRUCache the HTTP layer depends on.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Purge()
	Size() int
}

// Cleaner is implemented by caches that can drop expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically cleans the registered caches.
type Manager struct {
	mu       sync.Mutex
	caches   []Cleaner
	stop     chan struct{}
	done     chan struct{}
	started  bool
	stopOnce sync.Once
	logger   *log.Logger
}

func NewManager(logger *log.Logger) *Manager {
	return &Manager{
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: log.OrDefault(logger, log.ComponentHTTP),
	}
}

func (m *Manager) Register(c Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches = append(m.caches, c)
}

// StartCleanup begins the cleanup loop. Calling it twice has no effect.
func (m *Manager) StartCleanup(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	go m.cleanup(interval)
}

// CleanNow runs one cleanup pass and returns the number of entries removed.
func (m *Manager) CleanNow() int {
	m.mu.Lock()
	caches := append([]Cleaner(nil), m.caches...)
	m.mu.Unlock()

	total := 0
	for _, c := range caches {
		total += c.CleanExpired()
	}
	return total
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := m.CleanNow(); n > 0 {
				m.logger.Debug("Cache cleanup completed", "entries_removed", n)
			}
		case <-m.stop:
			return
		}
	}
}

// Stop ends the cleanup loop and waits for it to exit.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		m.mu.Lock()
		started := m.started
		m.mu.Unlock()
		if started {
			<-m.done
		}
	})
}
