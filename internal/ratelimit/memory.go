package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory — лимитер в памяти процесса со скользящим окном.
// Для каждого ключа храним отметки времени запросов внутри окна.
// При нескольких инстансах без общего бэкенда эффективный лимит
// умножается на число инстансов — см. предупреждение в config.Validate.
type Memory struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	window   time.Duration
	maxReqs  int
}

func NewMemory(window time.Duration, maxReqs int) *Memory {
	m := &Memory{
		requests: make(map[string][]time.Time),
		window:   window,
		maxReqs:  maxReqs,
	}

	go m.cleanup()

	return m
}

func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-m.window)

	reqs := m.requests[key]
	filtered := reqs[:0]
	for _, t := range reqs {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}

	if len(filtered) >= m.maxReqs {
		m.requests[key] = filtered
		return false, nil
	}

	m.requests[key] = append(filtered, now)
	return true, nil
}

// cleanup периодически выкидывает ключи без активности, чтобы карта не росла.
func (m *Memory) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		m.mu.Lock()
		cutoff := time.Now().Add(-m.window)

		for key, reqs := range m.requests {
			alive := reqs[:0]
			for _, t := range reqs {
				if t.After(cutoff) {
					alive = append(alive, t)
				}
			}

			if len(alive) == 0 {
				delete(m.requests, key)
			} else {
				m.requests[key] = alive
			}
		}
		m.mu.Unlock()
	}
}
