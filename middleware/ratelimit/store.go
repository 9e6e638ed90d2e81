package ratelimit

import (
	"context"
	"sync"
	"time"
)

type Store interface {
	Get(ctx context.Context, key string, now time.Time) (count int, resetAt time.Time, err error)
	Increment(ctx context.Context, key string, now, resetAt time.Time) (count int, err error)
	Decrement(ctx context.Context, key string, now time.Time) error
	Reset(ctx context.Context, key string) error
}

type MemoryStore struct {
	mu   sync.Mutex
	data map[string]*entry
	stop chan struct{}
	once sync.Once
}

type entry struct {
	count   int
	resetAt time.Time
}

func NewMemoryStore() *MemoryStore {
	store := &MemoryStore{
		data: make(map[string]*entry),
		stop: make(chan struct{}),
	}

	go store.cleanup(time.Minute)

	return store
}

func (s *MemoryStore) Get(_ context.Context, key string, now time.Time) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.data[key]; ok && now.Before(e.resetAt) {
		return e.count, e.resetAt, nil
	}
	return 0, time.Time{}, nil
}

func (s *MemoryStore) Increment(_ context.Context, key string, now, resetAt time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.data[key]; ok && now.Before(e.resetAt) {
		e.count++
		return e.count, nil
	}

	s.data[key] = &entry{count: 1, resetAt: resetAt}
	return 1, nil
}

func (s *MemoryStore) Decrement(_ context.Context, key string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.data[key]; ok && now.Before(e.resetAt) && e.count > 0 {
		e.count--
	}
	return nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

func (s *MemoryStore) Close() {
	s.once.Do(func() { close(s.stop) })
}

func (s *MemoryStore) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for key, e := range s.data {
				if !now.Before(e.resetAt) {
					delete(s.data, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
