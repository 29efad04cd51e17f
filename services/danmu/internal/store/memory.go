package store

import (
	"context"
	"sync"
	"time"

	"github.com/example/danmu-platform/services/danmu/internal/domain"
)

// Memory is an in-process Store for development and tests.
type Memory struct {
	mu     sync.RWMutex
	videos map[string]memoryVideo
}

type memoryVideo struct {
	name      string
	createdAt time.Time
	updatedAt time.Time
	links     map[string]string
}

func NewMemory() *Memory {
	return &Memory{videos: make(map[string]memoryVideo)}
}

func (s *Memory) Get(_ context.Context, catalogID string) (Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.videos[catalogID]
	if !ok {
		return Video{}, ErrNotFound
	}
	return v.export(catalogID), nil
}

func (s *Memory) Replace(_ context.Context, catalogID, name string, links domain.Mapping, now time.Time) (Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now = now.UTC()
	v, ok := s.videos[catalogID]
	if !ok {
		if name == "" {
			name = DefaultName(catalogID)
		}
		v = memoryVideo{name: name, createdAt: now}
	}
	v.updatedAt = now
	v.links = firstLinks(links)
	s.videos[catalogID] = v
	return v.export(catalogID), nil
}

func (s *Memory) Delete(_ context.Context, catalogID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.videos[catalogID]; !ok {
		return ErrNotFound
	}
	delete(s.videos, catalogID)
	return nil
}

func (s *Memory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.videos), nil
}

func (s *Memory) Close() error { return nil }

func (v memoryVideo) export(catalogID string) Video {
	return Video{
		CatalogID: catalogID,
		Name:      v.name,
		CreatedAt: v.createdAt,
		UpdatedAt: v.updatedAt,
		Links:     toMapping(v.links),
	}
}
