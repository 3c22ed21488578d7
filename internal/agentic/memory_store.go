package agentic

import (
	"context"
	"fmt"
	"sync"
	"time"

	"phishbox/internal/model"
)

// MemoryStore holds tasks for the life of the process. Released tasks that
// finished more than ttl ago are swept on Create.
type MemoryStore struct {
	mu       sync.RWMutex
	tasks    map[string]*model.DiscussionTask
	released map[string]struct{}
	ttl      time.Duration
	now      func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		tasks:    make(map[string]*model.DiscussionTask),
		released: make(map[string]struct{}),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, task *model.DiscussionTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	s.sweep()
	s.tasks[task.ID] = task.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.DiscussionTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, notFound(id)
	}
	return t.Clone(), nil
}

func (s *MemoryStore) MarkProcessing(_ context.Context, id string) error {
	return s.update(id, func(t *model.DiscussionTask) error {
		return transition(t, model.TaskProcessing, s.now().UTC())
	})
}

func (s *MemoryStore) AppendMessage(_ context.Context, id string, msg model.Message) error {
	return s.update(id, func(t *model.DiscussionTask) error {
		return appendMessage(t, msg)
	})
}

func (s *MemoryStore) Complete(_ context.Context, id string, decision model.Decision) error {
	return s.update(id, func(t *model.DiscussionTask) error {
		return complete(t, decision, s.now().UTC())
	})
}

func (s *MemoryStore) Fail(_ context.Context, id string, reason string) error {
	return s.update(id, func(t *model.DiscussionTask) error {
		return fail(t, reason, s.now().UTC())
	})
}

func (s *MemoryStore) Release(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return notFound(id)
	}
	s.released[id] = struct{}{}
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

func (s *MemoryStore) update(id string, fn func(*model.DiscussionTask) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return notFound(id)
	}
	return fn(t)
}

// sweep must be called with mu held.
func (s *MemoryStore) sweep() {
	if s.ttl <= 0 {
		return
	}
	cutoff := s.now().Add(-s.ttl)
	for id := range s.released {
		t := s.tasks[id]
		if t.CompletedAt != nil && t.CompletedAt.Before(cutoff) {
			delete(s.tasks, id)
			delete(s.released, id)
		}
	}
}
