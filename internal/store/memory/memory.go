// Package memory is an in-process RecordStore. It backs tests, the CLI's
// dry runs and STORE_DRIVER=memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/moduletrack/internal/core"
	"github.com/google/uuid"
)

// Store keeps modules in a map keyed by moduleNo.
type Store struct {
	mu      sync.RWMutex
	modules map[string]core.Module
	now     func() time.Time
}

var (
	_ core.RecordStore = (*Store)(nil)
	_ core.Batcher     = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		modules: make(map[string]core.Module),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// GetAll returns every module ordered by moduleNo.
func (s *Store) GetAll(ctx context.Context) ([]core.Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Module, 0, len(s.modules))
	for _, m := range s.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModuleNo < out[j].ModuleNo })
	return out, nil
}

// GetByKey returns the module stored under moduleNo.
func (s *Store) GetByKey(ctx context.Context, moduleNo string) (core.Module, bool, error) {
	if err := ctx.Err(); err != nil {
		return core.Module{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.modules[strings.TrimSpace(moduleNo)]
	return m, ok, nil
}

// Create stores a new module.
func (s *Store) Create(ctx context.Context, m core.Module) (core.Module, error) {
	if err := ctx.Err(); err != nil {
		return core.Module{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create(s.modules, m)
}

// Update applies p to the module stored under key.
func (s *Store) Update(ctx context.Context, key string, p core.Patch) (core.Module, error) {
	if err := ctx.Err(); err != nil {
		return core.Module{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(s.modules, key, p)
}

// Delete removes the module stored under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delete(s.modules, key)
}

// Batch applies ops atomically: on the first failure none are kept.
func (s *Store) Batch(ctx context.Context, ops []core.WriteOp) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := make(map[string]core.Module, len(s.modules))
	for k, v := range s.modules {
		work[k] = v
	}

	for i, op := range ops {
		var err error
		switch op.Kind {
		case core.OpCreate:
			_, err = s.create(work, op.Module)
		case core.OpUpdate:
			_, err = s.update(work, op.Key, op.Patch)
		case core.OpDelete:
			err = s.delete(work, op.Key)
		default:
			err = fmt.Errorf("unknown op kind %q", op.Kind)
		}
		if err != nil {
			return fmt.Errorf("batch op %d (%s %s): %w", i, op.Kind, op.Key, err)
		}
	}

	s.modules = work
	return nil
}

// Len returns the number of stored modules.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.modules)
}

func (s *Store) create(into map[string]core.Module, m core.Module) (core.Module, error) {
	m.ModuleNo = strings.TrimSpace(m.ModuleNo)
	if m.ModuleNo == "" {
		return core.Module{}, fmt.Errorf("create: moduleNo is a required field")
	}
	if _, exists := into[m.ModuleNo]; exists {
		return core.Module{}, fmt.Errorf("create %s: %w", m.ModuleNo, core.ErrDuplicateKey)
	}
	now := s.now()
	m.ID = uuid.NewString()
	m.CreatedAt = now
	m.UpdatedAt = now
	into[m.ModuleNo] = m
	return m, nil
}

func (s *Store) update(into map[string]core.Module, key string, p core.Patch) (core.Module, error) {
	key = strings.TrimSpace(key)
	m, ok := into[key]
	if !ok {
		return core.Module{}, fmt.Errorf("update %s: %w", key, core.ErrNotFound)
	}

	updated := p.Apply(m)
	updated.ModuleNo = strings.TrimSpace(updated.ModuleNo)
	if updated.ModuleNo == "" {
		return core.Module{}, fmt.Errorf("update %s: moduleNo is a required field", key)
	}
	if updated.ModuleNo != key {
		if _, taken := into[updated.ModuleNo]; taken {
			return core.Module{}, fmt.Errorf("update %s: rekey to %s: %w", key, updated.ModuleNo, core.ErrDuplicateKey)
		}
		delete(into, key)
	}
	updated.UpdatedAt = s.now()
	into[updated.ModuleNo] = updated
	return updated, nil
}

func (s *Store) delete(from map[string]core.Module, key string) error {
	key = strings.TrimSpace(key)
	if _, ok := from[key]; !ok {
		return fmt.Errorf("delete %s: %w", key, core.ErrNotFound)
	}
	delete(from, key)
	return nil
}
