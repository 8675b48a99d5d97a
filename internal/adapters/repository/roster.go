package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/pitwall/internal/domain/profile"
	"github.com/okian/pitwall/pkg/metrics"
)

// slot guards one profile. The roster map lock is never held while a slot
// lock is held by a caller's callback.
type slot struct {
	mu sync.Mutex
	p  *profile.Profile
}

// InMemoryRoster is a map-backed Roster with per-profile locking.
type InMemoryRoster struct {
	mu    sync.RWMutex
	slots map[string]*slot

	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewInMemoryRoster constructs an empty roster and starts its metrics
// updater, which stops with ctx or Close.
func NewInMemoryRoster(ctx context.Context, opts ...Option) *InMemoryRoster {
	r := &InMemoryRoster{
		slots:                 make(map[string]*slot),
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.startMetricsUpdater(ctx)
	return r
}

// Close stops background goroutines.
func (r *InMemoryRoster) Close() error {
	r.stopOnce.Do(func() { close(r.stopChan) })
	r.wg.Wait()
	return nil
}

func (r *InMemoryRoster) lookup(name string) (*slot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.slots[name]
	return s, ok
}

func (r *InMemoryRoster) Get(_ context.Context, name string) (*profile.Profile, error) {
	s, ok := r.lookup(name)
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Clone(), nil
}

func (r *InMemoryRoster) List(_ context.Context) []*profile.Profile {
	r.mu.RLock()
	slots := make([]*slot, 0, len(r.slots))
	for _, s := range r.slots {
		slots = append(slots, s)
	}
	r.mu.RUnlock()

	out := make([]*profile.Profile, 0, len(slots))
	for _, s := range slots {
		s.mu.Lock()
		out = append(out, s.p.Clone())
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *InMemoryRoster) Count(_ context.Context) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots)
}

func (r *InMemoryRoster) Upsert(_ context.Context, p *profile.Profile) error {
	if err := validName(p); err != nil {
		return err
	}
	c := p.Clone()

	r.mu.Lock()
	s, ok := r.slots[p.Name]
	if !ok {
		r.slots[p.Name] = &slot{p: c}
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	s.mu.Lock()
	s.p = c
	s.mu.Unlock()
	return nil
}

func (r *InMemoryRoster) Remove(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.slots[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	delete(r.slots, name)
	return nil
}

func (r *InMemoryRoster) Update(_ context.Context, name string, fn func(*profile.Profile) error) error {
	s, ok := r.lookup(name)
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return s.apply(fn)
}

func (r *InMemoryRoster) UpdateOrCreate(ctx context.Context, name string, create func() *profile.Profile, update func(*profile.Profile) error) (bool, error) {
	if s, ok := r.lookup(name); ok {
		return false, s.apply(update)
	}

	r.mu.Lock()
	if s, ok := r.slots[name]; ok {
		// Created by another caller since the lookup.
		r.mu.Unlock()
		return false, s.apply(update)
	}
	p := create()
	if err := validName(p); err != nil {
		r.mu.Unlock()
		return false, err
	}
	if p.Name != name {
		r.mu.Unlock()
		return false, fmt.Errorf("%w: created %q for %q", ErrInvalidName, p.Name, name)
	}
	r.slots[name] = &slot{p: p}
	r.mu.Unlock()
	return true, nil
}

func (r *InMemoryRoster) Replace(_ context.Context, profiles []*profile.Profile) error {
	slots := make(map[string]*slot, len(profiles))
	for _, p := range profiles {
		if err := validName(p); err != nil {
			return err
		}
		if _, ok := slots[p.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicate, p.Name)
		}
		slots[p.Name] = &slot{p: p.Clone()}
	}

	r.mu.Lock()
	r.slots = slots
	r.mu.Unlock()
	metrics.UpdateRosterSize(len(slots))
	return nil
}

// apply runs fn on a copy and publishes it on success.
func (s *slot) apply(fn func(*profile.Profile) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.p.Clone()
	if err := fn(work); err != nil {
		return err
	}
	s.p = work
	return nil
}

func validName(p *profile.Profile) error {
	if p == nil || strings.TrimSpace(p.Name) == "" {
		return ErrInvalidName
	}
	return nil
}

func (r *InMemoryRoster) startMetricsUpdater(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateRosterSize(r.Count(ctx))
			}
		}
	}()
}
