package todos

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// Repository is the storage contract for todos. Absence is reported through
// the boolean result, never as an error.
type Repository interface {
	Create(ctx context.Context, title string, done bool) (Todo, error)
	// List returns every todo, newest first.
	List(ctx context.Context) ([]Todo, error)
	Find(ctx context.Context, id int64) (Todo, bool, error)
	Update(ctx context.Context, id int64, p Patch) (Todo, bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// Store is a Repository that owns resources released by Close.
type Store interface {
	Repository
	Close() error
}

type InMemoryRepo struct {
	mu    sync.Mutex
	seq   int64
	store map[int64]Todo
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		store: make(map[int64]Todo),
	}
}

func (r *InMemoryRepo) Create(_ context.Context, title string, done bool) (Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	t := Todo{
		ID:        r.seq,
		Title:     title,
		Done:      done,
		CreatedAt: now(),
	}
	r.store[t.ID] = t
	return t, nil
}

func (r *InMemoryRepo) List(_ context.Context) ([]Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Todo, 0, len(r.store))
	for _, t := range r.store {
		out = append(out, t)
	}
	slices.SortFunc(out, newestFirst)
	return out, nil
}

func (r *InMemoryRepo) Find(_ context.Context, id int64) (Todo, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.store[id]
	return t, ok, nil
}

func (r *InMemoryRepo) Update(_ context.Context, id int64, p Patch) (Todo, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.store[id]
	if !ok {
		return Todo{}, false, nil
	}
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Done != nil {
		t.Done = *p.Done
	}
	r.store[id] = t
	return t, true, nil
}

func (r *InMemoryRepo) Delete(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.store[id]; !ok {
		return false, nil
	}
	delete(r.store, id)
	return true, nil
}

func (r *InMemoryRepo) Close() error { return nil }

// newestFirst orders by creation time descending, then id descending.
func newestFirst(a, b Todo) int {
	if c := b.CreatedAt.Compare(a.CreatedAt.Time); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}
