package viewer

import (
	"slices"
	"sync"
)

// ViewerRepository defines the interface for viewer data operations.
type ViewerRepository interface {
	// Put stores or replaces a viewer record.
	Put(v *Viewer) error

	// Get retrieves a viewer by ID.
	Get(id string) (*Viewer, error)

	// Follow adds authorID to the viewer's following set. Idempotent.
	Follow(viewerID, authorID string) error

	// Unfollow removes authorID from the viewer's following set. Idempotent.
	Unfollow(viewerID, authorID string) error

	// SetInterests replaces the viewer's interest tags.
	SetInterests(viewerID string, interests []string) error

	// SetProfileEmbedding replaces the viewer's profile embedding.
	SetProfileEmbedding(viewerID string, embedding []float64) error

	// Lookup returns an AuthorLookup backed by this repository, used by
	// the ranking engine to resolve handles for rationale text.
	Lookup() AuthorLookup
}

// InMemoryViewerRepository is an in-memory implementation of
// ViewerRepository. Thread-safe via RWMutex.
type InMemoryViewerRepository struct {
	mu      sync.RWMutex
	viewers map[string]*Viewer
}

// NewInMemoryViewerRepository creates a new in-memory viewer repository.
func NewInMemoryViewerRepository() *InMemoryViewerRepository {
	return &InMemoryViewerRepository{
		viewers: make(map[string]*Viewer),
	}
}

// Put stores or replaces a viewer record.
func (r *InMemoryViewerRepository) Put(v *Viewer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.viewers[v.ID] = v.Clone()
	return nil
}

// Get retrieves a viewer by ID.
func (r *InMemoryViewerRepository) Get(id string) (*Viewer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.viewers[id]
	if !ok {
		return nil, ErrViewerNotFound
	}
	return v.Clone(), nil
}

// Follow adds authorID to the viewer's following set.
func (r *InMemoryViewerRepository) Follow(viewerID, authorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.viewers[viewerID]
	if !ok {
		return ErrViewerNotFound
	}
	if !slices.Contains(v.Following, authorID) {
		v.Following = append(v.Following, authorID)
	}
	return nil
}

// Unfollow removes authorID from the viewer's following set.
func (r *InMemoryViewerRepository) Unfollow(viewerID, authorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.viewers[viewerID]
	if !ok {
		return ErrViewerNotFound
	}
	v.Following = slices.DeleteFunc(v.Following, func(id string) bool {
		return id == authorID
	})
	return nil
}

// SetInterests replaces the viewer's interest tags.
func (r *InMemoryViewerRepository) SetInterests(viewerID string, interests []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.viewers[viewerID]
	if !ok {
		return ErrViewerNotFound
	}
	v.Interests = append([]string(nil), interests...)
	return nil
}

// SetProfileEmbedding replaces the viewer's profile embedding.
func (r *InMemoryViewerRepository) SetProfileEmbedding(viewerID string, embedding []float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.viewers[viewerID]
	if !ok {
		return ErrViewerNotFound
	}
	v.ProfileEmbedding = append([]float64(nil), embedding...)
	return nil
}

// Lookup returns an AuthorLookup backed by this repository.
func (r *InMemoryViewerRepository) Lookup() AuthorLookup {
	return func(authorID string) (*Author, bool) {
		r.mu.RLock()
		defer r.mu.RUnlock()

		v, ok := r.viewers[authorID]
		if !ok {
			return nil, false
		}
		return &Author{ID: v.ID, Handle: v.Handle, DisplayName: v.DisplayName}, true
	}
}
