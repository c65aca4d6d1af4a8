package post

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PostRepository defines the interface for post data operations.
type PostRepository interface {
	// Create inserts a new post with a generated UUID.
	Create(post *Post) error

	// Update updates the mutable fields of an existing post.
	Update(post *Post) error

	// Delete soft-deletes a post by setting deleted_at.
	Delete(id string) error

	// GetByID retrieves a post by its UUID, excluding soft-deleted posts.
	GetByID(id string) (*Post, error)

	// ListSince retrieves all non-deleted posts created after cutoff,
	// ordered by created_at DESC. A zero cutoff returns everything.
	ListSince(cutoff time.Time) ([]*Post, error)

	// AttachValueSignal records the content-value pipeline's quality
	// estimate and moderation verdict for a post. Either argument may be
	// its zero value to leave that field untouched.
	AttachValueSignal(id string, score *ValueScore, status FactCheckStatus) error

	// SetAudienceEmbedding replaces the target-audience embedding on a
	// tuned post. Returns ErrPostNotFound for unknown or deleted posts.
	SetAudienceEmbedding(id string, embedding []float64) error

	// IncrementCommentCount bumps the comment counter for a post.
	IncrementCommentCount(id string) error
}

// InMemoryPostRepository is an in-memory implementation of PostRepository.
// Thread-safe via RWMutex.
type InMemoryPostRepository struct {
	mu    sync.RWMutex
	posts map[string]*Post
}

// NewInMemoryPostRepository creates a new in-memory post repository.
func NewInMemoryPostRepository() *InMemoryPostRepository {
	return &InMemoryPostRepository{
		posts: make(map[string]*Post),
	}
}

// Create inserts a new post with a generated UUID.
// A caller-supplied CreatedAt is preserved so backfilled content keeps its
// original timestamp; otherwise both timestamps are set to now.
func (r *InMemoryPostRepository) Create(post *Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	post.ID = uuid.New().String()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now
	if post.ReachMode == "" {
		post.ReachMode = ReachForAll
	}

	r.posts[post.ID] = post.Clone()
	return nil
}

// Update updates the mutable fields of an existing post.
func (r *InMemoryPostRepository) Update(post *Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.posts[post.ID]
	if !ok {
		return ErrPostNotFound
	}
	if existing.DeletedAt != nil {
		return ErrPostDeleted
	}

	existing.Text = post.Text
	existing.Topic = post.Topic
	existing.SemanticTopics = append([]string(nil), post.SemanticTopics...)
	existing.ReachMode = post.ReachMode
	existing.TunedAudience = post.Clone().TunedAudience
	existing.UpdatedAt = time.Now()
	return nil
}

// Delete soft-deletes a post. Deleting twice returns ErrPostNotFound so the
// operation stays idempotent from the caller's perspective.
func (r *InMemoryPostRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	post, ok := r.posts[id]
	if !ok || post.DeletedAt != nil {
		return ErrPostNotFound
	}

	now := time.Now()
	post.DeletedAt = &now
	return nil
}

// GetByID retrieves a post by its UUID, excluding soft-deleted posts.
func (r *InMemoryPostRepository) GetByID(id string) (*Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	post, ok := r.posts[id]
	if !ok || post.DeletedAt != nil {
		return nil, ErrPostNotFound
	}
	return post.Clone(), nil
}

// ListSince retrieves all non-deleted posts created after cutoff,
// ordered by created_at DESC with id as a stable tie-breaker.
func (r *InMemoryPostRepository) ListSince(cutoff time.Time) ([]*Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Post
	for _, p := range r.posts {
		if p.DeletedAt != nil {
			continue
		}
		if !cutoff.IsZero() && !p.CreatedAt.After(cutoff) {
			continue
		}
		out = append(out, p.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// AttachValueSignal records the value pipeline's quality estimate and
// moderation verdict. Signals for deleted posts are dropped silently since
// the pipeline runs asynchronously and may lag behind deletions.
func (r *InMemoryPostRepository) AttachValueSignal(id string, score *ValueScore, status FactCheckStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	post, ok := r.posts[id]
	if !ok {
		return ErrPostNotFound
	}
	if post.DeletedAt != nil {
		return nil
	}

	if score != nil {
		vs := *score
		post.ValueScore = &vs
	}
	if status != "" {
		post.FactCheckStatus = status
	}
	post.UpdatedAt = time.Now()
	return nil
}

// SetAudienceEmbedding replaces the target-audience embedding on a post.
func (r *InMemoryPostRepository) SetAudienceEmbedding(id string, embedding []float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	post, ok := r.posts[id]
	if !ok || post.DeletedAt != nil {
		return ErrPostNotFound
	}
	if post.TunedAudience == nil {
		post.TunedAudience = &TunedAudience{}
	}
	post.TunedAudience.TargetAudienceEmbedding = append([]float64(nil), embedding...)
	post.UpdatedAt = time.Now()
	return nil
}

// IncrementCommentCount bumps the comment counter for a post.
func (r *InMemoryPostRepository) IncrementCommentCount(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	post, ok := r.posts[id]
	if !ok || post.DeletedAt != nil {
		return ErrPostNotFound
	}
	post.CommentCount++
	post.UpdatedAt = time.Now()
	return nil
}
