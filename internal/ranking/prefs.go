package ranking

import "sync"

// PreferenceStore holds each viewer's personalization config between
// ranking calls. The engine itself is stateless; this is the caller-side
// home of config mutation.
type PreferenceStore interface {
	// Get returns the viewer's config, or defaults if none was stored.
	Get(viewerID string) *Config

	// Set replaces the viewer's config.
	Set(viewerID string, cfg *Config)
}

// InMemoryPreferenceStore is an in-memory implementation of
// PreferenceStore. Thread-safe via RWMutex.
type InMemoryPreferenceStore struct {
	mu    sync.RWMutex
	prefs map[string]*Config
}

// NewInMemoryPreferenceStore creates a new in-memory preference store.
func NewInMemoryPreferenceStore() *InMemoryPreferenceStore {
	return &InMemoryPreferenceStore{
		prefs: make(map[string]*Config),
	}
}

// Get returns a copy of the viewer's config, or defaults if none exists.
func (s *InMemoryPreferenceStore) Get(viewerID string) *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.prefs[viewerID]
	if !ok {
		return DefaultConfig()
	}
	cp := *cfg
	cp.LikedTopics = append([]string(nil), cfg.LikedTopics...)
	cp.MutedTopics = append([]string(nil), cfg.MutedTopics...)
	return &cp
}

// Set replaces the viewer's config.
func (s *InMemoryPreferenceStore) Set(viewerID string, cfg *Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *cfg
	cp.LikedTopics = append([]string(nil), cfg.LikedTopics...)
	cp.MutedTopics = append([]string(nil), cfg.MutedTopics...)
	s.prefs[viewerID] = &cp
}
