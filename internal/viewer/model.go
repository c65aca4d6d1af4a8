// Package viewer provides the viewer (feed consumer) data model, the author
// directory used to build ranking rationale text, and their repositories.
package viewer

import (
	"errors"
	"slices"
)

// Common errors for viewer operations.
var (
	ErrViewerNotFound = errors.New("viewer not found")
)

// Viewer is the person a feed is generated for. A fresh snapshot is
// supplied on every ranking call; the engine never mutates it.
type Viewer struct {
	ID          string `json:"id"`
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name,omitempty"`

	// Following holds the author IDs this viewer follows.
	Following []string `json:"following,omitempty"`

	// Interests are free-form tags matched fuzzily against post topics.
	Interests []string `json:"interests,omitempty"`

	// ProfileEmbedding is produced by the external embedding generator
	// and may be absent.
	ProfileEmbedding []float64 `json:"profile_embedding,omitempty"`
}

// Follows reports whether the viewer follows the given author.
func (v *Viewer) Follows(authorID string) bool {
	if v == nil {
		return false
	}
	return slices.Contains(v.Following, authorID)
}

// Clone returns a deep copy of the viewer.
func (v *Viewer) Clone() *Viewer {
	if v == nil {
		return nil
	}
	cp := *v
	if v.Following != nil {
		cp.Following = append([]string(nil), v.Following...)
	}
	if v.Interests != nil {
		cp.Interests = append([]string(nil), v.Interests...)
	}
	if v.ProfileEmbedding != nil {
		cp.ProfileEmbedding = append([]float64(nil), v.ProfileEmbedding...)
	}
	return &cp
}

// Author is the minimal author metadata used to build rationale text.
type Author struct {
	ID          string `json:"id"`
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name,omitempty"`
}

// AuthorLookup maps an author ID to display metadata. A miss returns
// (nil, false) and must never be treated as an error: rationale text simply
// omits the handle.
type AuthorLookup func(authorID string) (*Author, bool)
