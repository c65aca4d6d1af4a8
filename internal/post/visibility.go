package post

// VisibleCandidates applies the visibility filter that runs before posts
// reach the ranking engine: soft-deleted posts are dropped, and posts whose
// fact-check verdict is blocked are dropped for everyone except their
// author. Posts with no verdict yet remain visible; the ranking engine
// treats the missing signal as neutral.
func VisibleCandidates(posts []*Post, viewerID string) []*Post {
	out := make([]*Post, 0, len(posts))
	for _, p := range posts {
		if p == nil || p.DeletedAt != nil {
			continue
		}
		if p.FactCheckStatus == FactCheckBlocked && p.AuthorID != viewerID {
			continue
		}
		out = append(out, p)
	}
	return out
}
