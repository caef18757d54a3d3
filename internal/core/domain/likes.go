package domain

import "slices"

// LikeState is the like-related slice of a post.
// When Tracked is false the post is in count-only mode: LikeCount is the only
// source of truth and LikedUsers is ignored.
type LikeState struct {
	Liked      bool        `json:"liked"`
	LikeCount  int         `json:"likeCount"`
	LikedUsers []LikedUser `json:"likedUsers,omitempty"`
	Tracked    bool        `json:"tracked"`
}

// NewTrackedLikes builds a state backed by a membership set. Duplicates are
// dropped and liked is derived from the viewer's membership.
func NewTrackedLikes(users []LikedUser, viewerID string) LikeState {
	set := DedupeLikedUsers(users)
	return LikeState{
		Liked:      viewerID != "" && indexOfLiker(set, viewerID) >= 0,
		LikeCount:  len(set),
		LikedUsers: set,
		Tracked:    true,
	}
}

// NewCountOnlyLikes builds a state where only the aggregate is known.
func NewCountOnlyLikes(count int, liked bool) LikeState {
	return LikeState{Liked: liked, LikeCount: max(count, 0)}
}

// ComputeToggle returns the state after the viewer toggles their like.
// It never mutates the input.
func ComputeToggle(current LikeState, viewer Viewer) LikeState {
	viewerID := viewer.IdentityKey()

	if current.Tracked && viewerID != "" {
		next := LikeState{Tracked: true}
		if i := indexOfLiker(current.LikedUsers, viewerID); i >= 0 {
			next.LikedUsers = slices.Delete(slices.Clone(current.LikedUsers), i, i+1)
			next.Liked = false
		} else {
			next.LikedUsers = append(slices.Clone(current.LikedUsers), viewer.AsLikedUser())
			next.Liked = true
		}
		next.LikeCount = len(next.LikedUsers)
		return next
	}

	// Count-only (or anonymous viewer): flip and adjust the aggregate. A tracked
	// set cannot follow an anonymous toggle, so the result degrades to count-only.
	next := LikeState{Liked: !current.Liked}
	if next.Liked {
		next.LikeCount = current.LikeCount + 1
	} else {
		next.LikeCount = max(current.LikeCount-1, 0)
	}
	return next
}

// LikedBy reports whether the id is a member of the tracked set.
// In count-only mode the answer is the liked flag from the viewer's perspective.
func (s LikeState) LikedBy(id string) bool {
	if !s.Tracked {
		return s.Liked
	}
	return indexOfLiker(s.LikedUsers, id) >= 0
}

// Consistent checks the count invariant of tracked states.
func (s LikeState) Consistent() bool {
	if !s.Tracked {
		return s.LikeCount >= 0
	}
	return s.LikeCount == len(s.LikedUsers)
}

func (s LikeState) Clone() LikeState {
	out := s
	if s.LikedUsers != nil {
		out.LikedUsers = slices.Clone(s.LikedUsers)
	}
	return out
}

// DedupeLikedUsers keeps the first entry per identifier, preserving order.
func DedupeLikedUsers(users []LikedUser) []LikedUser {
	out := make([]LikedUser, 0, len(users))
	for _, u := range users {
		key := u.IdentityKey()
		if key == "" || indexOfLiker(out, key) >= 0 {
			continue
		}
		out = append(out, u)
	}
	return out
}

// LikedUsersPage returns the first page*size liked users (the "show more" window).
func LikedUsersPage(users []LikedUser, page, size int) []LikedUser {
	if page < 1 || size < 1 {
		return []LikedUser{}
	}
	n := min(page*size, len(users))
	return slices.Clone(users[:n])
}

func indexOfLiker(users []LikedUser, id string) int {
	return slices.IndexFunc(users, func(u LikedUser) bool {
		return SameID(u.IdentityKey(), id)
	})
}
