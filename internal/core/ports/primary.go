package ports

import (
	"context"

	"github.com/jupiterclapton/cenackle/services/profile-service/internal/core/domain"
)

// --- DRIVING (what the service exposes) ---

// SessionKey identifies one viewer looking at one profile.
// An empty Profile means the viewer's own profile.
type SessionKey struct {
	Viewer  string
	Profile string
}

func (k SessionKey) String() string {
	profile := k.Profile
	if profile == "" {
		profile = "@me"
	}
	return k.Viewer + ":" + profile
}

// Pending is the handle of an in-flight mutation. The optimistic state is
// already visible when the caller receives it.
type Pending interface {
	ID() string
	Done() <-chan struct{}
	Wait(ctx context.Context) error
	// Err is nil until Done is closed, then the remote outcome.
	Err() error
}

type ProfileService interface {
	// Open loads the profile feed, or reuses the live session.
	Open(ctx context.Context, key SessionKey) (domain.Profile, error)
	Refresh(ctx context.Context, key SessionKey) (domain.Profile, error)
	Close(key SessionKey)
	// InvalidateProfile forgets cached copies after an upstream change.
	InvalidateProfile(ctx context.Context, ownerID string) error

	Snapshot(key SessionKey) (domain.Profile, error)
	Post(key SessionKey, postID string) (domain.Post, error)
	// LikedUsers returns the first page*size likers and the total count.
	LikedUsers(key SessionKey, postID string, page int) ([]domain.LikedUser, int, error)

	// Optimistic mutations
	ToggleLike(ctx context.Context, key SessionKey, postID string) (Pending, error)
	AddComment(ctx context.Context, key SessionKey, postID, text string) (Pending, error)
	DeleteComment(ctx context.Context, key SessionKey, postID, commentID string) (Pending, error)
	DeletePost(ctx context.Context, key SessionKey, postID string) (Pending, error)

	// CreatePost waits for the server before inserting.
	CreatePost(ctx context.Context, key SessionKey, payload domain.NewPost) (domain.Post, error)
}

type CatalogService interface {
	ProductDetails(ctx context.Context, productID string) (*domain.ProductDetails, error)
}
