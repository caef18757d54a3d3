package ports

import (
	"context"

	"github.com/jupiterclapton/cenackle/services/profile-service/internal/core/domain"
)

// --- DRIVEN (what the service needs) ---

// UserPosts is a profile owner with their posts, already normalized.
type UserPosts struct {
	Owner domain.Author
	Posts []domain.Post
}

// SocialAPI is the upstream REST backend. Credentials travel in the context.
type SocialAPI interface {
	FetchMe(ctx context.Context) (domain.Viewer, error)
	// FetchUserPosts needs the viewer id to derive the "liked" flag of each post.
	FetchUserPosts(ctx context.Context, userID, viewerID string) (*UserPosts, error)

	LikePost(ctx context.Context, postID string) error
	CommentOnPost(ctx context.Context, postID, text string) (domain.Comment, error)
	DeleteComment(ctx context.Context, postID, commentID string) error
	DeletePost(ctx context.Context, postID string) error
	CreatePost(ctx context.Context, payload domain.NewPost) (domain.Post, error)
}

// CatalogAPI serves the product pages.
type CatalogAPI interface {
	FetchProduct(ctx context.Context, productID string) (domain.Product, error)
	FetchProducts(ctx context.Context) ([]domain.Product, error)
}

// Notification describes the outcome of one user action.
type Notification struct {
	Action   string
	EntityID string
	Message  string
	Err      error
}

// Notifier is the toast / log sink. Each mutation attempt reaches it exactly once.
type Notifier interface {
	NotifySuccess(ctx context.Context, n Notification)
	NotifyFailure(ctx context.Context, n Notification)
}

// ProfileCache keeps normalized profiles between sessions.
// Get returns (nil, nil) on a miss.
type ProfileCache interface {
	Get(ctx context.Context, key string) (*domain.Profile, error)
	Put(ctx context.Context, key string, profile domain.Profile) error
	Invalidate(ctx context.Context, key string) error
	// InvalidateProfile drops every entry whose owner has this id, whatever
	// key (username or id) the entry was stored under.
	InvalidateProfile(ctx context.Context, ownerID string) error
}
