package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/jupiterclapton/cenackle/services/profile-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/profile-service/internal/core/ports"
)

const DefaultLikesPageSize = 12

var _ ports.ProfileService = (*ProfileService)(nil)

// ProfileService owns one FeedStore per session (viewer x profile).
type ProfileService struct {
	api           ports.SocialAPI
	notifier      ports.Notifier
	cache         ports.ProfileCache
	likesPageSize int

	mu       sync.Mutex
	sessions map[ports.SessionKey]*FeedStore
	loads    singleflight.Group
}

func NewProfileService(api ports.SocialAPI, notifier ports.Notifier, cache ports.ProfileCache, likesPageSize int) *ProfileService {
	if likesPageSize <= 0 {
		likesPageSize = DefaultLikesPageSize
	}
	return &ProfileService{
		api:           api,
		notifier:      notifier,
		cache:         cache,
		likesPageSize: likesPageSize,
		sessions:      make(map[ports.SessionKey]*FeedStore),
	}
}

// --- SESSIONS ---

func (s *ProfileService) Open(ctx context.Context, key ports.SessionKey) (domain.Profile, error) {
	if store := s.session(key); store != nil {
		return store.Snapshot(), nil
	}

	// Concurrent opens of the same session share one upstream load.
	v, err, _ := s.loads.Do(key.String(), func() (any, error) {
		if store := s.session(key); store != nil {
			return store, nil
		}
		profile, err := s.load(ctx, key)
		if err != nil {
			return nil, err
		}
		store := NewFeedStore(*profile, s.api, s.notifier, WithCommitHook(s.invalidate(key)))

		s.mu.Lock()
		s.sessions[key] = store
		s.mu.Unlock()
		return store, nil
	})
	if err != nil {
		return domain.Profile{}, err
	}
	return v.(*FeedStore).Snapshot(), nil
}

func (s *ProfileService) Refresh(ctx context.Context, key ports.SessionKey) (domain.Profile, error) {
	s.Close(key)
	s.invalidate(key)(ctx, "refresh")
	return s.Open(ctx, key)
}

// Close forgets the session. Its in-flight mutations still run to completion.
func (s *ProfileService) Close(key ports.SessionKey) {
	s.mu.Lock()
	delete(s.sessions, key)
	s.mu.Unlock()
}

// InvalidateProfile forgets every live session and cached copy of the owner's
// profile, whichever key (username or id) they were opened with.
func (s *ProfileService) InvalidateProfile(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return nil
	}

	s.mu.Lock()
	for key, store := range s.sessions {
		if domain.SameID(store.Owner().ID, ownerID) {
			delete(s.sessions, key)
		}
	}
	s.mu.Unlock()

	if s.cache == nil {
		return nil
	}
	if err := s.cache.InvalidateProfile(ctx, ownerID); err != nil {
		return fmt.Errorf("invalidate profile %q: %w", ownerID, err)
	}
	return nil
}

// Drain waits for the in-flight mutations of every live session.
func (s *ProfileService) Drain(ctx context.Context) error {
	s.mu.Lock()
	stores := make([]*FeedStore, 0, len(s.sessions))
	for _, st := range s.sessions {
		stores = append(stores, st)
	}
	s.mu.Unlock()

	for _, st := range stores {
		if err := st.Drain(ctx); err != nil {
			return err
		}
	}
	return nil
}

// --- READS ---

func (s *ProfileService) Snapshot(key ports.SessionKey) (domain.Profile, error) {
	store, err := s.mustSession(key)
	if err != nil {
		return domain.Profile{}, err
	}
	return store.Snapshot(), nil
}

func (s *ProfileService) Post(key ports.SessionKey, postID string) (domain.Post, error) {
	store, err := s.mustSession(key)
	if err != nil {
		return domain.Post{}, err
	}
	return store.Post(postID)
}

func (s *ProfileService) LikedUsers(key ports.SessionKey, postID string, page int) ([]domain.LikedUser, int, error) {
	post, err := s.Post(key, postID)
	if err != nil {
		return nil, 0, err
	}
	all := post.Likes.LikedUsers
	return domain.LikedUsersPage(all, page, s.likesPageSize), len(all), nil
}

// --- MUTATIONS ---
// Guest sessions are shared by every anonymous caller, so they are read-only.

func (s *ProfileService) ToggleLike(ctx context.Context, key ports.SessionKey, postID string) (ports.Pending, error) {
	store, err := s.writableSession(key)
	if err != nil {
		return nil, err
	}
	return store.ToggleLike(ctx, postID)
}

func (s *ProfileService) AddComment(ctx context.Context, key ports.SessionKey, postID, text string) (ports.Pending, error) {
	store, err := s.writableSession(key)
	if err != nil {
		return nil, err
	}
	return store.AddComment(ctx, postID, text)
}

func (s *ProfileService) DeleteComment(ctx context.Context, key ports.SessionKey, postID, commentID string) (ports.Pending, error) {
	store, err := s.writableSession(key)
	if err != nil {
		return nil, err
	}
	return store.DeleteComment(ctx, postID, commentID)
}

func (s *ProfileService) DeletePost(ctx context.Context, key ports.SessionKey, postID string) (ports.Pending, error) {
	store, err := s.writableSession(key)
	if err != nil {
		return nil, err
	}
	return store.DeletePost(ctx, postID)
}

func (s *ProfileService) CreatePost(ctx context.Context, key ports.SessionKey, payload domain.NewPost) (domain.Post, error) {
	store, err := s.writableSession(key)
	if err != nil {
		return domain.Post{}, err
	}
	return store.CreatePost(ctx, payload)
}

// --- HELPERS ---

func (s *ProfileService) session(key ports.SessionKey) *FeedStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[key]
}

func (s *ProfileService) mustSession(key ports.SessionKey) (*FeedStore, error) {
	if store := s.session(key); store != nil {
		return store, nil
	}
	return nil, domain.ErrSessionNotFound
}

func (s *ProfileService) writableSession(key ports.SessionKey) (*FeedStore, error) {
	store, err := s.mustSession(key)
	if err != nil {
		return nil, err
	}
	if store.Viewer().IsGuest() {
		return nil, domain.ErrUnauthorized
	}
	return store, nil
}

// load reads the profile from the cache, or from upstream.
func (s *ProfileService) load(ctx context.Context, key ports.SessionKey) (*domain.Profile, error) {
	cacheKey := key.String()
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, cacheKey)
		if err != nil {
			slog.Warn("Profile cache read failed", "key", cacheKey, "error", err)
		} else if cached != nil {
			slog.Debug("Profile served from cache", "key", cacheKey)
			return cached, nil
		}
	}

	var (
		viewer domain.Viewer
		posts  *ports.UserPosts
	)

	if key.Profile != "" {
		// The profile is known: viewer and posts load side by side.
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			viewer, err = s.fetchViewer(gctx)
			return err
		})
		g.Go(func() error {
			var err error
			// Liked flags are derived below, once the viewer is known.
			posts, err = s.api.FetchUserPosts(gctx, key.Profile, "")
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("load profile %q: %w", key.Profile, err)
		}
	} else {
		var err error
		if viewer, err = s.fetchViewer(ctx); err != nil {
			return nil, fmt.Errorf("load own profile: %w", err)
		}
		if viewer.IsGuest() {
			return nil, domain.ErrProfileNotFound
		}
		if posts, err = s.api.FetchUserPosts(ctx, viewer.IdentityKey(), viewer.IdentityKey()); err != nil {
			return nil, fmt.Errorf("load own profile: %w", err)
		}
	}

	profile := &domain.Profile{
		Owner:  posts.Owner,
		Viewer: viewer,
		Posts:  withViewerLikes(posts.Posts, viewer),
	}
	if profile.Owner.IdentityKey() == "" {
		profile.Owner = domain.Author{ID: key.Profile, Username: key.Profile, Avatar: domain.AvatarFromSeed(key.Profile)}
		if key.Profile == "" {
			profile.Owner = viewer.AsAuthor()
		}
	}
	profile.IsOwn = key.Profile == "" || viewer.Owns(profile.Owner)

	if s.cache != nil {
		if err := s.cache.Put(ctx, cacheKey, *profile); err != nil {
			slog.Warn("Profile cache write failed", "key", cacheKey, "error", err)
		}
	}
	return profile, nil
}

// fetchViewer falls back to the guest viewer for anonymous sessions.
func (s *ProfileService) fetchViewer(ctx context.Context) (domain.Viewer, error) {
	viewer, err := s.api.FetchMe(ctx)
	if errors.Is(err, domain.ErrUnauthorized) {
		return domain.GuestViewer(), nil
	}
	return viewer, err
}

// withViewerLikes derives the liked flag of tracked posts from the viewer's membership.
func withViewerLikes(posts []domain.Post, viewer domain.Viewer) []domain.Post {
	out := make([]domain.Post, len(posts))
	for i, p := range posts {
		out[i] = p.Clone()
		if p.Likes.Tracked {
			out[i].Likes.Liked = p.Likes.LikedBy(viewer.IdentityKey())
		}
	}
	return out
}

func (s *ProfileService) invalidate(key ports.SessionKey) func(ctx context.Context, action string) {
	return func(ctx context.Context, action string) {
		if s.cache == nil {
			return
		}
		if err := s.cache.Invalidate(ctx, key.String()); err != nil {
			slog.Warn("Profile cache invalidation failed", "key", key.String(), "action", action, "error", err)
		}
	}
}
