package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jupiterclapton/cenackle/services/profile-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/profile-service/internal/core/ports"
)

// postEntry is the store-private bookkeeping around a post.
type postEntry struct {
	post domain.Post

	// Tombstones: optimistically removed, still holding their position.
	deleted        bool
	hiddenComments map[string]bool

	// In-flight like toggles, oldest first (see ToggleLike).
	toggles []*likeToggle
}

// likeToggle holds the like state a toggle replaced.
type likeToggle struct {
	before domain.LikeState
}

func (e *postEntry) visible() domain.Post {
	p := e.post.Clone()
	if len(e.hiddenComments) > 0 {
		p.Comments = slices.DeleteFunc(p.Comments, func(c domain.Comment) bool {
			return e.hiddenComments[c.ID]
		})
	}
	return p
}

// FeedStore is the single owner of a profile feed. Views only ever receive
// deep copies; every write goes through the mutation coordinator.
type FeedStore struct {
	mu      sync.Mutex
	viewer  domain.Viewer
	owner   domain.Author
	isOwn   bool
	entries []*postEntry

	api   ports.SocialAPI
	coord *coordinator
}

type StoreOption func(*FeedStore)

// WithCommitHook is called after every confirmed mutation (cache invalidation).
func WithCommitHook(fn func(ctx context.Context, action string)) StoreOption {
	return func(s *FeedStore) { s.coord.onCommit = fn }
}

func NewFeedStore(profile domain.Profile, api ports.SocialAPI, notifier ports.Notifier, opts ...StoreOption) *FeedStore {
	s := &FeedStore{
		viewer: profile.Viewer,
		owner:  profile.Owner,
		isOwn:  profile.IsOwn,
		api:    api,
	}
	s.coord = &coordinator{mu: &s.mu, notifier: notifier}
	s.entries = make([]*postEntry, 0, len(profile.Posts))
	for _, p := range profile.Posts {
		s.entries = append(s.entries, &postEntry{post: p.Clone()})
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// --- READS (immutable snapshots) ---

func (s *FeedStore) Snapshot() domain.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()

	posts := make([]domain.Post, 0, len(s.entries))
	for _, e := range s.entries {
		if e.deleted {
			continue
		}
		posts = append(posts, e.visible())
	}
	return domain.Profile{Owner: s.owner, Viewer: s.viewer, Posts: posts, IsOwn: s.isOwn}
}

func (s *FeedStore) Post(postID string) (domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.find(postID)
	if e == nil {
		return domain.Post{}, domain.ErrPostNotFound
	}
	return e.visible(), nil
}

func (s *FeedStore) Viewer() domain.Viewer {
	return s.viewer
}

func (s *FeedStore) Owner() domain.Author {
	return s.owner
}

// --- OPTIMISTIC MUTATIONS ---

// ToggleLike flips the viewer's like at once and confirms it upstream.
//
// Overlapping toggles compose in issuance order and stay on the post's stack
// until they resolve. A failed toggle on top of the stack restores the state
// it replaced. A failed toggle further down hands that state to the toggle
// above it, so the net effect of a failure is always its own removal.
func (s *FeedStore) ToggleLike(ctx context.Context, postID string) (ports.Pending, error) {
	var (
		entry  *postEntry
		toggle *likeToggle
	)
	return s.coord.run(ctx, mutation{
		action:   ActionToggleLike,
		entityID: postID,
		success:  "Like updated",
		failure:  "Could not update like",
		apply: func() (func(), error) {
			entry = s.find(postID)
			if entry == nil {
				return nil, domain.ErrPostNotFound
			}

			toggle = &likeToggle{before: entry.post.Likes.Clone()}
			entry.post.Likes = domain.ComputeToggle(entry.post.Likes, s.viewer)
			entry.toggles = append(entry.toggles, toggle)

			return func() {
				i := slices.Index(entry.toggles, toggle)
				if i < 0 {
					return
				}
				if i == len(entry.toggles)-1 {
					entry.post.Likes = toggle.before
				} else {
					slog.Debug("Like rollback handed to a later toggle", "post_id", postID)
					entry.toggles[i+1].before = toggle.before
				}
				entry.toggles = slices.Delete(entry.toggles, i, i+1)
			}, nil
		},
		remote: func(ctx context.Context) (any, error) {
			return nil, s.api.LikePost(ctx, postID)
		},
		commit: func(any) error {
			entry.toggles = slices.DeleteFunc(entry.toggles, func(t *likeToggle) bool { return t == toggle })
			return nil
		},
	})
}

// AddComment appends a pending comment right away; the server comment replaces it on success.
func (s *FeedStore) AddComment(ctx context.Context, postID, text string) (ports.Pending, error) {
	text = strings.TrimSpace(text)
	tempID := domain.PendingCommentID(uuid.NewString())

	var entry *postEntry
	return s.coord.run(ctx, mutation{
		action:   ActionAddComment,
		entityID: postID,
		success:  "Comment added",
		failure:  "Could not add comment",
		apply: func() (func(), error) {
			if text == "" {
				return nil, domain.ErrEmptyComment
			}
			entry = s.find(postID)
			if entry == nil {
				return nil, domain.ErrPostNotFound
			}

			entry.post.Comments = append(slices.Clone(entry.post.Comments), domain.Comment{
				ID:        tempID,
				Text:      text,
				Author:    s.viewer.AsAuthor(),
				CreatedAt: time.Now().UTC(),
			})

			return func() {
				entry.post.Comments = slices.DeleteFunc(slices.Clone(entry.post.Comments), func(c domain.Comment) bool {
					return c.ID == tempID
				})
			}, nil
		},
		remote: func(ctx context.Context) (any, error) {
			return s.api.CommentOnPost(ctx, postID, text)
		},
		commit: func(result any) error {
			c, ok := result.(domain.Comment)
			if !ok || c.ID == "" {
				return fmt.Errorf("%w: comment without id", domain.ErrMalformedResponse)
			}
			entry.post = mergeComment(entry.post, tempID, c)
			return nil
		},
	})
}

// DeleteComment hides the comment at once. It keeps its slot, so a failure
// brings it back at its original position.
func (s *FeedStore) DeleteComment(ctx context.Context, postID, commentID string) (ports.Pending, error) {
	var entry *postEntry
	return s.coord.run(ctx, mutation{
		action:   ActionDeleteComment,
		entityID: commentID,
		success:  "Comment deleted",
		failure:  "Could not delete comment",
		apply: func() (func(), error) {
			entry = s.find(postID)
			if entry == nil {
				return nil, domain.ErrPostNotFound
			}
			// Pending comments have no server id to delete yet.
			i := entry.post.CommentIndex(commentID)
			if i < 0 || entry.post.Comments[i].Pending() || entry.hiddenComments[commentID] {
				return nil, domain.ErrCommentNotFound
			}
			if entry.hiddenComments == nil {
				entry.hiddenComments = make(map[string]bool)
			}
			entry.hiddenComments[commentID] = true

			return func() { delete(entry.hiddenComments, commentID) }, nil
		},
		remote: func(ctx context.Context) (any, error) {
			return nil, s.api.DeleteComment(ctx, postID, commentID)
		},
		commit: func(any) error {
			delete(entry.hiddenComments, commentID)
			entry.post.Comments = slices.DeleteFunc(slices.Clone(entry.post.Comments), func(c domain.Comment) bool {
				return c.ID == commentID
			})
			return nil
		},
	})
}

// DeletePost hides the post at once; a failure restores it in place.
func (s *FeedStore) DeletePost(ctx context.Context, postID string) (ports.Pending, error) {
	var entry *postEntry
	return s.coord.run(ctx, mutation{
		action:   ActionDeletePost,
		entityID: postID,
		success:  "Post deleted",
		failure:  "Could not delete post",
		apply: func() (func(), error) {
			entry = s.find(postID)
			if entry == nil {
				return nil, domain.ErrPostNotFound
			}
			entry.deleted = true
			return func() { entry.deleted = false }, nil
		},
		remote: func(ctx context.Context) (any, error) {
			return nil, s.api.DeletePost(ctx, postID)
		},
		commit: func(any) error {
			s.entries = slices.DeleteFunc(s.entries, func(e *postEntry) bool { return e == entry })
			return nil
		},
	})
}

// CreatePost waits for the server, then puts the post on top of the feed.
func (s *FeedStore) CreatePost(ctx context.Context, payload domain.NewPost) (domain.Post, error) {
	n := ports.Notification{Action: ActionCreatePost}

	if payload.Empty() {
		return domain.Post{}, domain.ErrEmptyPost
	}

	post, err := s.api.CreatePost(ctx, payload)
	if err == nil && post.ID == "" {
		err = fmt.Errorf("%w: post without id", domain.ErrMalformedResponse)
	}
	if err != nil {
		n.Err, n.Message = err, "Could not create post"
		s.coord.notifier.NotifyFailure(ctx, n)
		return domain.Post{}, err
	}

	if post.Author.IdentityKey() == "" {
		post.Author = s.viewer.AsAuthor()
	}
	post.Likes = domain.NewTrackedLikes(nil, s.viewer.IdentityKey())
	if post.Comments == nil {
		post.Comments = []domain.Comment{}
	}

	s.mu.Lock()
	s.entries = slices.Insert(s.entries, 0, &postEntry{post: post.Clone()})
	s.mu.Unlock()

	n.EntityID, n.Message = post.ID, "Post created"
	s.coord.notifier.NotifySuccess(ctx, n)
	if s.coord.onCommit != nil {
		s.coord.onCommit(ctx, ActionCreatePost)
	}
	return post.Clone(), nil
}

// Drain waits for every in-flight mutation.
func (s *FeedStore) Drain(ctx context.Context) error {
	return s.coord.drain(ctx)
}

// --- HELPERS (callers hold s.mu) ---

func (s *FeedStore) find(postID string) *postEntry {
	for _, e := range s.entries {
		if e.post.ID == postID && !e.deleted {
			return e
		}
	}
	return nil
}

// mergeComment swaps the pending comment for the server one. Applying it
// twice yields the same post as applying it once.
func mergeComment(post domain.Post, tempID string, server domain.Comment) domain.Post {
	if post.CommentIndex(server.ID) >= 0 {
		return post
	}
	i := post.CommentIndex(tempID)
	if i < 0 {
		return post
	}

	local := post.Comments[i]
	if server.Text == "" {
		server.Text = local.Text
	}
	if server.Author.IdentityKey() == "" {
		server.Author = local.Author
	}
	if server.CreatedAt.IsZero() {
		server.CreatedAt = local.CreatedAt
	}

	out := post
	out.Comments = slices.Clone(post.Comments)
	out.Comments[i] = server
	return out
}
