package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupiterclapton/cenackle/services/profile-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/profile-service/internal/core/ports"
)

var errBoom = errors.New("boom")

func trackedPost(id string, viewerID string, liker ...string) domain.Post {
	return domain.Post{
		ID:       id,
		Likes:    domain.NewTrackedLikes(likers(liker...), viewerID),
		Comments: []domain.Comment{},
	}
}

func mustPost(t *testing.T, s *FeedStore, id string) domain.Post {
	t.Helper()
	p, err := s.Post(id)
	require.NoError(t, err)
	return p
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// --- LIKES ---

func TestToggleLike_FailureRevertsExactly(t *testing.T) {
	g := make(gate)
	api := &fakeAPI{like: func(ctx context.Context, _ string) error { return g.wait(ctx) }}
	rec := &recorder{}
	initial := trackedPost("p1", "v4", "u1", "u2", "u3")
	store := NewFeedStore(newProfile("v4", initial), api, rec)

	p, err := store.ToggleLike(context.Background(), "p1")
	require.NoError(t, err)

	// Optimistic state is visible before the remote answers
	optimistic := mustPost(t, store, "p1").Likes
	assert.True(t, optimistic.Liked)
	assert.Equal(t, 4, optimistic.LikeCount)
	assert.Equal(t, []string{"u1", "u2", "u3", "v4"}, likerIDs(optimistic))

	g <- errBoom
	err = p.Wait(waitCtx(t))
	require.ErrorIs(t, err, domain.ErrRemote)
	require.ErrorIs(t, err, errBoom)

	assert.Equal(t, initial.Likes, mustPost(t, store, "p1").Likes)
	success, failure := rec.counts()
	assert.Equal(t, 0, success)
	assert.Equal(t, 1, failure)
	assert.Equal(t, ActionToggleLike, rec.failures[0].Action)
	assert.Equal(t, "p1", rec.failures[0].EntityID)
}

func TestToggleLike_MemberUnlikeConfirmed(t *testing.T) {
	rec := &recorder{}
	store := NewFeedStore(newProfile("u2", trackedPost("p1", "u2", "u1", "u2", "u3")), &fakeAPI{}, rec)

	p, err := store.ToggleLike(context.Background(), "p1")
	require.NoError(t, err)
	require.NoError(t, p.Wait(waitCtx(t)))

	likes := mustPost(t, store, "p1").Likes
	assert.False(t, likes.Liked)
	assert.Equal(t, 2, likes.LikeCount)
	assert.Equal(t, []string{"u1", "u3"}, likerIDs(likes))

	success, failure := rec.counts()
	assert.Equal(t, 1, success)
	assert.Equal(t, 0, failure)
}

func TestToggleLike_RapidDoubleToggleIsNetZero(t *testing.T) {
	g := make(gate)
	api := &fakeAPI{like: func(ctx context.Context, _ string) error { return g.wait(ctx) }}
	initial := trackedPost("p1", "v1", "u1")
	store := NewFeedStore(newProfile("v1", initial), api, &recorder{})

	first, err := store.ToggleLike(context.Background(), "p1")
	require.NoError(t, err)
	second, err := store.ToggleLike(context.Background(), "p1")
	require.NoError(t, err)

	assert.Equal(t, initial.Likes, mustPost(t, store, "p1").Likes)

	g <- nil
	g <- nil
	require.NoError(t, first.Wait(waitCtx(t)))
	require.NoError(t, second.Wait(waitCtx(t)))

	assert.Equal(t, initial.Likes, mustPost(t, store, "p1").Likes)
}

// arrivals hands each remote call its own gate, in arrival order.
func arrivals() (chan gate, func(ctx context.Context) error) {
	ch := make(chan gate)
	return ch, func(ctx context.Context) error {
		g := make(gate)
		ch <- g
		return g.wait(ctx)
	}
}

func TestToggleLike_StackedFailuresResolvingNewestFirst(t *testing.T) {
	arrived, call := arrivals()
	api := &fakeAPI{like: func(ctx context.Context, _ string) error { return call(ctx) }}
	initial := trackedPost("p1", "v1", "u1")
	store := NewFeedStore(newProfile("v1", initial), api, &recorder{})

	first, err := store.ToggleLike(context.Background(), "p1")
	require.NoError(t, err)
	g1 := <-arrived
	afterFirst := mustPost(t, store, "p1").Likes

	second, err := store.ToggleLike(context.Background(), "p1")
	require.NoError(t, err)
	g2 := <-arrived

	g2 <- errBoom
	require.Error(t, second.Wait(waitCtx(t)))
	assert.Equal(t, afterFirst, mustPost(t, store, "p1").Likes)

	g1 <- errBoom
	require.Error(t, first.Wait(waitCtx(t)))
	assert.Equal(t, initial.Likes, mustPost(t, store, "p1").Likes)
}

func TestToggleLike_StackedFailuresResolvingOldestFirst(t *testing.T) {
	arrived, call := arrivals()
	api := &fakeAPI{like: func(ctx context.Context, _ string) error { return call(ctx) }}
	initial := trackedPost("p1", "v1", "u1")
	rec := &recorder{}
	store := NewFeedStore(newProfile("v1", initial), api, rec)

	first, err := store.ToggleLike(context.Background(), "p1")
	require.NoError(t, err)
	g1 := <-arrived
	second, err := store.ToggleLike(context.Background(), "p1")
	require.NoError(t, err)
	g2 := <-arrived

	g1 <- errBoom
	require.Error(t, first.Wait(waitCtx(t)))
	// The second toggle is still in flight and keeps its optimistic state.
	assert.Equal(t, initial.Likes, mustPost(t, store, "p1").Likes)

	g2 <- errBoom
	require.Error(t, second.Wait(waitCtx(t)))
	assert.Equal(t, initial.Likes, mustPost(t, store, "p1").Likes)
	_, failures := rec.counts()
	assert.Equal(t, 2, failures)
}

func TestToggleLike_MiddleFailureRemovesOnlyItself(t *testing.T) {
	arrived, call := arrivals()
	api := &fakeAPI{like: func(ctx context.Context, _ string) error { return call(ctx) }}
	initial := trackedPost("p1", "v1", "u1")
	store := NewFeedStore(newProfile("v1", initial), api, &recorder{})

	var pendings []ports.Pending
	var gates []gate
	for range 3 {
		p, err := store.ToggleLike(context.Background(), "p1")
		require.NoError(t, err)
		pendings = append(pendings, p)
		gates = append(gates, <-arrived)
	}

	gates[1] <- errBoom
	require.Error(t, pendings[1].Wait(waitCtx(t)))
	gates[2] <- errBoom
	require.Error(t, pendings[2].Wait(waitCtx(t)))
	// Only the first toggle survives.
	assert.True(t, mustPost(t, store, "p1").Likes.Liked)
	assert.Equal(t, 2, mustPost(t, store, "p1").Likes.LikeCount)

	gates[0] <- nil
	require.NoError(t, pendings[0].Wait(waitCtx(t)))
	assert.True(t, mustPost(t, store, "p1").Likes.Liked)
	assert.Equal(t, 2, mustPost(t, store, "p1").Likes.LikeCount)
}

func TestToggleLike_LaterToggleWinsOverEarlierFailure(t *testing.T) {
	arrived, call := arrivals()
	api := &fakeAPI{like: func(ctx context.Context, _ string) error { return call(ctx) }}
	initial := trackedPost("p1", "v1", "u1")
	store := NewFeedStore(newProfile("v1", initial), api, &recorder{})

	first, err := store.ToggleLike(context.Background(), "p1")
	require.NoError(t, err)
	g1 := <-arrived
	second, err := store.ToggleLike(context.Background(), "p1")
	require.NoError(t, err)
	g2 := <-arrived

	g1 <- errBoom
	require.Error(t, first.Wait(waitCtx(t)))
	// The second toggle already superseded the first one.
	assert.Equal(t, initial.Likes, mustPost(t, store, "p1").Likes)

	g2 <- nil
	require.NoError(t, second.Wait(waitCtx(t)))
	assert.Equal(t, initial.Likes, mustPost(t, store, "p1").Likes)
}

func TestToggleLike_CountOnlyPost(t *testing.T) {
	post := domain.Post{ID: "p1", Likes: domain.NewCountOnlyLikes(10, false)}
	store := NewFeedStore(newProfile("v1", post), &fakeAPI{}, &recorder{})

	p, err := store.ToggleLike(context.Background(), "p1")
	require.NoError(t, err)
	require.NoError(t, p.Wait(waitCtx(t)))

	likes := mustPost(t, store, "p1").Likes
	assert.True(t, likes.Liked)
	assert.Equal(t, 11, likes.LikeCount)
}

func TestToggleLike_UnknownPost(t *testing.T) {
	rec := &recorder{}
	store := NewFeedStore(newProfile("v1"), &fakeAPI{}, rec)

	_, err := store.ToggleLike(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrPostNotFound)

	success, failure := rec.counts()
	assert.Zero(t, success+failure)
}

func TestToggleLike_CallerCancellationDoesNotAbortMutation(t *testing.T) {
	g := make(gate)
	api := &fakeAPI{like: func(ctx context.Context, _ string) error { return g.wait(ctx) }}
	store := NewFeedStore(newProfile("v1", trackedPost("p1", "v1")), api, &recorder{})

	ctx, cancel := context.WithCancel(context.Background())
	p, err := store.ToggleLike(ctx, "p1")
	require.NoError(t, err)
	cancel()

	g <- nil
	require.NoError(t, p.Wait(waitCtx(t)))
	assert.True(t, mustPost(t, store, "p1").Likes.Liked)
}

func TestToggleLike_PanickingRemoteRollsBack(t *testing.T) {
	api := &fakeAPI{like: func(context.Context, string) error { panic("decoder exploded") }}
	rec := &recorder{}
	initial := trackedPost("p1", "v1")
	store := NewFeedStore(newProfile("v1", initial), api, rec)

	p, err := store.ToggleLike(context.Background(), "p1")
	require.NoError(t, err)

	err = p.Wait(waitCtx(t))
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
	assert.Equal(t, initial.Likes, mustPost(t, store, "p1").Likes)
	_, failure := rec.counts()
	assert.Equal(t, 1, failure)
}

// --- COMMENTS ---

func TestAddComment_PendingThenReconciled(t *testing.T) {
	g := make(gate)
	api := &fakeAPI{comment: func(ctx context.Context, _, text string) (domain.Comment, error) {
		if err := g.wait(ctx); err != nil {
			return domain.Comment{}, err
		}
		return domain.Comment{ID: "c-server", Text: text}, nil
	}}
	post := trackedPost("p1", "v1")
	post.Comments = comments("c1", "c2")
	store := NewFeedStore(newProfile("v1", post), api, &recorder{})

	p, err := store.AddComment(context.Background(), "p1", "  hello  ")
	require.NoError(t, err)

	pendingPost := mustPost(t, store, "p1")
	require.Len(t, pendingPost.Comments, 3)
	local := pendingPost.Comments[2]
	assert.True(t, local.Pending())
	assert.Equal(t, "hello", local.Text)
	assert.Equal(t, "v1", local.Author.ID)

	g <- nil
	require.NoError(t, p.Wait(waitCtx(t)))

	final := mustPost(t, store, "p1")
	assert.Equal(t, []string{"c1", "c2", "c-server"}, commentIDs(final))
	// Fields the server left out are kept from the local comment.
	assert.Equal(t, "v1", final.Comments[2].Author.ID)
	assert.Equal(t, local.CreatedAt, final.Comments[2].CreatedAt)
}

func TestAddComment_FailureRemovesPending(t *testing.T) {
	api := &fakeAPI{comment: func(context.Context, string, string) (domain.Comment, error) {
		return domain.Comment{}, errBoom
	}}
	rec := &recorder{}
	post := trackedPost("p1", "v1")
	post.Comments = comments("c1")
	store := NewFeedStore(newProfile("v1", post), api, rec)

	p, err := store.AddComment(context.Background(), "p1", "hi")
	require.NoError(t, err)
	require.Error(t, p.Wait(waitCtx(t)))

	assert.Equal(t, []string{"c1"}, commentIDs(mustPost(t, store, "p1")))
	_, failure := rec.counts()
	assert.Equal(t, 1, failure)
}

func TestAddComment_ResponseWithoutIDIsAFailure(t *testing.T) {
	api := &fakeAPI{comment: func(context.Context, string, string) (domain.Comment, error) {
		return domain.Comment{Text: "no id"}, nil
	}}
	store := NewFeedStore(newProfile("v1", trackedPost("p1", "v1")), api, &recorder{})

	p, err := store.AddComment(context.Background(), "p1", "hi")
	require.NoError(t, err)

	assert.ErrorIs(t, p.Wait(waitCtx(t)), domain.ErrMalformedResponse)
	assert.Empty(t, mustPost(t, store, "p1").Comments)
}

func TestAddComment_EmptyText(t *testing.T) {
	store := NewFeedStore(newProfile("v1", trackedPost("p1", "v1")), &fakeAPI{}, &recorder{})

	_, err := store.AddComment(context.Background(), "p1", "   ")
	assert.ErrorIs(t, err, domain.ErrEmptyComment)
}

func TestMergeComment_Idempotent(t *testing.T) {
	tempID := domain.PendingCommentID("t")
	post := domain.Post{ID: "p1", Comments: []domain.Comment{{ID: "c1"}, {ID: tempID, Text: "x"}}}
	server := domain.Comment{ID: "c2", Text: "x"}

	once := mergeComment(post, tempID, server)
	twice := mergeComment(once, tempID, server)

	assert.Equal(t, once, twice)
	assert.Equal(t, []string{"c1", "c2"}, commentIDs(twice))
	// The input is not modified.
	assert.Equal(t, tempID, post.Comments[1].ID)
}

func TestDeleteComment_FailureRestoresPosition(t *testing.T) {
	g := make(gate)
	api := &fakeAPI{deleteComment: func(ctx context.Context, _, _ string) error { return g.wait(ctx) }}
	post := trackedPost("p1", "v1")
	post.Comments = comments("c1", "c2", "c3", "c4")
	store := NewFeedStore(newProfile("v1", post), api, &recorder{})

	p, err := store.DeleteComment(context.Background(), "p1", "c2")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c3", "c4"}, commentIDs(mustPost(t, store, "p1")))

	g <- errBoom
	require.Error(t, p.Wait(waitCtx(t)))

	restored := mustPost(t, store, "p1")
	assert.Equal(t, []string{"c1", "c2", "c3", "c4"}, commentIDs(restored))
	assert.Equal(t, post.Comments[1], restored.Comments[1])
}

func TestDeleteComment_Confirmed(t *testing.T) {
	post := trackedPost("p1", "v1")
	post.Comments = comments("c1", "c2")
	store := NewFeedStore(newProfile("v1", post), &fakeAPI{}, &recorder{})

	p, err := store.DeleteComment(context.Background(), "p1", "c1")
	require.NoError(t, err)
	require.NoError(t, p.Wait(waitCtx(t)))

	assert.Equal(t, []string{"c2"}, commentIDs(mustPost(t, store, "p1")))

	_, err = store.DeleteComment(context.Background(), "p1", "c1")
	assert.ErrorIs(t, err, domain.ErrCommentNotFound)
}

func TestDeleteComment_RejectsPendingAndHidden(t *testing.T) {
	g := make(gate)
	api := &fakeAPI{
		comment: func(ctx context.Context, _, text string) (domain.Comment, error) {
			if err := g.wait(ctx); err != nil {
				return domain.Comment{}, err
			}
			return domain.Comment{ID: "c9", Text: text}, nil
		},
		deleteComment: func(ctx context.Context, _, _ string) error { return g.wait(ctx) },
	}
	post := trackedPost("p1", "v1")
	post.Comments = comments("c1")
	store := NewFeedStore(newProfile("v1", post), api, &recorder{})

	add, err := store.AddComment(context.Background(), "p1", "draft")
	require.NoError(t, err)
	pendingID := mustPost(t, store, "p1").Comments[1].ID
	_, err = store.DeleteComment(context.Background(), "p1", pendingID)
	assert.ErrorIs(t, err, domain.ErrCommentNotFound)

	del, err := store.DeleteComment(context.Background(), "p1", "c1")
	require.NoError(t, err)
	_, err = store.DeleteComment(context.Background(), "p1", "c1")
	assert.ErrorIs(t, err, domain.ErrCommentNotFound)

	g <- nil
	g <- nil
	require.NoError(t, add.Wait(waitCtx(t)))
	require.NoError(t, del.Wait(waitCtx(t)))
	assert.Equal(t, []string{"c9"}, commentIDs(mustPost(t, store, "p1")))
}

// --- POSTS ---

func TestDeletePost_FailureRestoresInPlace(t *testing.T) {
	g := make(gate)
	api := &fakeAPI{deletePost: func(ctx context.Context, _ string) error { return g.wait(ctx) }}
	store := NewFeedStore(newProfile("v1",
		trackedPost("p1", "v1"), trackedPost("p2", "v1"), trackedPost("p3", "v1"),
	), api, &recorder{})

	p, err := store.DeletePost(context.Background(), "p2")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p3"}, postIDs(store.Snapshot()))
	_, err = store.Post("p2")
	assert.ErrorIs(t, err, domain.ErrPostNotFound)

	g <- errBoom
	require.Error(t, p.Wait(waitCtx(t)))
	assert.Equal(t, []string{"p1", "p2", "p3"}, postIDs(store.Snapshot()))
}

func TestDeletePost_Confirmed(t *testing.T) {
	var hooked []string
	store := NewFeedStore(newProfile("v1", trackedPost("p1", "v1"), trackedPost("p2", "v1")), &fakeAPI{}, &recorder{},
		WithCommitHook(func(_ context.Context, action string) { hooked = append(hooked, action) }))

	p, err := store.DeletePost(context.Background(), "p1")
	require.NoError(t, err)
	require.NoError(t, p.Wait(waitCtx(t)))

	assert.Equal(t, []string{"p2"}, postIDs(store.Snapshot()))
	assert.Equal(t, []string{ActionDeletePost}, hooked)
}

func TestCreatePost_PrependsAfterServer(t *testing.T) {
	rec := &recorder{}
	store := NewFeedStore(newProfile("v1", trackedPost("p1", "v1")), &fakeAPI{}, rec)

	post, err := store.CreatePost(context.Background(), domain.NewPost{Text: "fresh"})
	require.NoError(t, err)

	assert.Equal(t, "new", post.ID)
	assert.Equal(t, "v1", post.Author.ID)
	assert.True(t, post.Likes.Tracked)
	assert.Equal(t, []string{"new", "p1"}, postIDs(store.Snapshot()))
	success, _ := rec.counts()
	assert.Equal(t, 1, success)
}

func TestCreatePost_Failures(t *testing.T) {
	rec := &recorder{}
	api := &fakeAPI{createPost: func(context.Context, domain.NewPost) (domain.Post, error) {
		return domain.Post{}, errBoom
	}}
	store := NewFeedStore(newProfile("v1"), api, rec)

	_, err := store.CreatePost(context.Background(), domain.NewPost{Text: "  "})
	assert.ErrorIs(t, err, domain.ErrEmptyPost)

	_, err = store.CreatePost(context.Background(), domain.NewPost{Text: "x"})
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, store.Snapshot().Posts)

	success, failure := rec.counts()
	assert.Equal(t, 0, success)
	assert.Equal(t, 1, failure)
}

// --- SNAPSHOTS ---

func TestSnapshot_IsIsolated(t *testing.T) {
	post := trackedPost("p1", "v1", "u1")
	post.Comments = comments("c1")
	store := NewFeedStore(newProfile("v1", post), &fakeAPI{}, &recorder{})

	snap := store.Snapshot()
	snap.Posts[0].Comments[0].Text = "mutated"
	snap.Posts[0].Likes.LikedUsers[0].ID = "mutated"

	again := mustPost(t, store, "p1")
	assert.Equal(t, "text c1", again.Comments[0].Text)
	assert.Equal(t, "u1", again.Likes.LikedUsers[0].ID)
}

func TestDrain_WaitsForInflight(t *testing.T) {
	g := make(gate)
	api := &fakeAPI{like: func(ctx context.Context, _ string) error { return g.wait(ctx) }}
	store := NewFeedStore(newProfile("v1", trackedPost("p1", "v1")), api, &recorder{})

	p, err := store.ToggleLike(context.Background(), "p1")
	require.NoError(t, err)

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, store.Drain(short), context.DeadlineExceeded)
	assert.Nil(t, p.Err())

	g <- nil
	require.NoError(t, store.Drain(waitCtx(t)))
	<-p.Done()
	assert.NoError(t, p.Err())
}

func postIDs(p domain.Profile) []string {
	out := make([]string, 0, len(p.Posts))
	for _, post := range p.Posts {
		out = append(out, post.ID)
	}
	return out
}

func likerIDs(s domain.LikeState) []string {
	out := make([]string, 0, len(s.LikedUsers))
	for _, u := range s.LikedUsers {
		out = append(out, u.IdentityKey())
	}
	return out
}
