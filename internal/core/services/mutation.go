package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jupiterclapton/cenackle/services/profile-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/profile-service/internal/core/ports"
)

const (
	ActionToggleLike    = "post.like"
	ActionAddComment    = "comment.add"
	ActionDeleteComment = "comment.delete"
	ActionDeletePost    = "post.delete"
	ActionCreatePost    = "post.create"
)

// mutation describes one optimistic change.
//   - apply runs under the store lock, before the caller gets control back.
//     It returns the rollback that restores exactly what it touched.
//   - remote is the only suspension point.
//   - commit (optional) runs under the lock on success to merge authoritative
//     fields. It must validate before writing: an error triggers the rollback.
type mutation struct {
	action   string
	entityID string
	success  string
	failure  string

	apply  func() (rollback func(), err error)
	remote func(ctx context.Context) (any, error)
	commit func(result any) error
}

// pending implements ports.Pending.
type pending struct {
	id   string
	done chan struct{}
	once sync.Once
	err  error
}

func newPending() *pending {
	return &pending{id: uuid.NewString(), done: make(chan struct{})}
}

func (p *pending) ID() string             { return p.id }
func (p *pending) Done() <-chan struct{} { return p.done }

func (p *pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

func (p *pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pending) resolve(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// coordinator applies mutations against a state guarded by mu.
type coordinator struct {
	mu       *sync.Mutex
	notifier ports.Notifier
	inflight sync.WaitGroup
	onCommit func(ctx context.Context, action string)
}

func (c *coordinator) run(ctx context.Context, m mutation) (ports.Pending, error) {
	// 1. Snapshot + optimistic apply (synchronous)
	c.mu.Lock()
	rollback, err := m.apply()
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	p := newPending()
	c.inflight.Add(1)

	// 2. Remote call. In-flight mutations are never cancelled by the caller.
	go func(ctx context.Context) {
		defer c.inflight.Done()

		ctx, span := otel.Tracer("profile-service").Start(ctx, m.action)
		span.SetAttributes(
			attribute.String("mutation.id", p.id),
			attribute.String("entity.id", m.entityID),
		)
		defer span.End()

		result, err := callRemote(ctx, m.remote)

		// 3. Reconcile: merge on success, exact rollback on failure
		c.mu.Lock()
		if err == nil && m.commit != nil {
			err = m.commit(result)
		}
		if err != nil {
			rollback()
		}
		c.mu.Unlock()

		n := ports.Notification{Action: m.action, EntityID: m.entityID, Err: err}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "rolled back")
			slog.Warn("↩️ Mutation rolled back", "action", m.action, "entity_id", m.entityID, "mutation_id", p.id, "error", err)
			n.Message = m.failure
			c.notifier.NotifyFailure(ctx, n)
		} else {
			slog.Debug("✅ Mutation confirmed", "action", m.action, "entity_id", m.entityID, "mutation_id", p.id)
			n.Message = m.success
			c.notifier.NotifySuccess(ctx, n)
			if c.onCommit != nil {
				c.onCommit(ctx, m.action)
			}
		}

		p.resolve(err)
	}(context.WithoutCancel(ctx))

	return p, nil
}

// drain blocks until every in-flight mutation has resolved.
func (c *coordinator) drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// callRemote turns panics of the transport or decoder into failures.
func callRemote(ctx context.Context, remote func(context.Context) (any, error)) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", domain.ErrMalformedResponse, r)
		}
	}()
	result, err = remote(ctx)
	if err != nil && !errors.Is(err, domain.ErrRemote) && !errors.Is(err, domain.ErrMalformedResponse) {
		err = fmt.Errorf("%w: %w", domain.ErrRemote, err)
	}
	return result, err
}
