package events

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"

	"github.com/jupiterclapton/cenackle/services/profile-service/internal/core/ports"
)

// invalidations embeds the port so only InvalidateProfile needs a body.
type invalidations struct {
	ports.ProfileService
	ids []string
	err error
}

func (i *invalidations) InvalidateProfile(ctx context.Context, profileID string) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("missing deadline")
	}
	i.ids = append(i.ids, profileID)
	return i.err
}

func TestHandlePostCreated(t *testing.T) {
	svc := &invalidations{}
	h := NewEventHandler(svc)

	h.HandlePostCreated(&nats.Msg{
		Subject: SubjectPostCreated,
		Header:  nats.Header{},
		Data:    []byte(`{"id":"p1","author_id":"alice","type":"TEXT","created_at":"2024-05-01T10:00:00Z"}`),
	})

	assert.Equal(t, []string{"alice"}, svc.ids)
}

func TestHandlePostCreated_IgnoresBadEvents(t *testing.T) {
	svc := &invalidations{}
	h := NewEventHandler(svc)

	h.HandlePostCreated(&nats.Msg{Subject: SubjectPostCreated, Data: []byte(`{`)})
	h.HandlePostCreated(&nats.Msg{Subject: SubjectPostCreated, Data: []byte(`{"id":"p1"}`)})

	assert.Empty(t, svc.ids)
}

func TestHandlePostCreated_InvalidationErrorIsSwallowed(t *testing.T) {
	svc := &invalidations{err: errors.New("redis down")}
	h := NewEventHandler(svc)

	assert.NotPanics(t, func() {
		h.HandlePostCreated(&nats.Msg{Data: []byte(`{"id":"p1","author_id":"bob"}`)})
	})
	assert.Equal(t, []string{"bob"}, svc.ids)
}
