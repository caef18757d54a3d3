package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jupiterclapton/cenackle/services/profile-service/internal/core/ports"
)

// SubjectPostCreated is published by the post service after a post is stored.
const SubjectPostCreated = "post.created"

const handleTimeout = 5 * time.Second

type PostCreatedEvent struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

type EventHandler struct {
	profiles ports.ProfileService
}

func NewEventHandler(profiles ports.ProfileService) *EventHandler {
	return &EventHandler{profiles: profiles}
}

// HandlePostCreated drops cached copies of the author's profile so the next
// open sees the new post.
func (h *EventHandler) HandlePostCreated(msg *nats.Msg) {
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.HeaderCarrier(msg.Header))
	ctx, span := otel.Tracer("profile-service").Start(ctx, "process_post_created", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	var event PostCreatedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		span.RecordError(err)
		slog.Error("❌ Invalid event format", "subject", msg.Subject, "error", err)
		return
	}
	if event.AuthorID == "" {
		slog.Warn("⚠️ Post event without author", "post_id", event.ID)
		return
	}
	span.SetAttributes(attribute.String("post.id", event.ID), attribute.String("post.author_id", event.AuthorID))

	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	if err := h.profiles.InvalidateProfile(ctx, event.AuthorID); err != nil {
		span.RecordError(err)
		slog.Error("❌ Profile invalidation failed", "author_id", event.AuthorID, "error", err)
		return
	}
	slog.Debug("✅ Profile cache invalidated", "author_id", event.AuthorID, "post_id", event.ID)
}
