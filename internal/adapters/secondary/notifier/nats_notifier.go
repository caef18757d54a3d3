package notifier

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/jupiterclapton/cenackle/services/profile-service/internal/core/ports"
)

const (
	SubjectSuccess = "profile.notification.success"
	SubjectFailure = "profile.notification.failure"
)

// Publisher is the part of *nats.Conn the notifier needs.
type Publisher interface {
	PublishMsg(m *nats.Msg) error
}

// NatsNotifier publishes outcomes so the UI gateway can turn them into toasts.
type NatsNotifier struct {
	pub Publisher
}

func NewNatsNotifier(pub Publisher) *NatsNotifier {
	return &NatsNotifier{pub: pub}
}

// NotificationEvent is the wire format of a published notification.
type NotificationEvent struct {
	Action     string    `json:"action"`
	EntityID   string    `json:"entity_id"`
	Message    string    `json:"message"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (p *NatsNotifier) NotifySuccess(ctx context.Context, n ports.Notification) {
	p.publish(ctx, SubjectSuccess, n)
}

func (p *NatsNotifier) NotifyFailure(ctx context.Context, n ports.Notification) {
	p.publish(ctx, SubjectFailure, n)
}

// publish never fails the caller: a lost toast is logged, not retried.
func (p *NatsNotifier) publish(ctx context.Context, subject string, n ports.Notification) {
	event := NotificationEvent{
		Action:     n.Action,
		EntityID:   n.EntityID,
		Message:    n.Message,
		OccurredAt: time.Now().UTC(),
	}
	if n.Err != nil {
		event.Error = n.Err.Error()
	}

	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal notification", "error", err)
		return
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  nats.Header{},
	}
	// Trace context travels in the NATS headers
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	if err := p.pub.PublishMsg(msg); err != nil {
		slog.Warn("⚠️ Failed to publish notification", "subject", subject, "action", n.Action, "error", err)
	}
}
