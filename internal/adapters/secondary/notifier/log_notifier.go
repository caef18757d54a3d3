package notifier

import (
	"context"
	"log/slog"

	"github.com/jupiterclapton/cenackle/services/profile-service/internal/core/ports"
)

// LogNotifier writes every outcome to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) NotifySuccess(ctx context.Context, n ports.Notification) {
	l.logger.InfoContext(ctx, "🔔 "+n.Message, "action", n.Action, "entity_id", n.EntityID)
}

func (l *LogNotifier) NotifyFailure(ctx context.Context, n ports.Notification) {
	l.logger.ErrorContext(ctx, "🔕 "+n.Message, "action", n.Action, "entity_id", n.EntityID, "error", n.Err)
}

// Fanout forwards each notification to every sink, in order.
type Fanout []ports.Notifier

func (f Fanout) NotifySuccess(ctx context.Context, n ports.Notification) {
	for _, sink := range f {
		sink.NotifySuccess(ctx, n)
	}
}

func (f Fanout) NotifyFailure(ctx context.Context, n ports.Notification) {
	for _, sink := range f {
		sink.NotifyFailure(ctx, n)
	}
}
