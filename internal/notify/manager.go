package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/koyomidev/koyomi/internal/clock"
	"github.com/koyomidev/koyomi/internal/config"
	"github.com/koyomidev/koyomi/internal/errors"
	"github.com/koyomidev/koyomi/internal/store"
)

// Manager tracks sent-but-unacknowledged notifications and re-delivers them
// at rising priority the longer they sit. Re-escalation fires on every check
// cycle while a notification stays pending; the nagging is deliberate and
// stops only on acknowledgement.
type Manager struct {
	store      *store.Store
	publisher  Publisher
	now        clock.Now
	escalateAt time.Duration
	urgentAt   time.Duration
}

func NewManager(s *store.Store, publisher Publisher, cfg config.NotificationsConfig, now clock.Now) (*Manager, error) {
	if now == nil {
		now = time.Now
	}
	escalateAt, err := config.DurationOrDefault(cfg.EscalationAfter, config.DefaultEscalationAfter)
	if err != nil {
		return nil, err
	}
	urgentAt, err := config.DurationOrDefault(cfg.UrgentAfter, config.DefaultUrgentAfter)
	if err != nil {
		return nil, err
	}
	return &Manager{
		store:      s,
		publisher:  publisher,
		now:        now,
		escalateAt: escalateAt,
		urgentAt:   urgentAt,
	}, nil
}

// Track registers a notification before delivery and returns its id.
func (m *Manager) Track(ctx context.Context, notificationType string, scheduledFor time.Time) (string, error) {
	n := &store.Notification{
		ID:           uuid.NewString(),
		Type:         notificationType,
		ScheduledFor: scheduledFor,
	}
	if err := m.store.InsertNotification(ctx, n); err != nil {
		return "", err
	}
	return n.ID, nil
}

// Send publishes the initial delivery and stamps sent_at.
func (m *Manager) Send(ctx context.Context, id string, msg PushMessage) error {
	if err := m.publisher.Publish(ctx, msg); err != nil {
		return err
	}
	return m.store.MarkNotificationSent(ctx, id, m.now())
}

// MarkAsSent stamps sent_at without publishing, for deliveries made through
// another channel.
func (m *Manager) MarkAsSent(ctx context.Context, id string, sentAt time.Time) error {
	return m.store.MarkNotificationSent(ctx, id, sentAt)
}

// Acknowledge terminates the escalation lifecycle for a notification.
// Acknowledging twice is a no-op; the first response summary wins.
func (m *Manager) Acknowledge(ctx context.Context, id string, responseSummary string) error {
	n, err := m.store.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if n == nil {
		return errors.NotFound("notification " + id)
	}
	if n.AcknowledgedAt != nil {
		return nil
	}
	return m.store.AcknowledgeNotification(ctx, id, m.now(), responseSummary)
}

// EscalationPriority maps elapsed-since-sent onto a delivery priority. Only
// meaningful while the notification is unacknowledged.
func (m *Manager) EscalationPriority(elapsed time.Duration) string {
	switch {
	case elapsed >= m.urgentAt:
		return PriorityUrgent
	case elapsed >= m.escalateAt:
		return PriorityHigh
	default:
		return PriorityDefault
	}
}

// NeedsEscalation reports whether a notification is due for re-delivery.
// A missing sent_at short-circuits to false rather than erroring.
func (m *Manager) NeedsEscalation(n *store.Notification) bool {
	if !n.Pending() {
		return false
	}
	return m.now().Sub(*n.SentAt) >= m.escalateAt
}

// EscalatePending re-sends every overdue pending notification with a
// priority-derived title prefix. One failed publish is logged and skipped.
func (m *Manager) EscalatePending(ctx context.Context) (int, error) {
	pending, err := m.store.PendingNotifications(ctx)
	if err != nil {
		return 0, err
	}

	escalated := 0
	for _, n := range pending {
		if !m.NeedsEscalation(n) {
			continue
		}
		elapsed := m.now().Sub(*n.SentAt)
		priority := m.EscalationPriority(elapsed)

		title := n.Type
		switch priority {
		case PriorityHigh:
			title = "REMINDER: " + title
		case PriorityUrgent:
			title = "URGENT: " + title
		}

		msg := PushMessage{
			Title:    title,
			Body:     elapsedBody(n.Type, elapsed),
			Priority: priority,
			Tags:     []string{"warning"},
		}
		if err := m.publisher.Publish(ctx, msg); err != nil {
			slog.Error("Failed to escalate notification",
				"notification_id", n.ID, "priority", priority, "error", err)
			continue
		}
		escalated++
		slog.Info("Escalated notification",
			"notification_id", n.ID, "priority", priority,
			"elapsed_minutes", int(elapsed.Minutes()))
	}
	return escalated, nil
}
