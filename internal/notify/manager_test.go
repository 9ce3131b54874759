package notify

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/koyomidev/koyomi/internal/clock"
	"github.com/koyomidev/koyomi/internal/config"
	"github.com/koyomidev/koyomi/internal/errors"
	"github.com/koyomidev/koyomi/internal/store"
)

type recordingPublisher struct {
	published []PushMessage
	err       error
}

func (r *recordingPublisher) Publish(ctx context.Context, msg PushMessage) error {
	if r.err != nil {
		return r.err
	}
	r.published = append(r.published, msg)
	return nil
}

var notifyNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func testNotify(t *testing.T) (*Manager, *recordingPublisher, *store.Store, *clock.Fake) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open store failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	fake := clock.NewFake(notifyNow)
	pub := &recordingPublisher{}
	m, err := NewManager(st, pub, config.NotificationsConfig{
		EscalationAfter: "5m",
		UrgentAfter:     "10m",
	}, fake.Now)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m, pub, st, fake
}

func TestEscalationPriority_Monotonic(t *testing.T) {
	m, _, _, _ := testNotify(t)

	cases := []struct {
		elapsed time.Duration
		want    string
	}{
		{3 * time.Minute, PriorityDefault},
		{6 * time.Minute, PriorityHigh},
		{11 * time.Minute, PriorityUrgent},
		{16 * time.Minute, PriorityUrgent},
	}
	for _, tc := range cases {
		if got := m.EscalationPriority(tc.elapsed); got != tc.want {
			t.Errorf("EscalationPriority(%v) = %s, want %s", tc.elapsed, got, tc.want)
		}
	}
}

func TestNeedsEscalation(t *testing.T) {
	m, _, _, _ := testNotify(t)

	sixAgo := notifyNow.Add(-6 * time.Minute)
	twoAgo := notifyNow.Add(-2 * time.Minute)

	if !m.NeedsEscalation(&store.Notification{SentAt: &sixAgo}) {
		t.Error("Six minutes pending should need escalation")
	}
	if m.NeedsEscalation(&store.Notification{SentAt: &twoAgo}) {
		t.Error("Two minutes pending should not escalate yet")
	}
	// Missing sent_at short-circuits to no escalation.
	if m.NeedsEscalation(&store.Notification{}) {
		t.Error("Unsent notification must not escalate")
	}
	if m.NeedsEscalation(&store.Notification{SentAt: &sixAgo, AcknowledgedAt: &notifyNow}) {
		t.Error("Acknowledged notification must not escalate")
	}
}

func TestEscalatePending_PrefixesByPriority(t *testing.T) {
	m, pub, st, fake := testNotify(t)
	ctx := context.Background()

	highID, err := m.Track(ctx, "morning-checkin", notifyNow)
	if err != nil {
		t.Fatal(err)
	}
	urgentID, err := m.Track(ctx, "medication-reminder", notifyNow)
	if err != nil {
		t.Fatal(err)
	}
	freshID, err := m.Track(ctx, "evening-review", notifyNow)
	if err != nil {
		t.Fatal(err)
	}

	if err := st.MarkNotificationSent(ctx, highID, notifyNow.Add(-6*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := st.MarkNotificationSent(ctx, urgentID, notifyNow.Add(-12*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := st.MarkNotificationSent(ctx, freshID, notifyNow.Add(-1*time.Minute)); err != nil {
		t.Fatal(err)
	}

	escalated, err := m.EscalatePending(ctx)
	if err != nil {
		t.Fatalf("EscalatePending failed: %v", err)
	}
	if escalated != 2 {
		t.Fatalf("Expected 2 escalations, got %d", escalated)
	}

	byTitle := map[string]PushMessage{}
	for _, msg := range pub.published {
		byTitle[msg.Title] = msg
	}
	high, ok := byTitle["REMINDER: morning-checkin"]
	if !ok {
		t.Fatalf("Missing REMINDER push, got %v", pub.published)
	}
	if high.Priority != PriorityHigh {
		t.Errorf("REMINDER should travel high priority, got %s", high.Priority)
	}
	if !strings.Contains(high.Body, "6 minutes") {
		t.Errorf("Body should state elapsed minutes, got %q", high.Body)
	}
	urgent, ok := byTitle["URGENT: medication-reminder"]
	if !ok {
		t.Fatalf("Missing URGENT push, got %v", pub.published)
	}
	if urgent.Priority != PriorityUrgent {
		t.Errorf("URGENT should travel urgent priority, got %s", urgent.Priority)
	}

	// Still pending on the next cycle: escalation re-fires.
	pub.published = nil
	fake.Advance(5 * time.Minute)
	again, err := m.EscalatePending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if again != 3 {
		t.Errorf("All three are overdue by now, got %d", again)
	}
}

func TestAcknowledge_StopsEscalation(t *testing.T) {
	m, pub, st, _ := testNotify(t)
	ctx := context.Background()

	id, err := m.Track(ctx, "morning-checkin", notifyNow)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.MarkNotificationSent(ctx, id, notifyNow.Add(-7*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := m.Acknowledge(ctx, id, "on my way"); err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}

	escalated, err := m.EscalatePending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if escalated != 0 || len(pub.published) != 0 {
		t.Error("Acknowledged notification must not re-fire")
	}

	n, err := st.GetNotification(ctx, id)
	if err != nil || n == nil {
		t.Fatal(err)
	}
	if n.ResponseSummary != "on my way" {
		t.Errorf("Response summary not recorded: %q", n.ResponseSummary)
	}
}

func TestAcknowledge_IdempotentAndValidated(t *testing.T) {
	m, _, st, _ := testNotify(t)
	ctx := context.Background()

	if err := m.Acknowledge(ctx, "no-such-id", "hi"); !errors.IsCategory(err, errors.ErrNotFound) {
		t.Errorf("Unknown id should be not-found, got %v", err)
	}

	id, err := m.Track(ctx, "morning-checkin", notifyNow)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Acknowledge(ctx, id, "first"); err != nil {
		t.Fatal(err)
	}
	if err := m.Acknowledge(ctx, id, "second"); err != nil {
		t.Fatalf("Second acknowledge should be a no-op: %v", err)
	}

	n, err := st.GetNotification(ctx, id)
	if err != nil || n == nil {
		t.Fatal(err)
	}
	if n.ResponseSummary != "first" {
		t.Errorf("First summary should win, got %q", n.ResponseSummary)
	}
}

func TestSend_StampsSentAt(t *testing.T) {
	m, pub, st, _ := testNotify(t)
	ctx := context.Background()

	id, err := m.Track(ctx, "evening-review", notifyNow)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Send(ctx, id, PushMessage{Title: "Evening review", Body: "How was it?"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(pub.published) != 1 {
		t.Fatalf("Expected one publish, got %d", len(pub.published))
	}

	n, err := st.GetNotification(ctx, id)
	if err != nil || n == nil {
		t.Fatal(err)
	}
	if n.SentAt == nil || !n.SentAt.Equal(notifyNow) {
		t.Errorf("sent_at should stamp now, got %v", n.SentAt)
	}
	if !n.Pending() {
		t.Error("Sent and unacknowledged should read as pending")
	}
}
