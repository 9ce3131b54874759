package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/koyomidev/koyomi/internal/clock"
	"github.com/koyomidev/koyomi/internal/config"
	"github.com/koyomidev/koyomi/internal/store"
)

var sessNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func testManager(t *testing.T) (*Manager, *store.Store, *clock.Fake) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open store failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	fake := clock.NewFake(sessNow)
	m, err := NewManager(st, config.SessionsConfig{
		Timeout:     "30m",
		MaxMessages: 3,
	}, fake.Now)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m, st, fake
}

func TestGetOrCreateSession_ReusesLiveSession(t *testing.T) {
	m, _, fake := testManager(t)
	ctx := context.Background()

	first, err := m.GetOrCreateSession(ctx, 7, 100, "task-capture", "")
	if err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}

	fake.Advance(10 * time.Minute)
	second, err := m.GetOrCreateSession(ctx, 7, 100, "task-capture", "")
	if err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Error("A live session should be reused")
	}
}

func TestGetOrCreateSession_ExpiredSessionIsReplaced(t *testing.T) {
	m, _, fake := testManager(t)
	ctx := context.Background()

	first, err := m.GetOrCreateSession(ctx, 7, 100, "task-capture", "")
	if err != nil {
		t.Fatal(err)
	}

	fake.Advance(31 * time.Minute)
	second, err := m.GetOrCreateSession(ctx, 7, 100, "task-capture", "")
	if err != nil {
		t.Fatal(err)
	}
	if second.SessionID == first.SessionID {
		t.Error("An expired session must not be reused")
	}
	if !second.ExpiresAt.Equal(sessNow.Add(31*time.Minute + 30*time.Minute)) {
		t.Errorf("New session expiry wrong: %v", second.ExpiresAt)
	}
}

func TestGetOrCreateSession_SeparateContextTypes(t *testing.T) {
	m, _, _ := testManager(t)
	ctx := context.Background()

	capture, err := m.GetOrCreateSession(ctx, 7, 100, "task-capture", "")
	if err != nil {
		t.Fatal(err)
	}
	review, err := m.GetOrCreateSession(ctx, 7, 100, "review", "")
	if err != nil {
		t.Fatal(err)
	}
	if capture.SessionID == review.SessionID {
		t.Error("Different context types should get different sessions")
	}
}

func TestAddMessage_CountMatchesRows(t *testing.T) {
	m, st, _ := testManager(t)
	ctx := context.Background()

	sess, err := m.GetOrCreateSession(ctx, 7, 100, "task-capture", "")
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if _, err := m.AddMessage(ctx, sess.SessionID, store.RoleUser, "hello"); err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
	}

	rows, err := st.CountSessionMessages(ctx, sess.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	reloaded, err := st.GetSession(ctx, sess.SessionID)
	if err != nil || reloaded == nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if reloaded.MessageCount != rows {
		t.Errorf("message_count %d != rows %d", reloaded.MessageCount, rows)
	}
	if rows != 3 {
		t.Errorf("Expected 3 rows, got %d", rows)
	}
}

func TestAddMessage_DoesNotExtendExpiry(t *testing.T) {
	m, st, fake := testManager(t)
	ctx := context.Background()

	sess, err := m.GetOrCreateSession(ctx, 7, 100, "task-capture", "")
	if err != nil {
		t.Fatal(err)
	}
	originalExpiry := sess.ExpiresAt

	fake.Advance(20 * time.Minute)
	if _, err := m.AddMessage(ctx, sess.SessionID, store.RoleUser, "still here"); err != nil {
		t.Fatal(err)
	}

	reloaded, err := st.GetSession(ctx, sess.SessionID)
	if err != nil || reloaded == nil {
		t.Fatal(err)
	}
	if !reloaded.ExpiresAt.Equal(originalExpiry) {
		t.Errorf("Expiry must be absolute from creation: %v != %v", reloaded.ExpiresAt, originalExpiry)
	}
}

func TestIsAtMessageLimit_AdvisoryOnly(t *testing.T) {
	m, st, _ := testManager(t)
	ctx := context.Background()

	sess, err := m.GetOrCreateSession(ctx, 7, 100, "task-capture", "")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := m.AddMessage(ctx, sess.SessionID, store.RoleUser, "msg"); err != nil {
			t.Fatal(err)
		}
	}

	reloaded, err := st.GetSession(ctx, sess.SessionID)
	if err != nil || reloaded == nil {
		t.Fatal(err)
	}
	if !m.IsAtMessageLimit(reloaded) {
		t.Error("Limit of 3 should be reached after 3 messages")
	}

	// A fourth message is still appendable: the limit guides callers only.
	if _, err := m.AddMessage(ctx, sess.SessionID, store.RoleUser, "fourth"); err != nil {
		t.Errorf("Fourth message should still append: %v", err)
	}
}

func TestGetSession_ExpiredReadsAsAbsent(t *testing.T) {
	m, _, fake := testManager(t)
	ctx := context.Background()

	sess, err := m.GetOrCreateSession(ctx, 7, 100, "task-capture", "")
	if err != nil {
		t.Fatal(err)
	}

	fake.Advance(31 * time.Minute)
	got, err := m.GetSession(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("Expired session should not error: %v", err)
	}
	if got != nil {
		t.Error("Expired session should read as absent")
	}
}

func TestEndSession_ExpiresImmediately(t *testing.T) {
	m, _, _ := testManager(t)
	ctx := context.Background()

	sess, err := m.GetOrCreateSession(ctx, 7, 100, "task-capture", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.EndSession(ctx, sess.SessionID); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	got, err := m.GetSession(ctx, sess.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("Ended session should read as absent")
	}
}

func TestCleanupExpiredSessions_DeletesRowsAndMessages(t *testing.T) {
	m, st, fake := testManager(t)
	ctx := context.Background()

	sess, err := m.GetOrCreateSession(ctx, 7, 100, "task-capture", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddMessage(ctx, sess.SessionID, store.RoleUser, "bye"); err != nil {
		t.Fatal(err)
	}

	fake.Advance(time.Hour)
	deleted, err := m.CleanupExpiredSessions(ctx)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted session, got %d", deleted)
	}

	row, err := st.GetSession(ctx, sess.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if row != nil {
		t.Error("Cleanup should physically remove the row")
	}
	n, err := st.CountSessionMessages(ctx, sess.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("Messages should be removed with the session, got %d", n)
	}
}
