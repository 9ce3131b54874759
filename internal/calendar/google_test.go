package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koyomidev/koyomi/internal/clock"
	"github.com/koyomidev/koyomi/internal/config"
	"github.com/koyomidev/koyomi/internal/errors"
)

// testGoogleClient points both OAuth and API traffic at the handler.
func testGoogleClient(t *testing.T, fake *clock.Fake, handler http.Handler) *GoogleClient {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("grant_type") != "refresh_token" {
			http.Error(w, "bad grant", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-123",
			"expires_in":   3600,
		})
	})
	mux.Handle("/", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewGoogleClient(config.CalendarConfig{
		ClientID:     "cid",
		ClientSecret: "secret",
		RefreshToken: "rt",
		CalendarID:   "primary",
	}, fake.Now)
	c.tokenEndpoint = srv.URL + "/token"
	c.apiBase = srv.URL
	return c
}

func TestFreeBusy_MergesCalendars(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC))
	c := testGoogleClient(t, fake, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/freeBusy" || r.Method != http.MethodPost {
			t.Errorf("Unexpected call: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer at-123" {
			t.Errorf("Missing bearer token: %q", r.Header.Get("Authorization"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"calendars": map[string]any{
				"primary": map[string]any{"busy": []map[string]string{
					{"start": "2026-01-06T10:00:00Z", "end": "2026-01-06T11:00:00Z"},
				}},
				"work": map[string]any{"busy": []map[string]string{
					{"start": "2026-01-06T13:00:00Z", "end": "2026-01-06T14:00:00Z"},
				}},
			},
		})
	}))

	busy, err := c.FreeBusy(context.Background(),
		time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC),
		[]string{"primary", "work"})
	if err != nil {
		t.Fatalf("FreeBusy failed: %v", err)
	}
	if len(busy) != 2 {
		t.Errorf("Expected intervals from both calendars, got %d", len(busy))
	}
}

func TestToken_CachedUntilExpiry(t *testing.T) {
	var tokenCalls, apiCalls atomic.Int32

	fake := clock.NewFake(time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC))

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"access_token": "at-123", "expires_in": 3600})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"items": []any{}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewGoogleClient(config.CalendarConfig{CalendarID: "primary"}, fake.Now)
	c.tokenEndpoint = srv.URL + "/token"
	c.apiBase = srv.URL

	ctx := context.Background()
	min := fake.Now()
	max := min.Add(24 * time.Hour)
	if _, err := c.Events(ctx, min, max, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Events(ctx, min, max, 0); err != nil {
		t.Fatal(err)
	}
	if tokenCalls.Load() != 1 {
		t.Errorf("Token should be cached, refreshed %d times", tokenCalls.Load())
	}

	// Past expiry the next call refreshes.
	fake.Advance(2 * time.Hour)
	if _, err := c.Events(ctx, min, max, 0); err != nil {
		t.Fatal(err)
	}
	if tokenCalls.Load() != 2 {
		t.Errorf("Stale token should refresh, got %d calls", tokenCalls.Load())
	}
	if apiCalls.Load() != 3 {
		t.Errorf("Expected 3 API calls, got %d", apiCalls.Load())
	}
}

func TestDo_StatusMapping(t *testing.T) {
	cases := []struct {
		status   int
		category error
	}{
		{http.StatusNotFound, errors.ErrNotFound},
		{http.StatusTooManyRequests, errors.ErrTransient},
		{http.StatusInternalServerError, errors.ErrTransient},
		{http.StatusForbidden, errors.ErrUpstream},
	}
	for _, tc := range cases {
		fake := clock.NewFake(time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC))
		c := testGoogleClient(t, fake, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		err := c.DeleteEvent(context.Background(), "evt-1")
		if err == nil {
			t.Errorf("status %d: expected error", tc.status)
			continue
		}
		if !errors.IsCategory(err, tc.category) {
			t.Errorf("status %d: wrong category: %v", tc.status, err)
		}
	}
}

func TestEvents_QueryShape(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC))
	c := testGoogleClient(t, fake, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("singleEvents") != "true" || q.Get("orderBy") != "startTime" {
			t.Errorf("Recurrence expansion params missing: %v", q)
		}
		if q.Get("maxResults") != "250" {
			t.Errorf("maxResults missing: %v", q)
		}
		json.NewEncoder(w).Encode(map[string]any{"items": []map[string]any{
			{"id": "evt-1", "summary": "Standup"},
		}})
	}))

	events, err := c.Events(context.Background(), fake.Now(), fake.Now().Add(24*time.Hour), 250)
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != 1 || events[0].ID != "evt-1" {
		t.Errorf("Events decode wrong: %+v", events)
	}
}
