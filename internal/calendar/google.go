package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/koyomidev/koyomi/internal/clock"
	"github.com/koyomidev/koyomi/internal/config"
	"github.com/koyomidev/koyomi/internal/errors"
)

const (
	defaultTokenEndpoint = "https://oauth2.googleapis.com/token"
	defaultAPIBase       = "https://www.googleapis.com/calendar/v3"

	// Refresh slightly early so an in-flight request never carries a token
	// that expires mid-call.
	tokenExpirySlack = 60 * time.Second
)

// GoogleClient talks to the Google Calendar v3 REST API with a long-lived
// refresh token. Access tokens are fetched lazily and cached until expiry.
type GoogleClient struct {
	httpClient   *http.Client
	clientID     string
	clientSecret string
	refreshToken string
	calendarID   string
	now          clock.Now

	tokenEndpoint string
	apiBase       string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewGoogleClient(cfg config.CalendarConfig, now clock.Now) *GoogleClient {
	if now == nil {
		now = time.Now
	}
	timeout, _ := config.DurationOrDefault(cfg.HTTPTimeout, config.DefaultCalendarHTTPTimeout)
	return &GoogleClient{
		httpClient:   &http.Client{Timeout: timeout},
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		refreshToken: cfg.RefreshToken,
		calendarID:   cfg.CalendarID,
		now:          now,

		tokenEndpoint: defaultTokenEndpoint,
		apiBase:       defaultAPIBase,
	}
}

func (c *GoogleClient) CalendarID() string {
	return c.calendarID
}

// token returns a live access token, refreshing through the OAuth endpoint
// when the cached one is absent or stale.
func (c *GoogleClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.now().Before(c.tokenExpiry.Add(-tokenExpirySlack)) {
		return c.accessToken, nil
	}

	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"refresh_token": {c.refreshToken},
		"grant_type":    {"refresh_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "refresh access token")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", errors.Upstream(fmt.Sprintf("token refresh failed: %s: %s",
			resp.Status, strings.TrimSpace(string(body))))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	c.accessToken = payload.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	slog.Debug("Refreshed calendar access token", "expires_in", payload.ExpiresIn)
	return c.accessToken, nil
}

// do issues an authenticated API call and decodes the JSON response into out
// when out is non-nil.
func (c *GoogleClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	endpoint := c.apiBase + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build calendar request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "call calendar api")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.NotFound(method + " " + path)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return errors.Transient(fmt.Sprintf("calendar api %s %s: %s", method, path, resp.Status))
	case resp.StatusCode >= 400:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Upstream(fmt.Sprintf("calendar api %s %s: %s: %s",
			method, path, resp.Status, strings.TrimSpace(string(raw))))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode calendar response: %w", err)
	}
	return nil
}

// FreeBusy fetches busy intervals for the given calendars and merges them
// into one pool sorted by the provider's per-calendar ordering.
func (c *GoogleClient) FreeBusy(ctx context.Context, timeMin, timeMax time.Time, calendarIDs []string) ([]BusyInterval, error) {
	if len(calendarIDs) == 0 {
		calendarIDs = []string{c.calendarID}
	}

	items := make([]map[string]string, 0, len(calendarIDs))
	for _, id := range calendarIDs {
		items = append(items, map[string]string{"id": id})
	}
	reqBody := map[string]any{
		"timeMin": timeMin.Format(time.RFC3339),
		"timeMax": timeMax.Format(time.RFC3339),
		"items":   items,
	}

	var payload struct {
		Calendars map[string]struct {
			Busy []struct {
				Start string `json:"start"`
				End   string `json:"end"`
			} `json:"busy"`
		} `json:"calendars"`
	}
	if err := c.do(ctx, http.MethodPost, "/freeBusy", nil, reqBody, &payload); err != nil {
		return nil, err
	}

	var busy []BusyInterval
	for id, cal := range payload.Calendars {
		for _, b := range cal.Busy {
			start, err := time.Parse(time.RFC3339, b.Start)
			if err != nil {
				return nil, fmt.Errorf("parse busy start for %s: %w", id, err)
			}
			end, err := time.Parse(time.RFC3339, b.End)
			if err != nil {
				return nil, fmt.Errorf("parse busy end for %s: %w", id, err)
			}
			busy = append(busy, BusyInterval{Start: start, End: end})
		}
	}
	return busy, nil
}

// Events lists timed and all-day events in the window, expanded from any
// recurring series and ordered by start time.
func (c *GoogleClient) Events(ctx context.Context, timeMin, timeMax time.Time, maxResults int) ([]Event, error) {
	query := url.Values{
		"timeMin":      {timeMin.Format(time.RFC3339)},
		"timeMax":      {timeMax.Format(time.RFC3339)},
		"singleEvents": {"true"},
		"orderBy":      {"startTime"},
	}
	if maxResults > 0 {
		query.Set("maxResults", strconv.Itoa(maxResults))
	}

	var payload struct {
		Items []Event `json:"items"`
	}
	path := "/calendars/" + url.PathEscape(c.calendarID) + "/events"
	if err := c.do(ctx, http.MethodGet, path, query, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

func (c *GoogleClient) CreateEvent(ctx context.Context, event *Event) (*Event, error) {
	var created Event
	path := "/calendars/" + url.PathEscape(c.calendarID) + "/events"
	if err := c.do(ctx, http.MethodPost, path, nil, event, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *GoogleClient) UpdateEvent(ctx context.Context, eventID string, patch EventPatch) error {
	path := "/calendars/" + url.PathEscape(c.calendarID) + "/events/" + url.PathEscape(eventID)
	return c.do(ctx, http.MethodPatch, path, nil, patch, nil)
}

func (c *GoogleClient) DeleteEvent(ctx context.Context, eventID string) error {
	path := "/calendars/" + url.PathEscape(c.calendarID) + "/events/" + url.PathEscape(eventID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}
