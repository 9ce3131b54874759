package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/koyomidev/koyomi/internal/config"
	"github.com/koyomidev/koyomi/internal/errors"
)

// Push priorities understood by the ntfy gateway.
const (
	PriorityDefault = "default"
	PriorityHigh    = "high"
	PriorityUrgent  = "urgent"
)

// PushMessage is one outbound push.
type PushMessage struct {
	Title    string
	Body     string
	Priority string
	Tags     []string
}

// Publisher delivers push messages. The production implementation posts to
// an ntfy topic; tests substitute a recorder.
type Publisher interface {
	Publish(ctx context.Context, msg PushMessage) error
}

// NtfyPublisher posts to a single ntfy topic. Message attributes travel in
// request headers per the ntfy publish protocol.
type NtfyPublisher struct {
	httpClient *http.Client
	url        string
	topic      string
}

func NewNtfyPublisher(cfg config.NotificationsConfig) *NtfyPublisher {
	timeout, _ := config.DurationOrDefault(cfg.HTTPTimeout, config.DefaultNtfyHTTPTimeout)
	url := cfg.NtfyURL
	if url == "" {
		url = config.DefaultNtfyURL
	}
	topic := cfg.NtfyTopic
	if topic == "" {
		topic = config.DefaultNtfyTopic
	}
	return &NtfyPublisher{
		httpClient: &http.Client{Timeout: timeout},
		url:        strings.TrimSuffix(url, "/"),
		topic:      topic,
	}
}

func (p *NtfyPublisher) Publish(ctx context.Context, msg PushMessage) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.url+"/"+p.topic, strings.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	if msg.Title != "" {
		req.Header.Set("Title", msg.Title)
	}
	if msg.Priority != "" {
		req.Header.Set("Priority", msg.Priority)
	}
	if len(msg.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.Tags, ","))
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "publish push message")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return errors.Transient("push gateway: " + resp.Status)
	}
	if resp.StatusCode >= 400 {
		return errors.Upstream("push gateway: " + resp.Status)
	}
	return nil
}

var _ Publisher = (*NtfyPublisher)(nil)

// elapsedBody renders the standard escalation body text.
func elapsedBody(notificationType string, elapsed time.Duration) string {
	return fmt.Sprintf("%s has been waiting for %d minutes without a response.",
		notificationType, int(elapsed.Minutes()))
}
