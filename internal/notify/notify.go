package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/streamwarden/streamwarden/internal/config"
)

// defaultCooldown suppresses redelivery of an identical alert. Profiling
// ticks re-raise a violated threshold every interval; targets only need to
// hear about it once per window.
const defaultCooldown = 5 * time.Minute

// Notifier fans profiling alerts out to the configured webhook targets.
// Delivery failures are logged and never affect the profiling run.
//
// Notifier is safe for concurrent use.
type Notifier struct {
	webhooks []config.WebhookConfig
	client   *http.Client
	cooldown time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// New creates a Notifier for the given targets. A Notifier with no targets
// is valid; Notify becomes a no-op.
func New(webhooks []config.WebhookConfig) *Notifier {
	return &Notifier{
		webhooks: webhooks,
		client:   &http.Client{Timeout: 10 * time.Second},
		cooldown: defaultCooldown,
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
}

// Notify delivers one alert to every target, unless the identical alert was
// delivered within the cooldown window.
func (n *Notifier) Notify(alert string) {
	if len(n.webhooks) == 0 {
		return
	}

	n.mu.Lock()
	now := n.now()
	if last, ok := n.lastSent[alert]; ok && now.Sub(last) < n.cooldown {
		n.mu.Unlock()
		return
	}
	n.lastSent[alert] = now
	n.mu.Unlock()

	for _, wh := range n.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = n.sendSlack(url, alert)
		case "teams":
			err = n.sendTeams(url, alert)
		case "http":
			err = n.sendHTTP(url, alert)
		default:
			slog.Warn("notify: unknown webhook type — skipping", "type", wh.Type)
			continue
		}

		if err != nil {
			slog.Error("notify: webhook delivery failed", "type", wh.Type, "err", err)
		} else {
			slog.Debug("notify: webhook delivered", "type", wh.Type)
		}
	}
}

func (n *Notifier) sendSlack(url, alert string) error {
	body, _ := json.Marshal(map[string]string{
		"text": "*[ALERT]* " + alert,
	})
	return n.post(url, body)
}

func (n *Notifier) sendTeams(url, alert string) error {
	payload := map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": "FFAB40",
		"summary":    "streamwarden alert",
		"title":      "streamwarden threshold alert",
		"text":       alert,
	}
	body, _ := json.Marshal(payload)
	return n.post(url, body)
}

func (n *Notifier) sendHTTP(url, alert string) error {
	body, _ := json.Marshal(map[string]string{"alert": alert})
	return n.post(url, body)
}

func (n *Notifier) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
