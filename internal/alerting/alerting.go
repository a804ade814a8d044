package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bher20/flightticker/internal/fares"
)

// AlertConfig holds alerting configuration.
type AlertConfig struct {
	// WebhookURL is a generic webhook endpoint (Slack, Discord, or custom)
	WebhookURL string
	// WebhookType determines the payload format: "slack", "discord", or "generic"
	WebhookType string
	// Timeout for HTTP requests
	Timeout time.Duration
}

// NewAlertConfig fills in the webhook type from the URL when it is not set.
func NewAlertConfig(url, typ string) AlertConfig {
	cfg := AlertConfig{
		WebhookURL:  url,
		WebhookType: typ,
		Timeout:     10 * time.Second,
	}
	if cfg.WebhookType == "" {
		// Auto-detect from URL
		if strings.Contains(cfg.WebhookURL, "slack.com") {
			cfg.WebhookType = "slack"
		} else if strings.Contains(cfg.WebhookURL, "discord.com") {
			cfg.WebhookType = "discord"
		} else {
			cfg.WebhookType = "generic"
		}
	}
	return cfg
}

// Alerter sends alerts to a configured webhook.
type Alerter struct {
	cfg    AlertConfig
	client *http.Client
}

// NewAlerter creates a new alerter instance.
func NewAlerter(cfg AlertConfig) *Alerter {
	return &Alerter{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (a *Alerter) Name() string { return "webhook" }

// Enabled reports whether a webhook URL is configured.
func (a *Alerter) Enabled() bool { return a.cfg.WebhookURL != "" }

// Send posts a price drop to the webhook.
func (a *Alerter) Send(ctx context.Context, ev fares.DropEvent) error {
	var payload []byte
	var err error

	switch a.cfg.WebhookType {
	case "slack":
		payload, err = a.buildSlackPayload(ev)
	case "discord":
		payload, err = a.buildDiscordPayload(ev)
	default:
		payload, err = a.buildGenericPayload(ev)
	}
	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}

	if err := a.post(ctx, payload); err != nil {
		return err
	}
	log.Printf("alerting: sent drop alert for %s %s", ev.RouteCode, ev.DepartureDate)
	return nil
}

// RunFailure describes a collection run that could not complete normally.
type RunFailure struct {
	JobName     string
	RunID       string
	Reason      string
	FailedPairs int
	TotalPairs  int
	Timestamp   time.Time
}

// SendRunFailure reports a failed collection run. It is a no-op when the
// webhook is not configured.
func (a *Alerter) SendRunFailure(ctx context.Context, f RunFailure) error {
	if !a.Enabled() {
		log.Printf("alerting: alerts disabled, skipping")
		return nil
	}

	text := fmt.Sprintf("Collection run %s (%s) failed: %s (%d/%d pairs failed)",
		f.JobName, f.RunID, f.Reason, f.FailedPairs, f.TotalPairs)

	var body map[string]interface{}
	switch a.cfg.WebhookType {
	case "slack":
		body = map[string]interface{}{"text": ":x: " + text}
	case "discord":
		body = map[string]interface{}{"content": text}
	default:
		body = map[string]interface{}{
			"alert_type":   "collection_failure",
			"job_name":     f.JobName,
			"run_id":       f.RunID,
			"reason":       f.Reason,
			"failed_pairs": f.FailedPairs,
			"total_pairs":  f.TotalPairs,
			"timestamp":    f.Timestamp.Format(time.RFC3339),
		}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}
	return a.post(ctx, payload)
}

func (a *Alerter) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, "POST", a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (a *Alerter) buildSlackPayload(ev fares.DropEvent) ([]byte, error) {
	payload := map[string]interface{}{
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]string{
					"type": "plain_text",
					"text": fmt.Sprintf(":chart_with_downwards_trend: %s (%s) dropped %s KRW", ev.City, ev.RouteCode, humanize.Comma(ev.Drop)),
				},
			},
			{
				"type": "section",
				"fields": []map[string]string{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Price:*\n%s KRW", humanize.Comma(ev.Price))},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Change:*\n-%.1f%%", ev.DropPercent)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Departure:*\n%s", ev.DepartureDate)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Return:*\n%s", ev.ReturnDate)},
				},
			},
		},
	}

	return json.Marshal(payload)
}

func (a *Alerter) buildDiscordPayload(ev fares.DropEvent) ([]byte, error) {
	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       fmt.Sprintf("Price drop: %s (%s)", ev.City, ev.RouteCode),
				"description": fmt.Sprintf("%s KRW (-%s, -%.1f%%)", humanize.Comma(ev.Price), humanize.Comma(ev.Drop), ev.DropPercent),
				"color":       2278750, // Green
				"fields": []map[string]interface{}{
					{"name": "Departure", "value": ev.DepartureDate, "inline": true},
					{"name": "Return", "value": ev.ReturnDate, "inline": true},
					{"name": "Previous", "value": humanize.Comma(ev.PreviousPrice) + " KRW", "inline": true},
				},
			},
		},
	}

	return json.Marshal(payload)
}

func (a *Alerter) buildGenericPayload(ev fares.DropEvent) ([]byte, error) {
	payload := map[string]interface{}{
		"alert_type":   "price_drop",
		"city":         ev.City,
		"code":         ev.RouteCode,
		"price":        ev.Price,
		"drop":         ev.Drop,
		"drop_percent": ev.DropPercent,
		"date":         ev.DepartureDate,
		"return_date":  ev.ReturnDate,
	}

	return json.Marshal(payload)
}
