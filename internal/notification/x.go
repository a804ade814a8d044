package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dghubble/oauth1"

	"github.com/bher20/flightticker/internal/fares"
)

const xAPI = "https://api.twitter.com"

type XConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
	// APIBase overrides the API host (tests).
	APIBase string
}

// XSink posts drop alerts to X using OAuth 1.0a user-context signing.
type XSink struct {
	cfg  XConfig
	base *http.Client
}

func NewXSink(cfg XConfig, base *http.Client) *XSink {
	if cfg.APIBase == "" {
		cfg.APIBase = xAPI
	}
	return &XSink{cfg: cfg, base: base}
}

func (x *XSink) Name() string { return "x" }

func (x *XSink) Enabled() bool {
	return x.cfg.ConsumerKey != "" && x.cfg.ConsumerSecret != "" &&
		x.cfg.AccessToken != "" && x.cfg.AccessSecret != ""
}

func (x *XSink) Send(ctx context.Context, ev fares.DropEvent) error {
	payload, err := json.Marshal(map[string]string{"text": FormatDropMessage(ev)})
	if err != nil {
		return fmt.Errorf("x payload: %w", err)
	}

	signCtx := ctx
	if x.base != nil {
		signCtx = context.WithValue(ctx, oauth1.HTTPClient, x.base)
	}
	client := oauth1.NewConfig(x.cfg.ConsumerKey, x.cfg.ConsumerSecret).
		Client(signCtx, oauth1.NewToken(x.cfg.AccessToken, x.cfg.AccessSecret))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.cfg.APIBase+"/2/tweets", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("x post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("x post: status %d: %s", resp.StatusCode, body)
	}
	return nil
}
