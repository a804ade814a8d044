package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/bher20/flightticker/internal/fares"
)

const telegramAPI = "https://api.telegram.org"

type TelegramConfig struct {
	BotToken string
	ChatID   string
	// SiteURL is linked from the inline "view chart" button.
	SiteURL string
	// ImageURL, when set, sends the message as a photo caption. "{code}" is
	// replaced with the route code.
	ImageURL string
	// APIBase overrides the Bot API host (tests).
	APIBase string
}

// TelegramSink posts drop alerts to a chat through the Bot API.
type TelegramSink struct {
	cfg    TelegramConfig
	client *http.Client
}

func NewTelegramSink(cfg TelegramConfig, client *http.Client) *TelegramSink {
	if cfg.APIBase == "" {
		cfg.APIBase = telegramAPI
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &TelegramSink{cfg: cfg, client: client}
}

func (t *TelegramSink) Name() string { return "telegram" }

func (t *TelegramSink) Enabled() bool { return t.cfg.BotToken != "" && t.cfg.ChatID != "" }

type inlineButton struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

func (t *TelegramSink) Send(ctx context.Context, ev fares.DropEvent) error {
	// Messages are sent with parse_mode HTML.
	text := html.EscapeString(FormatDropMessage(ev))

	body := map[string]interface{}{
		"chat_id":    t.cfg.ChatID,
		"parse_mode": "HTML",
	}
	if buttons := t.buttons(ev); len(buttons) > 0 {
		body["reply_markup"] = map[string]interface{}{"inline_keyboard": [][]inlineButton{buttons}}
	}

	method := "sendMessage"
	if t.cfg.ImageURL != "" {
		method = "sendPhoto"
		body["photo"] = strings.ReplaceAll(t.cfg.ImageURL, "{code}", ev.RouteCode)
		body["caption"] = text
	} else {
		body["text"] = text
		body["disable_web_page_preview"] = true
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("telegram payload: %w", err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", t.cfg.APIBase, t.cfg.BotToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// The request URL embeds the bot token; keep it out of logs.
		return fmt.Errorf("telegram %s: request failed", method)
	}
	defer resp.Body.Close()

	var out struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &out)
	if resp.StatusCode >= 400 || !out.OK {
		return fmt.Errorf("telegram %s: status %d: %s", method, resp.StatusCode, out.Description)
	}
	return nil
}

func (t *TelegramSink) buttons(ev fares.DropEvent) []inlineButton {
	if t.cfg.SiteURL == "" {
		return nil
	}
	site := strings.TrimRight(t.cfg.SiteURL, "/")
	return []inlineButton{
		{Text: "📈 View chart", URL: site + "/?route=" + ev.RouteCode},
		{Text: "🔎 Search flights", URL: fmt.Sprintf("https://www.google.com/travel/flights?q=Flights%%20to%%20%s%%20from%%20%s%%20on%%20%s", ev.RouteCode, fares.Origin, ev.DepartureDate)},
	}
}

// FormatDropMessage renders the chat/social text for a drop event.
func FormatDropMessage(ev fares.DropEvent) string {
	return fmt.Sprintf("📉 %s (%s) fare drop!\n%s KRW (-%s, -%.1f%%)\n🗓 %s ~ %s\n#%s #FlightTicker",
		ev.City, ev.RouteCode,
		humanize.Comma(ev.Price), humanize.Comma(ev.Drop), ev.DropPercent,
		ev.DepartureDate, ev.ReturnDate, ev.RouteCode)
}
