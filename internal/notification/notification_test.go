package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/bher20/flightticker/internal/config"
	"github.com/bher20/flightticker/internal/fares"
)

var nrtDrop = fares.DropEvent{
	RouteCode:     "NRT",
	City:          "Tokyo",
	Price:         235000,
	PreviousPrice: 250000,
	Delta:         -15000,
	Drop:          15000,
	DropPercent:   6,
	DepartureDate: "2025-03-14",
	ReturnDate:    "2025-03-16",
}

type fakeSink struct {
	name    string
	enabled bool
	err     error
	got     []fares.DropEvent
}

func (f *fakeSink) Name() string  { return f.name }
func (f *fakeSink) Enabled() bool { return f.enabled }
func (f *fakeSink) Send(ctx context.Context, ev fares.DropEvent) error {
	f.got = append(f.got, ev)
	return f.err
}

func TestDispatch_SkipsDisabledAndIsolatesFailures(t *testing.T) {
	ok1 := &fakeSink{name: "telegram", enabled: true}
	off := &fakeSink{name: "x", enabled: false}
	bad := &fakeSink{name: "webhook", enabled: true, err: errors.New("boom")}
	ok2 := &fakeSink{name: "email", enabled: true}

	rep := NewDispatcher(ok1, off, bad, ok2).Dispatch(context.Background(), nrtDrop)

	if len(ok1.got) != 1 || len(ok2.got) != 1 || len(bad.got) != 1 {
		t.Fatalf("every enabled sink should be attempted once")
	}
	if len(off.got) != 0 {
		t.Fatalf("disabled sink must not be attempted")
	}
	if len(rep.Sent) != 2 || len(rep.Skipped) != 1 || len(rep.Failed) != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if rep.Failed["webhook"] == nil {
		t.Fatalf("expected webhook failure recorded")
	}
	if ok1.got[0] != nrtDrop {
		t.Fatalf("payload mismatch: %+v", ok1.got[0])
	}
}

func TestFromConfig_NoCredentialsMeansAllSkipped(t *testing.T) {
	d := FromConfig(config.Config{})
	defer d.Close()
	if len(d.Sinks()) != 5 {
		t.Fatalf("expected 5 sinks, got %d", len(d.Sinks()))
	}
	rep := d.Dispatch(context.Background(), nrtDrop)
	if len(rep.Skipped) != 5 || len(rep.Sent) != 0 || len(rep.Failed) != 0 {
		t.Fatalf("expected every sink skipped: %+v", rep)
	}
}

func TestTelegramSink_SendMessage(t *testing.T) {
	var path string
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	s := NewTelegramSink(TelegramConfig{BotToken: "123:abc", ChatID: "@tickers", SiteURL: "https://ticker.example/", APIBase: srv.URL}, srv.Client())
	if !s.Enabled() {
		t.Fatalf("expected enabled")
	}
	if err := s.Send(context.Background(), nrtDrop); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if path != "/bot123:abc/sendMessage" {
		t.Fatalf("unexpected path %s", path)
	}
	text, _ := body["text"].(string)
	if !strings.Contains(text, "235,000") || !strings.Contains(text, "15,000") || !strings.Contains(text, "2025-03-14") {
		t.Fatalf("unexpected text: %q", text)
	}
	markup, _ := body["reply_markup"].(map[string]interface{})
	rows, _ := markup["inline_keyboard"].([]interface{})
	if len(rows) != 1 {
		t.Fatalf("expected one row of inline buttons, got %v", markup)
	}
	first := rows[0].([]interface{})[0].(map[string]interface{})
	if first["url"] != "https://ticker.example/?route=NRT" {
		t.Fatalf("unexpected button url: %v", first["url"])
	}
}

func TestTelegramSink_EscapesHTML(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	ev := nrtDrop
	ev.City = "Tokyo & <Narita>"
	s := NewTelegramSink(TelegramConfig{BotToken: "t", ChatID: "1", APIBase: srv.URL}, srv.Client())
	if err := s.Send(context.Background(), ev); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if body["parse_mode"] != "HTML" {
		t.Fatalf("unexpected parse_mode: %v", body["parse_mode"])
	}
	text, _ := body["text"].(string)
	if !strings.Contains(text, "Tokyo &amp; &lt;Narita&gt;") || strings.Contains(text, "<Narita>") {
		t.Fatalf("city not escaped: %q", text)
	}
}

func TestTelegramSink_PhotoAndAPIError(t *testing.T) {
	var path string
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"ok":false,"description":"chat not found"}`)
	}))
	defer srv.Close()

	s := NewTelegramSink(TelegramConfig{BotToken: "t", ChatID: "1", ImageURL: "https://img.example/og?code={code}", APIBase: srv.URL}, srv.Client())
	err := s.Send(context.Background(), nrtDrop)
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected API error, got %v", err)
	}
	if path != "/bott/sendPhoto" || body["photo"] != "https://img.example/og?code=NRT" {
		t.Fatalf("unexpected photo request: %s %v", path, body)
	}
	if _, ok := body["reply_markup"]; ok {
		t.Fatalf("no buttons expected without site url")
	}
}

func TestXSink_SignsRequest(t *testing.T) {
	var auth string
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := NewXSink(XConfig{ConsumerKey: "ck", ConsumerSecret: "cs", AccessToken: "at", AccessSecret: "as", APIBase: srv.URL}, srv.Client())
	if !s.Enabled() {
		t.Fatalf("expected enabled")
	}
	if err := s.Send(context.Background(), nrtDrop); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !strings.HasPrefix(auth, "OAuth ") || !strings.Contains(auth, `oauth_consumer_key="ck"`) || !strings.Contains(auth, "oauth_signature=") {
		t.Fatalf("request not OAuth1 signed: %q", auth)
	}
	if !strings.Contains(body["text"], "#NRT") {
		t.Fatalf("unexpected text: %q", body["text"])
	}

	if NewXSink(XConfig{ConsumerKey: "ck"}, nil).Enabled() {
		t.Fatalf("partial credentials must disable the sink")
	}
}

func TestEmailSink_SendGridRequest(t *testing.T) {
	var auth, path string
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewEmailSink(EmailConfig{APIKey: "SG.key", FromAddress: "alerts@example.org", FromName: "Ticker", To: "a@example.org, b@example.org", Host: srv.URL})
	if !s.Enabled() {
		t.Fatalf("expected enabled")
	}
	if err := s.Send(context.Background(), nrtDrop); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if auth != "Bearer SG.key" || path != "/v3/mail/send" {
		t.Fatalf("unexpected request: auth=%q path=%q", auth, path)
	}
	if !strings.Contains(body["subject"].(string), "235,000") {
		t.Fatalf("unexpected subject: %v", body["subject"])
	}
	pers := body["personalizations"].([]interface{})[0].(map[string]interface{})
	if len(pers["to"].([]interface{})) != 2 {
		t.Fatalf("expected two recipients: %v", pers)
	}

	if NewEmailSink(EmailConfig{APIKey: "k", FromAddress: "a@b"}).Enabled() {
		t.Fatalf("no recipients must disable the sink")
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSink(t *testing.T) {
	if NewKafkaSink(nil, "drops").Enabled() {
		t.Fatalf("no brokers must disable the sink")
	}

	w := &fakeWriter{}
	s := &KafkaSink{topic: "drops", writer: w}
	if err := s.Send(context.Background(), nrtDrop); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "NRT" {
		t.Fatalf("unexpected messages: %+v", w.msgs)
	}
	var ev fares.DropEvent
	if err := json.Unmarshal(w.msgs[0].Value, &ev); err != nil || ev.Drop != 15000 {
		t.Fatalf("unexpected value: %s err=%v", w.msgs[0].Value, err)
	}
	if err := NewDispatcher(s).Close(); err != nil || !w.closed {
		t.Fatalf("dispatcher close should close the writer")
	}
}
