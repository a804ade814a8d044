package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/bher20/flightticker/internal/fares"
)

const sendgridHost = "https://api.sendgrid.com"

type EmailConfig struct {
	APIKey      string
	FromAddress string
	FromName    string
	// To is a comma-separated recipient list.
	To string
	// Host overrides the SendGrid API host (tests).
	Host string
}

// EmailSink mails drop alerts through SendGrid.
type EmailSink struct {
	cfg EmailConfig
}

func NewEmailSink(cfg EmailConfig) *EmailSink {
	if cfg.Host == "" {
		cfg.Host = sendgridHost
	}
	return &EmailSink{cfg: cfg}
}

func (e *EmailSink) Name() string { return "email" }

func (e *EmailSink) Enabled() bool {
	return e.cfg.APIKey != "" && e.cfg.FromAddress != "" && len(e.recipients()) > 0
}

func (e *EmailSink) recipients() []string {
	var out []string
	for _, r := range strings.Split(e.cfg.To, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func (e *EmailSink) Send(ctx context.Context, ev fares.DropEvent) error {
	subject := fmt.Sprintf("[Flight Ticker] %s (%s) dropped to %s KRW", ev.City, ev.RouteCode, humanize.Comma(ev.Price))
	plain := FormatDropMessage(ev)
	html := fmt.Sprintf(`<h2>%s (%s)</h2>
<p><strong>%s KRW</strong> &mdash; down %s KRW (%.1f%%) from %s KRW.</p>
<p>Departure %s, return %s.</p>`,
		ev.City, ev.RouteCode,
		humanize.Comma(ev.Price), humanize.Comma(ev.Drop), ev.DropPercent, humanize.Comma(ev.PreviousPrice),
		ev.DepartureDate, ev.ReturnDate)

	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(e.cfg.FromName, e.cfg.FromAddress))
	m.Subject = subject
	p := mail.NewPersonalization()
	for _, to := range e.recipients() {
		p.AddTos(mail.NewEmail("", to))
	}
	m.AddPersonalizations(p)
	m.AddContent(mail.NewContent("text/plain", plain), mail.NewContent("text/html", html))

	req := sendgrid.GetRequest(e.cfg.APIKey, "/v3/mail/send", e.cfg.Host)
	req.Method = "POST"
	req.Body = mail.GetRequestBody(m)

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: %d %s", resp.StatusCode, resp.Body)
	}
	return nil
}
