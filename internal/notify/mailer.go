// Package notify delivers candidate-facing email: welcome messages for newly
// hired candidates and document completion links.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net"
	"net/http"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/jonathan/staffing-pipeline/internal/accounts"
	"github.com/jonathan/staffing-pipeline/internal/documents"
)

// DefaultResendEndpoint is the Resend send-email API
const DefaultResendEndpoint = "https://api.resend.com/emails"

// Config selects and configures the delivery transport. SMTP wins when a
// host is set, then Resend when an API key is set; with neither, messages
// are only logged.
type Config struct {
	ResendAPIKey   string
	ResendEndpoint string
	SMTPHost       string
	SMTPPort       string
	SMTPUser       string
	SMTPPass       string
	From           string
	LoginURL       string
	CompanyName    string
}

// Message is one outgoing email
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender transmits a rendered message
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Mailer renders notifications and hands them to a Sender
type Mailer struct {
	sender      Sender
	loginURL    string
	companyName string
}

// Option configures a Mailer
type Option func(*Mailer)

// WithSender overrides the transport chosen from the config
func WithSender(s Sender) Option {
	return func(m *Mailer) {
		m.sender = s
	}
}

// WithHTTPClient sets the client used for the Resend API
func WithHTTPClient(c *http.Client) Option {
	return func(m *Mailer) {
		if rs, ok := m.sender.(*ResendSender); ok {
			rs.client = c
		}
	}
}

// New creates a mailer for cfg
func New(cfg Config, opts ...Option) *Mailer {
	if cfg.CompanyName == "" {
		cfg.CompanyName = "The Hiring Team"
	}
	m := &Mailer{
		loginURL:    cfg.LoginURL,
		companyName: cfg.CompanyName,
	}
	switch {
	case cfg.SMTPHost != "":
		port := cfg.SMTPPort
		if port == "" {
			port = "587"
		}
		m.sender = &SMTPSender{Host: cfg.SMTPHost, Port: port, User: cfg.SMTPUser, Pass: cfg.SMTPPass, From: cfg.From}
	case cfg.ResendAPIKey != "":
		endpoint := cfg.ResendEndpoint
		if endpoint == "" {
			endpoint = DefaultResendEndpoint
		}
		m.sender = &ResendSender{apiKey: cfg.ResendAPIKey, endpoint: endpoint, from: cfg.From, client: &http.Client{Timeout: 15 * time.Second}}
	default:
		m.sender = LogSender{}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Transport names the active sender for startup logs
func (m *Mailer) Transport() string {
	switch m.sender.(type) {
	case *SMTPSender:
		return "smtp"
	case *ResendSender:
		return "resend"
	case LogSender:
		return "log"
	default:
		return "custom"
	}
}

// SendWelcome emails a newly created account its temporary credential
func (m *Mailer) SendWelcome(ctx context.Context, w accounts.Welcome) error {
	html, err := render("welcome.html", welcomeData{
		FirstName:    w.FirstName,
		Email:        w.Email,
		TempPassword: w.TempPassword,
		LoginURL:     m.loginURL,
		CompanyName:  m.companyName,
	})
	if err != nil {
		return err
	}
	return m.send(ctx, w.Email, "Welcome to "+m.companyName, html)
}

// SendDocumentLinks emails a candidate the links for a stage's documents
func (m *Mailer) SendDocumentLinks(ctx context.Context, msg documents.LinksEmail) error {
	items := make([]linkItem, 0, len(msg.Documents))
	for _, d := range msg.Documents {
		items = append(items, linkItem{Name: d.Name, Description: d.Description, URL: d.URL})
	}
	html, err := render("document_links.html", linksData{
		CandidateName: msg.CandidateName,
		StageName:     msg.StageName,
		CustomMessage: msg.CustomMessage,
		Documents:     items,
		CompanyName:   m.companyName,
	})
	if err != nil {
		return err
	}
	return m.send(ctx, msg.To, "Document Completion Links - "+msg.StageName, html)
}

func (m *Mailer) send(ctx context.Context, to, subject, html string) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("no recipient for %q", subject)
	}
	text, err := PlainText(html)
	if err != nil {
		return err
	}
	if err := m.sender.Send(ctx, Message{To: to, Subject: subject, HTML: html, Text: text}); err != nil {
		return fmt.Errorf("failed to send %q: %w", subject, err)
	}
	return nil
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

// ResendSender posts messages to the Resend API
type ResendSender struct {
	apiKey   string
	endpoint string
	from     string
	client   *http.Client
}

// Send implements Sender
func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(resendRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("resend API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// SMTPSender delivers multipart/alternative messages over SMTP
type SMTPSender struct {
	Host string
	Port string
	User string
	Pass string
	From string
}

// Send implements Sender
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := buildMIME(s.From, msg)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if s.User != "" {
		auth = smtp.PlainAuth("", s.User, s.Pass, s.Host)
	}
	from := s.From
	if from == "" {
		from = s.User
	}
	if err := smtp.SendMail(net.JoinHostPort(s.Host, s.Port), auth, from, []string{msg.To}, raw); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func buildMIME(from string, msg Message) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=\"UTF-8\"", msg.Text},
		{"text/html; charset=\"UTF-8\"", msg.HTML},
	}
	for _, p := range parts {
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {p.contentType}})
		if err != nil {
			return nil, fmt.Errorf("failed to create MIME part: %w", err)
		}
		if _, err := io.WriteString(w, p.content); err != nil {
			return nil, fmt.Errorf("failed to write MIME part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close MIME writer: %w", err)
	}

	var out bytes.Buffer
	out.WriteString("From: " + from + "\r\n")
	out.WriteString("To: " + msg.To + "\r\n")
	out.WriteString("Subject: " + msg.Subject + "\r\n")
	out.WriteString("MIME-Version: 1.0\r\n")
	out.WriteString("Content-Type: multipart/alternative; boundary=\"" + mw.Boundary() + "\"\r\n")
	out.WriteString("\r\n")
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

// LogSender only logs messages. Used when no transport is configured.
type LogSender struct{}

// Send implements Sender
func (LogSender) Send(_ context.Context, msg Message) error {
	log.Printf("[notify] email transport not configured; would send %q to %s", msg.Subject, msg.To)
	return nil
}
