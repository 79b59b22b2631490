package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/staffing-pipeline/internal/accounts"
	"github.com/jonathan/staffing-pipeline/internal/documents"
)

type captureSender struct {
	sent []Message
	err  error
}

func (c *captureSender) Send(_ context.Context, msg Message) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

func TestNew_TransportSelection(t *testing.T) {
	assert.Equal(t, "log", New(Config{}).Transport())
	assert.Equal(t, "resend", New(Config{ResendAPIKey: "re_123"}).Transport())
	assert.Equal(t, "smtp", New(Config{ResendAPIKey: "re_123", SMTPHost: "mail.local"}).Transport())
	assert.Equal(t, "custom", New(Config{}, WithSender(&captureSender{})).Transport())
}

func TestSendWelcome(t *testing.T) {
	c := &captureSender{}
	m := New(Config{LoginURL: "https://app.example.com/login", CompanyName: "Acme Staffing"}, WithSender(c))

	err := m.SendWelcome(context.Background(), accounts.Welcome{
		Email:        "dana@example.com",
		FirstName:    "Dana",
		TempPassword: "Xy7-pass",
	})
	require.NoError(t, err)
	require.Len(t, c.sent, 1)

	msg := c.sent[0]
	assert.Equal(t, "dana@example.com", msg.To)
	assert.Equal(t, "Welcome to Acme Staffing", msg.Subject)
	assert.Contains(t, msg.HTML, "Xy7-pass")
	assert.Contains(t, msg.HTML, `href="https://app.example.com/login"`)
	assert.Contains(t, msg.Text, "Welcome aboard, Dana!")
	assert.Contains(t, msg.Text, "Temporary password: Xy7-pass")
	assert.NotContains(t, msg.Text, "<")
}

func TestSendWelcome_EscapesHTML(t *testing.T) {
	c := &captureSender{}
	m := New(Config{}, WithSender(c))

	require.NoError(t, m.SendWelcome(context.Background(), accounts.Welcome{Email: "x@example.com", FirstName: "<script>"}))
	assert.NotContains(t, c.sent[0].HTML, "<script>")
}

func TestSendDocumentLinks(t *testing.T) {
	c := &captureSender{}
	m := New(Config{}, WithSender(c))

	err := m.SendDocumentLinks(context.Background(), documents.LinksEmail{
		To:            "sam@example.com",
		CandidateName: "Sam Lee",
		StageName:     "Onboarding",
		CustomMessage: "Due Friday",
		Documents: []documents.LinkedDocument{
			{Name: "I-9", Description: "Employment eligibility", URL: "http://localhost:5173/candidate/document/abc"},
			{Name: "W-4", URL: "http://localhost:5173/candidate/document/def"},
		},
	})
	require.NoError(t, err)
	require.Len(t, c.sent, 1)

	msg := c.sent[0]
	assert.Equal(t, "Document Completion Links - Onboarding", msg.Subject)
	assert.Contains(t, msg.Text, "- I-9 (http://localhost:5173/candidate/document/abc): Employment eligibility")
	assert.Contains(t, msg.Text, "- W-4 (http://localhost:5173/candidate/document/def)")
	assert.Contains(t, msg.Text, "Due Friday")
}

func TestSend_Errors(t *testing.T) {
	c := &captureSender{err: errors.New("boom")}
	m := New(Config{}, WithSender(c))

	err := m.SendWelcome(context.Background(), accounts.Welcome{Email: "x@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	err = m.SendDocumentLinks(context.Background(), documents.LinksEmail{StageName: "Onboarding"})
	require.Error(t, err)
}

func TestResendSender(t *testing.T) {
	var got resendRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"msg_1"}`))
	}))
	defer srv.Close()

	m := New(Config{ResendAPIKey: "re_key", ResendEndpoint: srv.URL, From: "hr@acme.test"}, WithHTTPClient(srv.Client()))
	require.NoError(t, m.SendWelcome(context.Background(), accounts.Welcome{Email: "dana@example.com", FirstName: "Dana"}))

	assert.Equal(t, "Bearer re_key", auth)
	assert.Equal(t, "hr@acme.test", got.From)
	assert.Equal(t, []string{"dana@example.com"}, got.To)
	assert.NotEmpty(t, got.HTML)
	assert.NotEmpty(t, got.Text)
}

func TestResendSender_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid from"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	m := New(Config{ResendAPIKey: "re_key", ResendEndpoint: srv.URL}, WithHTTPClient(srv.Client()))
	err := m.SendWelcome(context.Background(), accounts.Welcome{Email: "dana@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 422")
	assert.Contains(t, err.Error(), "invalid from")
}

func TestBuildMIME(t *testing.T) {
	raw, err := buildMIME("hr@acme.test", Message{To: "a@b.c", Subject: "Hi", HTML: "<p>Hi</p>", Text: "Hi"})
	require.NoError(t, err)

	s := string(raw)
	assert.True(t, strings.HasPrefix(s, "From: hr@acme.test\r\n"))
	assert.Contains(t, s, "Content-Type: multipart/alternative; boundary=")
	plain := strings.Index(s, "text/plain")
	html := strings.Index(s, "text/html")
	assert.True(t, plain > 0 && html > plain, "plain part must precede html part")
}

func TestSMTPSender_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := (&SMTPSender{Host: "127.0.0.1", Port: "1"}).Send(ctx, Message{To: "a@b.c"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPlainText(t *testing.T) {
	text, err := PlainText(`<html><head><style>p{}</style></head><body>
		<h2>Title</h2><p>First   line<br>second line</p>
		<script>alert(1)</script>
		<p><a href="https://x.test">https://x.test</a></p></body></html>`)
	require.NoError(t, err)
	assert.Equal(t, "Title\nFirst line\nsecond line\n\nhttps://x.test", text)
}
