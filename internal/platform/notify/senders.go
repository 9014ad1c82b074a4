package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/smtp"
	"sync"
	"time"
)

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// VoiceSender is the interface for sending voice/text messages.
type VoiceSender interface {
	SendVoice(ctx context.Context, to, body string) error
}

// ---------------------------------------------------------------------------
// SMTP email sender
// ---------------------------------------------------------------------------

// SMTPEmailSender delivers email through a plain SMTP relay. Every call
// bounds its own dial and I/O so a hung relay cannot pin a fan-out worker.
type SMTPEmailSender struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
	Timeout  time.Duration
}

// NewSMTPEmailSender creates an SMTP sender with a 10 second call timeout.
func NewSMTPEmailSender(host string, port int, from, username, password string) *SMTPEmailSender {
	return &SMTPEmailSender{
		Host:     host,
		Port:     port,
		From:     from,
		Username: username,
		Password: password,
		Timeout:  10 * time.Second,
	}
}

// SendEmail sends a single plain-text message.
func (s *SMTPEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)

	conn, err := net.DialTimeout("tcp", addr, s.Timeout)
	if err != nil {
		return fmt.Errorf("dial smtp relay %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(s.Timeout))
	}

	client, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(nil); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if s.Username != "" {
		auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(s.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", s.From, to, subject, body)
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close body: %w", err)
	}

	return client.Quit()
}

// ---------------------------------------------------------------------------
// HTTP voice gateway sender
// ---------------------------------------------------------------------------

// GatewayVoiceSender delivers voice/text messages through an external HTTP
// gateway that places the call or sends the text on our behalf.
type GatewayVoiceSender struct {
	url    string
	token  string
	client *http.Client
}

// NewGatewayVoiceSender creates a gateway client with a 10 second call timeout.
func NewGatewayVoiceSender(url, token string) *GatewayVoiceSender {
	return &GatewayVoiceSender{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type gatewayRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// SendVoice posts the message to the gateway. Any non-2xx status is an error.
func (s *GatewayVoiceSender) SendVoice(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(gatewayRequest{To: to, Message: body})
	if err != nil {
		return fmt.Errorf("marshal gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("call voice gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("voice gateway returned status %d", resp.StatusCode)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Mock senders (test doubles)
// ---------------------------------------------------------------------------

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// VoiceCall records a single call to SendVoice.
type VoiceCall struct {
	To   string
	Body string
}

// MockVoiceSender is a test double for VoiceSender.
type MockVoiceSender struct {
	mu         sync.Mutex
	calls      []VoiceCall
	ShouldFail bool
	FailError  string
}

// SendVoice records the call and optionally returns an error.
func (m *MockVoiceSender) SendVoice(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, VoiceCall{To: to, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded voice calls.
func (m *MockVoiceSender) Calls() []VoiceCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]VoiceCall, len(m.calls))
	copy(out, m.calls)
	return out
}
