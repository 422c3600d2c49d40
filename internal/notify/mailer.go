package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Text    string
}

// Mailer sends email.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// HTTPMailer posts messages to a transactional email API.
type HTTPMailer struct {
	baseURL string
	apiKey  string
	from    string
	http    *http.Client
}

// NewHTTPMailer returns an HTTPMailer sending as from.
func NewHTTPMailer(baseURL, apiKey, from string, hc *http.Client) *HTTPMailer {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPMailer{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, from: from, http: hc}
}

type mailPayload struct {
	Personalizations []struct {
		To []mailAddress `json:"to"`
	} `json:"personalizations"`
	From    mailAddress   `json:"from"`
	Subject string        `json:"subject"`
	Content []mailContent `json:"content"`
}

type mailAddress struct {
	Email string `json:"email"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Send delivers m.
func (h *HTTPMailer) Send(ctx context.Context, m Message) error {
	var p mailPayload
	p.Personalizations = make([]struct {
		To []mailAddress `json:"to"`
	}, 1)
	p.Personalizations[0].To = []mailAddress{{Email: m.To}}
	p.From = mailAddress{Email: h.from}
	p.Subject = m.Subject
	p.Content = []mailContent{{Type: "text/plain", Value: m.Text}}

	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+h.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.http.Do(req)
	if err != nil {
		return fmt.Errorf("mail send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("mail send: status %d", resp.StatusCode)
	}
	return nil
}

// LogMailer logs messages instead of sending them.
type LogMailer struct {
	Log *slog.Logger
}

func (l LogMailer) Send(ctx context.Context, m Message) error {
	if l.Log != nil {
		l.Log.InfoContext(ctx, "mail (not sent)", "to", m.To, "subject", m.Subject)
	}
	return nil
}
