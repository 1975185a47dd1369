package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hamed0406/uptimemon/internal/domain"
)

// Webhook posts the raw Payload as JSON (config: url, optional secret sent as X-Uptimemon-Secret).
type Webhook struct {
	Client *http.Client
}

func NewWebhook() *Webhook { return &Webhook{Client: defaultClient()} }

type webhookBody struct {
	Payload
	Title string `json:"title"`
	Text  string `json:"text"`
}

func (w *Webhook) Send(ctx context.Context, ch domain.NotificationChannel, p Payload) error {
	url := ch.ConfigString("url")
	if url == "" {
		return fmt.Errorf("webhook: %w: url", errMissingConfig)
	}
	var headers map[string]string
	if secret := ch.ConfigString("secret"); secret != "" {
		headers = map[string]string{"X-Uptimemon-Secret": secret}
	}
	if err := postJSON(ctx, w.Client, url, webhookBody{Payload: p, Title: p.Title(), Text: p.Text()}, headers); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

// SMS sends through an HTTP SMS gateway (config: url, to, optional token as a bearer token).
type SMS struct {
	Client *http.Client
}

func NewSMS() *SMS { return &SMS{Client: defaultClient()} }

type smsBody struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

func (s *SMS) Send(ctx context.Context, ch domain.NotificationChannel, p Payload) error {
	url, to := ch.ConfigString("url"), ch.ConfigString("to")
	if url == "" || to == "" {
		return fmt.Errorf("sms: %w: url and to", errMissingConfig)
	}
	var headers map[string]string
	if tok := ch.ConfigString("token"); tok != "" {
		headers = map[string]string{"Authorization": "Bearer " + tok}
	}
	// keep it short; carriers split long messages
	msg := p.Title()
	if p.Reason != "" {
		msg += " (" + p.Reason + ")"
	}
	if err := postJSON(ctx, s.Client, url, smsBody{To: to, Message: msg}, headers); err != nil {
		return fmt.Errorf("sms: %w", err)
	}
	return nil
}
