package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hamed0406/uptimemon/internal/domain"
)

var errMissingConfig = errors.New("channel config missing")

func defaultClient() *http.Client { return &http.Client{Timeout: 10 * time.Second} }

// postJSON posts v and treats any non-2xx response as an error.
func postJSON(ctx context.Context, client *http.Client, url string, v any, headers map[string]string) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("non-2xx response: %d", resp.StatusCode)
	}
	return nil
}

// Slack posts to an incoming webhook (config: webhook_url).
type Slack struct {
	Client *http.Client
}

func NewSlack() *Slack {
	return &Slack{Client: defaultClient()}
}

type slackPayload struct {
	Text string `json:"text"`
}

func (s *Slack) Send(ctx context.Context, ch domain.NotificationChannel, p Payload) error {
	webhook := ch.ConfigString("webhook_url")
	if webhook == "" {
		return fmt.Errorf("slack: %w: webhook_url", errMissingConfig)
	}
	if err := postJSON(ctx, s.Client, webhook, slackPayload{Text: "*" + p.Title() + "*\n" + p.Text()}, nil); err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	return nil
}

// Discord posts to a channel webhook (config: webhook_url).
type Discord struct {
	Client *http.Client
}

func NewDiscord() *Discord { return &Discord{Client: defaultClient()} }

type discordPayload struct {
	Content  string `json:"content"`
	Username string `json:"username,omitempty"`
}

func (d *Discord) Send(ctx context.Context, ch domain.NotificationChannel, p Payload) error {
	webhook := ch.ConfigString("webhook_url")
	if webhook == "" {
		return fmt.Errorf("discord: %w: webhook_url", errMissingConfig)
	}
	msg := discordPayload{Content: "**" + p.Title() + "**\n" + p.Text(), Username: ch.ConfigString("username")}
	if err := postJSON(ctx, d.Client, webhook, msg, nil); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}
