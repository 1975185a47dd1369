package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/uptimemon/internal/domain"
)

func samplePayload() Payload {
	return Payload{
		MonitorID:      "api",
		MonitorName:    "API",
		Target:         "https://api.example.com",
		Status:         domain.StatusDown,
		PreviousStatus: domain.StatusUp,
		Timestamp:      time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC),
		Latency:        1500 * time.Millisecond,
		Uptime:         99.5,
		Reason:         "timeout",
	}
}

func channel(typ domain.ChannelType, cfg map[string]any) domain.NotificationChannel {
	return domain.NotificationChannel{ID: string(typ), Type: typ, Name: string(typ), Enabled: true, Config: cfg}
}

func TestSlack_OK(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		got = payload["text"]
		w.WriteHeader(200)
	}))
	defer ts.Close()

	err := NewSlack().Send(context.Background(), channel(domain.ChannelSlack, map[string]any{"webhook_url": ts.URL}), samplePayload())
	if err != nil {
		t.Fatalf("send err: %v", err)
	}
	if !strings.HasPrefix(got, "*DOWN: API*") || !strings.Contains(got, "Reason: timeout") {
		t.Fatalf("payload not as expected: %q", got)
	}
}

func TestSlack_Non2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer ts.Close()

	err := NewSlack().Send(context.Background(), channel(domain.ChannelSlack, map[string]any{"webhook_url": ts.URL}), samplePayload())
	if err == nil {
		t.Fatalf("expected error on non-2xx")
	}
}

func TestSlack_MissingWebhook(t *testing.T) {
	if err := NewSlack().Send(context.Background(), channel(domain.ChannelSlack, nil), samplePayload()); err == nil {
		t.Fatal("expected config error")
	}
}

func TestDiscord_Content(t *testing.T) {
	var got discordPayload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	ch := channel(domain.ChannelDiscord, map[string]any{"webhook_url": ts.URL, "username": "uptimemon"})
	if err := NewDiscord().Send(context.Background(), ch, samplePayload()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.HasPrefix(got.Content, "**DOWN: API**") || got.Username != "uptimemon" {
		t.Fatalf("unexpected body %+v", got)
	}
}

func TestWebhook_SendsPayloadAndSecret(t *testing.T) {
	var (
		body   map[string]any
		secret string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret = r.Header.Get("X-Uptimemon-Secret")
		_ = json.NewDecoder(r.Body).Decode(&body)
	}))
	defer ts.Close()

	ch := channel(domain.ChannelWebhook, map[string]any{"url": ts.URL, "secret": "s3cr3t"})
	if err := NewWebhook().Send(context.Background(), ch, samplePayload()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if secret != "s3cr3t" {
		t.Fatalf("secret header %q", secret)
	}
	if body["monitor_id"] != "api" || body["status"] != "down" || body["previous_status"] != "up" || body["title"] != "DOWN: API" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestSMS_Gateway(t *testing.T) {
	var (
		got  smsBody
		auth string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer ts.Close()

	ch := channel(domain.ChannelSMS, map[string]any{"url": ts.URL, "to": "+15550100", "token": "tok"})
	if err := NewSMS().Send(context.Background(), ch, samplePayload()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.To != "+15550100" || got.Message != "DOWN: API (timeout)" || auth != "Bearer tok" {
		t.Fatalf("unexpected sms %+v auth=%q", got, auth)
	}
}

func TestPayload_Text(t *testing.T) {
	txt := samplePayload().Text()
	for _, want := range []string{"Target: https://api.example.com", "Status: up -> down", "Latency: 1.5s", "Uptime: 99.50%", "At: 2025-05-01 08:00:00 UTC"} {
		if !strings.Contains(txt, want) {
			t.Fatalf("text missing %q:\n%s", want, txt)
		}
	}
}
