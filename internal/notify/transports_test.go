package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/uptimemon/internal/domain"
)

func TestEmail_BuildsMessage(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	e := &Email{sendMail: func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}}
	ch := channel(domain.ChannelEmail, map[string]any{
		"host": "smtp.example.com", "port": 2525, "from": "mon@example.com", "to": "a@example.com, b@example.com",
	})
	if err := e.Send(context.Background(), ch, samplePayload()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotAddr != "smtp.example.com:2525" || len(gotTo) != 2 {
		t.Fatalf("addr=%s to=%v", gotAddr, gotTo)
	}
	if !strings.Contains(gotMsg, "Subject: DOWN: API\r\n") || !strings.Contains(gotMsg, "Reason: timeout\r\n") {
		t.Fatalf("unexpected message:\n%s", gotMsg)
	}
}

func TestEmail_GivesUpOnContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	e := &Email{sendMail: func(string, smtp.Auth, string, []string, []byte) error {
		<-block
		return nil
	}}
	ch := channel(domain.ChannelEmail, map[string]any{"host": "h", "from": "f@x", "to": "t@x"})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := e.Send(ctx, ch, samplePayload()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
}

func TestTelegram_SendMessage(t *testing.T) {
	var gotPath, gotChat, gotText string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			gotChat = fmt.Sprint(body["chat_id"])
			gotText, _ = body["text"].(string)
		} else {
			_ = r.ParseMultipartForm(1 << 20)
			gotChat = r.FormValue("chat_id")
			gotText = r.FormValue("text")
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"result": map[string]any{
				"message_id": 1,
				"date":       0,
				"chat":       map[string]any{"id": 42, "type": "private"},
			},
		})
	}))
	defer ts.Close()

	ch := channel(domain.ChannelTelegram, map[string]any{"bot_token": "123:abc", "chat_id": "42", "api_url": ts.URL})
	if err := NewTelegram().Send(context.Background(), ch, samplePayload()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.HasSuffix(gotPath, "/sendMessage") {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotChat != "42" || !strings.HasPrefix(gotText, "DOWN: API") {
		t.Fatalf("chat=%q text=%q", gotChat, gotText)
	}
}

func TestChatIDFrom(t *testing.T) {
	if v := chatIDFrom("@ops"); v != "@ops" {
		t.Fatalf("got %v", v)
	}
	if v := chatIDFrom("-100123"); v != int64(-100123) {
		t.Fatalf("got %v", v)
	}
	if v := chatIDFrom(float64(7)); v != int64(7) {
		t.Fatalf("got %v", v)
	}
	if v := chatIDFrom(nil); v != nil {
		t.Fatalf("got %v", v)
	}
}
