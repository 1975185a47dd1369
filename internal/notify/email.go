package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/hamed0406/uptimemon/internal/domain"
)

// Email sends through SMTP (config: host, port, username, password, from, to).
// "to" is a comma separated list.
type Email struct {
	// sendMail is swapped in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmail() *Email { return &Email{sendMail: smtp.SendMail} }

func (e *Email) Send(ctx context.Context, ch domain.NotificationChannel, p Payload) error {
	host, from := ch.ConfigString("host"), ch.ConfigString("from")
	to := splitList(ch.ConfigString("to"))
	if host == "" || from == "" || len(to) == 0 {
		return fmt.Errorf("email: %w: host, from and to", errMissingConfig)
	}
	port := ch.ConfigString("port")
	if port == "" {
		if n, ok := ch.Config["port"].(int); ok {
			port = strconv.Itoa(n)
		} else {
			port = "587"
		}
	}

	var auth smtp.Auth
	if user := ch.ConfigString("username"); user != "" {
		auth = smtp.PlainAuth("", user, ch.ConfigString("password"), host)
	}
	msg := buildMessage(from, to, p.Title(), p.Text(), p.Timestamp)

	// net/smtp has no context support; give up waiting once ctx ends.
	done := make(chan error, 1)
	go func() { done <- e.sendMail(net.JoinHostPort(host, port), auth, from, to, msg) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("email: %w", ctx.Err())
	}
}

func buildMessage(from string, to []string, subject, body string, at time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", at.UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
