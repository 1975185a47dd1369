package probe

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/hamed0406/uptimemon/internal/domain"
)

type TCPChecker struct{}

func NewTCPChecker() *TCPChecker { return &TCPChecker{} }

func (c *TCPChecker) Probe(ctx context.Context, m domain.Monitor) Result {
	start := time.Now()
	addr := tcpAddress(m)

	d := net.Dialer{Timeout: m.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return failure(start, describe(err))
	}
	lat := time.Since(start)
	_ = conn.Close()
	return Result{Success: true, Latency: lat, Message: "connected to " + addr}
}

// tcpAddress prefers an explicit port option over one embedded in the target.
func tcpAddress(m domain.Monitor) string {
	if m.Port == 0 {
		return m.Target
	}
	host := m.Target
	if h, _, err := net.SplitHostPort(m.Target); err == nil {
		host = h
	}
	return net.JoinHostPort(host, strconv.Itoa(m.Port))
}
