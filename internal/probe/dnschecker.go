package probe

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/hamed0406/uptimemon/internal/domain"
)

const fallbackResolver = "8.8.8.8:53"

type DNSChecker struct {
	// DefaultResolver is used when the monitor names none. host:port.
	DefaultResolver string
}

func NewDNSChecker() *DNSChecker {
	resolver := fallbackResolver
	if cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil && len(cfg.Servers) > 0 {
		resolver = net.JoinHostPort(cfg.Servers[0], cfg.Port)
	}
	return &DNSChecker{DefaultResolver: resolver}
}

func (d *DNSChecker) Probe(ctx context.Context, m domain.Monitor) Result {
	start := time.Now()

	rt := strings.ToUpper(m.DNS.RecordType)
	if rt == "" {
		rt = domain.DefaultRecordType
	}
	qtype, ok := dns.StringToType[rt]
	if !ok {
		return failure(start, "unsupported record type "+rt)
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(strings.TrimSpace(m.Target)), qtype)
	msg.RecursionDesired = true

	server := resolverAddr(m.DNS.Resolver, d.DefaultResolver)
	client := &dns.Client{Timeout: m.Timeout}

	resp, _, err := client.ExchangeContext(ctx, msg, server)
	if err == nil && resp != nil && resp.Truncated {
		client.Net = "tcp"
		resp, _, err = client.ExchangeContext(ctx, msg, server)
	}
	if err != nil {
		return failure(start, describe(err))
	}
	if resp.Rcode != dns.RcodeSuccess {
		return failure(start, "dns "+dns.RcodeToString[resp.Rcode])
	}
	if len(resp.Answer) == 0 {
		return failure(start, fmt.Sprintf("no %s records", rt))
	}
	return Result{
		Success: true,
		Latency: time.Since(start),
		Message: fmt.Sprintf("%d %s records via %s", len(resp.Answer), rt, server),
	}
}

func resolverAddr(configured, fallback string) string {
	s := strings.TrimSpace(configured)
	if s == "" {
		s = fallback
	}
	if s == "" {
		s = fallbackResolver
	}
	if _, _, err := net.SplitHostPort(s); err != nil {
		s = net.JoinHostPort(strings.Trim(s, "[]"), "53")
	}
	return s
}
