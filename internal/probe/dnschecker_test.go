package probe

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/hamed0406/uptimemon/internal/domain"
)

// startDNS serves example.test A records and NXDOMAIN for everything else.
func startDNS(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	mux := dns.NewServeMux()
	mux.HandleFunc(".", func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)
		q := req.Question[0]
		switch {
		case q.Name == "example.test." && q.Qtype == dns.TypeA:
			rr, _ := dns.NewRR("example.test. 60 IN A 192.0.2.10")
			m.Answer = append(m.Answer, rr)
		case q.Name == "example.test.":
			// exists, but no records of the requested type
		default:
			m.Rcode = dns.RcodeNameError
		}
		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: mux, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("dns server did not start")
	}
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

func dnsMonitor(target, rt, resolver string) domain.Monitor {
	return domain.Monitor{
		Type:    domain.TypeDNS,
		Target:  target,
		Timeout: time.Second,
		DNS:     domain.DNSOptions{RecordType: rt, Resolver: resolver},
	}
}

func TestDNSChecker_Resolves(t *testing.T) {
	addr := startDNS(t)
	out := NewDNSChecker().Probe(context.Background(), dnsMonitor("example.test", "A", addr))
	if !out.Success {
		t.Fatalf("want success, got %+v", out)
	}
	if !strings.HasPrefix(out.Message, "1 A records") {
		t.Fatalf("unexpected message %q", out.Message)
	}
}

func TestDNSChecker_NoRecordsOfType(t *testing.T) {
	addr := startDNS(t)
	out := NewDNSChecker().Probe(context.Background(), dnsMonitor("example.test", "MX", addr))
	if out.Success {
		t.Fatalf("want failure, got %+v", out)
	}
	if out.Message != "no MX records" {
		t.Fatalf("unexpected message %q", out.Message)
	}
}

func TestDNSChecker_NXDOMAIN(t *testing.T) {
	addr := startDNS(t)
	out := NewDNSChecker().Probe(context.Background(), dnsMonitor("missing.test", "A", addr))
	if out.Success || out.Message != "dns NXDOMAIN" {
		t.Fatalf("want NXDOMAIN failure, got %+v", out)
	}
}

func TestResolverAddr(t *testing.T) {
	cases := []struct{ in, fallback, want string }{
		{"", "10.0.0.1:53", "10.0.0.1:53"},
		{"1.1.1.1", "", "1.1.1.1:53"},
		{"1.1.1.1:5353", "", "1.1.1.1:5353"},
		{"", "", fallbackResolver},
	}
	for _, c := range cases {
		if got := resolverAddr(c.in, c.fallback); got != c.want {
			t.Fatalf("resolverAddr(%q,%q)=%q want %q", c.in, c.fallback, got, c.want)
		}
	}
}
