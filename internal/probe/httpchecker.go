package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hamed0406/uptimemon/internal/domain"
)

// maxKeywordBody caps how much of a response body is scanned for a keyword.
const maxKeywordBody = 1 << 20

type HTTPChecker struct {
	UserAgent string

	verified *http.Transport
	insecure *http.Transport
}

func NewHTTPChecker() *HTTPChecker {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.MaxIdleConnsPerHost = 4
	base.IdleConnTimeout = 90 * time.Second

	insecure := base.Clone()
	insecure.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	return &HTTPChecker{
		UserAgent: "uptimemon/1.0",
		verified:  base,
		insecure:  insecure,
	}
}

func (h *HTTPChecker) client(m domain.Monitor) *http.Client {
	tr := h.verified
	if m.HTTP.IgnoreTLS {
		tr = h.insecure
	}
	maxRedirects := m.HTTP.RedirectLimit()
	return &http.Client{
		Timeout:   m.Timeout,
		Transport: tr,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("%w (max %d)", errTooManyRedirects, maxRedirects)
			}
			return nil
		},
	}
}

// Probe issues the configured request. Success requires an accepted status code and,
// when the monitor carries a keyword, the keyword somewhere in the body.
func (h *HTTPChecker) Probe(ctx context.Context, m domain.Monitor) Result {
	start := time.Now()

	var body io.Reader
	if m.HTTP.Body != "" {
		body = strings.NewReader(m.HTTP.Body)
	}
	method := m.HTTP.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, m.Target, body)
	if err != nil {
		return failure(start, "invalid request: "+err.Error())
	}
	for k, v := range m.HTTP.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", h.UserAgent)
	}

	resp, err := h.client(m).Do(req)
	if err != nil {
		return failure(start, describe(err))
	}
	defer resp.Body.Close()

	out := Result{StatusCode: resp.StatusCode}
	if resp.TLS != nil && len(resp.TLS.PeerCertificates) > 0 {
		out.CertExpiry = resp.TLS.PeerCertificates[0].NotAfter
	}

	if !accepted(resp.StatusCode, m.HTTP.AcceptedStatusCodes) {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		out.Latency = time.Since(start)
		out.Message = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		return out
	}

	if m.Keyword != "" {
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxKeywordBody))
		out.Latency = time.Since(start)
		if err != nil {
			out.Message = "body read failed: " + describe(err)
			return out
		}
		if !strings.Contains(string(b), m.Keyword) {
			out.Message = fmt.Sprintf("keyword %q not found", m.Keyword)
			return out
		}
		out.Success = true
		out.Message = resp.Status
		return out
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	out.Latency = time.Since(start)
	out.Success = true
	out.Message = resp.Status
	return out
}

func accepted(code int, codes []int) bool {
	if len(codes) == 0 {
		return code == http.StatusOK
	}
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
