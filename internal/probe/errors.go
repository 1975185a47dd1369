package probe

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

var errTooManyRedirects = errors.New("too many redirects")

// describe folds transport errors into the uniform failure reasons used in history rows.
func describe(err error) string {
	if err == nil {
		return ""
	}
	var netErr net.Error
	switch {
	case errors.Is(err, errTooManyRedirects):
		return errTooManyRedirects.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "connection refused"
	case errors.Is(err, syscall.ECONNRESET):
		return "connection reset"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return "dns NXDOMAIN: " + dnsErr.Name
		}
		return "dns lookup failed: " + dnsErr.Err
	}
	return "error: " + strings.TrimSpace(err.Error())
}
