package domain

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
)

const (
	MinInterval         = 5 * time.Second
	DefaultTimeout      = 10 * time.Second
	DefaultMaxRedirects = 10
	DefaultRecordType   = "A"
)

var ErrInvalidMonitor = errors.New("invalid monitor")

var dnsRecordTypes = map[string]bool{
	"A": true, "AAAA": true, "CNAME": true, "MX": true, "NS": true,
	"TXT": true, "SOA": true, "SRV": true, "PTR": true,
}

// WithDefaults returns a copy with unset optional fields filled in.
func (m Monitor) WithDefaults() Monitor {
	if m.Timeout <= 0 {
		m.Timeout = DefaultTimeout
		if m.Interval > 0 && m.Timeout > m.Interval {
			m.Timeout = m.Interval
		}
	}
	if m.Status == "" {
		m.Status = StatusPending
	}
	if m.Severity == "" {
		m.Severity = SeverityMajor
	}
	switch m.Type.Canonical() {
	case TypeHTTP, TypeKeyword:
		if m.HTTP.Method == "" {
			m.HTTP.Method = "GET"
		}
		m.HTTP.Method = strings.ToUpper(m.HTTP.Method)
		if len(m.HTTP.AcceptedStatusCodes) == 0 {
			m.HTTP.AcceptedStatusCodes = []int{200}
		}
		n := m.HTTP.RedirectLimit()
		m.HTTP.MaxRedirects = &n
	case TypeDNS:
		if m.DNS.RecordType == "" {
			m.DNS.RecordType = DefaultRecordType
		}
		m.DNS.RecordType = strings.ToUpper(m.DNS.RecordType)
	}
	return m
}

// Validate reports every configuration problem at once. The returned error wraps ErrInvalidMonitor.
func (m Monitor) Validate() error {
	var err error
	if m.ID == "" {
		err = multierr.Append(err, errors.New("id is required"))
	}
	if strings.TrimSpace(m.Name) == "" {
		err = multierr.Append(err, errors.New("name is required"))
	}
	if m.Interval < MinInterval {
		err = multierr.Append(err, fmt.Errorf("interval %s is below the %s floor", m.Interval, MinInterval))
	}
	if m.Timeout <= 0 {
		err = multierr.Append(err, errors.New("timeout must be positive"))
	}
	if m.Retries < 0 {
		err = multierr.Append(err, errors.New("retries must not be negative"))
	}
	if !m.Status.Valid() {
		err = multierr.Append(err, fmt.Errorf("unknown status %q", m.Status))
	}
	if m.FailCount < 0 || m.CheckCount < m.FailCount {
		err = multierr.Append(err, fmt.Errorf("counters out of range: checks=%d failures=%d", m.CheckCount, m.FailCount))
	}

	switch m.Type.Canonical() {
	case TypeHTTP:
		err = multierr.Append(err, validateHTTPTarget(m.Target))
		err = multierr.Append(err, validateRedirects(m.HTTP))
	case TypeKeyword:
		err = multierr.Append(err, validateHTTPTarget(m.Target))
		if m.Keyword == "" {
			err = multierr.Append(err, errors.New("keyword monitor needs a keyword"))
		}
		err = multierr.Append(err, validateRedirects(m.HTTP))
	case TypeTCP:
		err = multierr.Append(err, validateTCPTarget(m.Target, m.Port))
	case TypeDNS:
		if m.Target == "" || strings.Contains(m.Target, "://") || strings.ContainsAny(m.Target, " /") {
			err = multierr.Append(err, fmt.Errorf("malformed domain %q", m.Target))
		}
		if m.DNS.RecordType != "" && !dnsRecordTypes[strings.ToUpper(m.DNS.RecordType)] {
			err = multierr.Append(err, fmt.Errorf("unsupported dns record type %q", m.DNS.RecordType))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("unknown protocol type %q", m.Type))
	}

	if err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidMonitor, m.ID, err)
	}
	return nil
}

func validateHTTPTarget(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("malformed url %q", raw)
	}
	return nil
}

func validateRedirects(o HTTPOptions) error {
	if o.MaxRedirects != nil && *o.MaxRedirects < 0 {
		return fmt.Errorf("max_redirects %d must not be negative", *o.MaxRedirects)
	}
	return nil
}

func validateTCPTarget(target string, port int) error {
	if target == "" {
		return errors.New("tcp target is required")
	}
	if port != 0 {
		if port < 1 || port > 65535 {
			return fmt.Errorf("port %d out of range", port)
		}
		return nil
	}
	_, p, err := net.SplitHostPort(target)
	if err != nil {
		return fmt.Errorf("tcp target %q needs host:port or a port option", target)
	}
	if n, err := strconv.Atoi(p); err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("port %q out of range", p)
	}
	return nil
}
