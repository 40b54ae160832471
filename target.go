package tcpclient

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidTarget is returned when a target address cannot be parsed.
var ErrInvalidTarget = errors.New("invalid target")

// Target is the remote endpoint of a client.
type Target struct {
	Host   string
	Port   int
	Secure bool
}

var defaultPorts = map[string]int{
	"http":  80,
	"https": 443,
}

var secureSchemes = map[string]bool{
	"tls":   true,
	"ssl":   true,
	"https": true,
}

// ParseTarget parses "host:port" or a URL with scheme tcp, tls, ssl, http or
// https. The tls, ssl and https schemes mark the target as secure; http and
// https fall back to their default ports.
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Target{}, errors.Wrap(ErrInvalidTarget, "empty address")
	}

	if !strings.Contains(s, "://") {
		return splitHostPort(s)
	}

	u, err := url.Parse(s)
	if err != nil {
		return Target{}, errors.Wrapf(ErrInvalidTarget, "%s: %v", s, err)
	}

	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "tcp", "tls", "ssl", "http", "https":
	default:
		return Target{}, errors.Wrapf(ErrInvalidTarget, "unsupported scheme %q", u.Scheme)
	}

	t := Target{Host: u.Hostname(), Secure: secureSchemes[scheme]}
	if t.Host == "" {
		return Target{}, errors.Wrapf(ErrInvalidTarget, "%s: missing host", s)
	}

	port := u.Port()
	if port == "" {
		t.Port = defaultPorts[scheme]
		if t.Port == 0 {
			return Target{}, errors.Wrapf(ErrInvalidTarget, "%s: missing port", s)
		}
		return t, nil
	}

	t.Port, err = parsePort(port)
	if err != nil {
		return Target{}, errors.Wrapf(ErrInvalidTarget, "%s: %v", s, err)
	}
	return t, nil
}

func splitHostPort(s string) (Target, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return Target{}, errors.Wrapf(ErrInvalidTarget, "%s: %v", s, err)
	}

	p, err := parsePort(port)
	if err != nil {
		return Target{}, errors.Wrapf(ErrInvalidTarget, "%s: %v", s, err)
	}
	return Target{Host: host, Port: p}, nil
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if p <= 0 || p > 65535 {
		return 0, errors.Errorf("port %d out of range", p)
	}
	return p, nil
}

// Address returns the target as "host:port".
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func (t Target) String() string {
	if t.Secure {
		return "tls://" + t.Address()
	}
	return "tcp://" + t.Address()
}
