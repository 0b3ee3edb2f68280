package rrdcached

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultPort is the daemon's TCP port.
	DefaultPort = "42217"

	defaultConnectTimeout = 10 * time.Second
)

// DialConfig holds connection settings.
type DialConfig struct {
	// Address selects the transport:
	//   - "unix:///var/run/rrdcached.sock" for a Unix socket
	//   - "tcp://localhost:42217" for TCP (port defaults to 42217)
	// A bare "/path" is taken as a Unix socket and a bare "host[:port]"
	// as TCP.
	Address string

	// ConnectTimeout bounds the dial.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// IOTimeout bounds every call on the returned client. Zero leaves calls
	// bounded only by their context.
	IOTimeout time.Duration

	// Logger is attached to the connection when set.
	Logger Logger
}

// Dial connects to the daemon and returns a ready client. The client never
// reconnects; after a fatal error dial again.
func Dial(ctx context.Context, cfg DialConfig) (*Client, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}

	network, address, err := ParseAddress(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	nc, err := dialer.DialContext(connectCtx, network, address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s %s: %w", ErrConnectionClosed, network, address, err)
	}

	conn := NewConn(nc)
	if cfg.Logger != nil {
		conn.SetLogger(cfg.Logger)
		cfg.Logger.Debug("connected to rrdcached", "network", network, "address", address)
	}
	return NewClient(conn, cfg.IOTimeout), nil
}

// ParseAddress turns a daemon address into a network and address pair for
// net.Dial.
func ParseAddress(addr string) (network, address string, err error) {
	switch {
	case addr == "":
		return "", "", errors.New("empty address")
	case strings.HasPrefix(addr, "/"):
		return "unix", addr, nil
	case !strings.Contains(addr, "://"):
		return "tcp", withDefaultPort(addr), nil
	}

	u, err := url.Parse(addr)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "unix":
		if u.Path == "" {
			return "", "", fmt.Errorf("unix address %q has no socket path", addr)
		}
		return "unix", u.Path, nil
	case "tcp":
		host := u.Host
		if host == "" {
			host = "localhost"
		}
		return "tcp", withDefaultPort(host), nil
	default:
		return "", "", fmt.Errorf("unsupported scheme %q (use unix or tcp)", u.Scheme)
	}
}

func withDefaultPort(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(strings.Trim(host, "[]"), DefaultPort)
}
