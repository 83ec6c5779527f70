package comms

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/proxy"

	"github.com/yegors/flightlog/pkg/logger"
)

// ClientConfig describes how to reach the sync server
type ClientConfig struct {
	Address string
	// TLS wraps the connection; ServerName defaults to the address host
	TLS                bool
	InsecureSkipVerify bool
	// SOCKS5Proxy is an optional host:port to dial through
	SOCKS5Proxy string

	DialTimeout    time.Duration
	RequestTimeout time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	return c
}

// Client is a connection to the sync server
type Client struct {
	*Conn
	logger *logger.Logger
}

// Dial connects to the server, retrying with exponential backoff
func Dial(ctx context.Context, cfg ClientConfig, log *logger.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	log = log.Named("comms-client")

	dialer, err := newDialer(cfg)
	if err != nil {
		return nil, err
	}

	retryDelay := cfg.RetryDelay
	var conn net.Conn
	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		conn, err = dial(ctx, dialer, cfg)
		if err == nil {
			break
		}

		if attempt == cfg.MaxRetries-1 {
			return nil, fmt.Errorf("failed to connect to %s after %d attempts: %w", cfg.Address, cfg.MaxRetries, err)
		}

		log.Warn("Retrying connection to sync server",
			logger.String("address", cfg.Address),
			logger.Int("attempt", attempt+1),
			logger.Int("max_attempts", cfg.MaxRetries),
			logger.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
			retryDelay *= 2
		}
	}

	log.Debug("Connected to sync server",
		logger.String("address", cfg.Address),
		logger.Bool("tls", cfg.TLS))

	return &Client{
		Conn:   NewConn(conn, cfg.RequestTimeout),
		logger: log,
	}, nil
}

func newDialer(cfg ClientConfig) (proxy.ContextDialer, error) {
	direct := &net.Dialer{Timeout: cfg.DialTimeout, KeepAlive: 30 * time.Second}
	if cfg.SOCKS5Proxy == "" {
		return direct, nil
	}

	socks, err := proxy.SOCKS5("tcp", cfg.SOCKS5Proxy, nil, direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	contextDialer, ok := socks.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("SOCKS5 dialer for %s does not support contexts", cfg.SOCKS5Proxy)
	}
	return contextDialer, nil
}

func dial(ctx context.Context, dialer proxy.ContextDialer, cfg ClientConfig) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	conn, err := dialer.DialContext(dialCtx, "tcp", cfg.Address)
	if err != nil {
		return nil, err
	}
	if !cfg.TLS {
		return conn, nil
	}

	host, _, err := net.SplitHostPort(cfg.Address)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("invalid server address %q: %w", cfg.Address, err)
	}
	tlsConn := tls.Client(conn, &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	})
	if err := tlsConn.HandshakeContext(dialCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("TLS handshake with %s failed: %w", cfg.Address, err)
	}
	return tlsConn, nil
}

// Call sends a request and checks the reply keyword
func (c *Client) Call(ctx context.Context, keyword string, data []byte, want string) (Message, error) {
	reply, err := c.Request(ctx, NewMessage(keyword, data))
	if err != nil {
		return Message{}, err
	}
	c.logger.Debug("Exchanged message",
		logger.String("request", keyword),
		logger.String("reply", reply.Keyword),
		logger.Int("reply_bytes", len(reply.Data)))
	if err := Expect(keyword, reply, want); err != nil {
		return reply, err
	}
	return reply, nil
}

// Close ends the session politely and closes the connection
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Send(ctx, NewMessage(KeywordEndOfSession, nil)); err != nil {
		c.logger.Debug("Failed to send end of session", logger.Error(err))
	}
	return c.Conn.Close()
}
