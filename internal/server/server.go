// Package server is the sync server: it keeps one logbook per account and
// exchanges flights with clients over the comms protocol.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/yegors/flightlog/internal/comms"
	"github.com/yegors/flightlog/internal/flight"
	"github.com/yegors/flightlog/pkg/logger"
)

// Store is the account and flight storage the server needs
type Store interface {
	CreateUser(ctx context.Context, username string, keyHash []byte, now time.Time) error
	KeyHash(ctx context.Context, username string) ([]byte, error)
	HighestFlightID(ctx context.Context, username string) (int64, error)
	FlightsSince(ctx context.Context, username string, timestamp int64) ([]flight.Flight, error)
	SaveFlights(ctx context.Context, username string, flights []flight.Flight) error
}

// Config holds server settings
type Config struct {
	Address     string        `toml:"address"`
	TLSCertFile string        `toml:"tls_cert_file"`
	TLSKeyFile  string        `toml:"tls_key_file"`
	IdleTimeout time.Duration `toml:"idle_timeout"`
	// AllowRegistration enables CREATE_ACCOUNT
	AllowRegistration bool `toml:"allow_registration"`
	// BcryptCost defaults to bcrypt.DefaultCost
	BcryptCost int `toml:"bcrypt_cost"`
	// Clock replaces time.Now
	Clock func() time.Time `toml:"-"`
}

// Server accepts sync sessions
type Server struct {
	config Config
	store  Store
	logger *logger.Logger
	now    func() time.Time

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closing  bool
	wg       sync.WaitGroup
}

// New creates a server
func New(config Config, store Store, log *logger.Logger) *Server {
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 2 * time.Minute
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	now := config.Clock
	if now == nil {
		now = time.Now
	}
	return &Server{
		config: config,
		store:  store,
		logger: log.Named("sync-server"),
		now:    now,
		conns:  make(map[net.Conn]struct{}),
	}
}

// Listen opens the listening socket, with TLS when a certificate is configured
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	if s.config.TLSCertFile == "" {
		return ln, nil
	}

	cert, err := tls.LoadX509KeyPair(s.config.TLSCertFile, s.config.TLSKeyFile)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}), nil
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Serve(ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Serve accepts connections on ln until Shutdown. Each connection gets its own goroutine.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("Sync server listening", logger.String("address", ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosing() {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.logger.Warn("Temporary accept error", logger.Error(err))
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		if !s.track(conn) {
			conn.Close()
			return nil
		}
		go func() {
			defer s.untrack(conn)
			s.handle(conn)
		}()
	}
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
	s.wg.Done()
}

// Shutdown stops accepting, closes open sessions and waits for their
// goroutines, or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Sync server stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

// CreateAccount adds an account directly, for administration
func (s *Server) CreateAccount(ctx context.Context, username, password string) error {
	key := comms.LoginKey(username, password)
	return s.createUser(ctx, username, key)
}

func (s *Server) createUser(ctx context.Context, username string, key [comms.KeySize]byte) error {
	hash, err := bcrypt.GenerateFromPassword(key[:], s.config.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash key: %w", err)
	}
	return s.store.CreateUser(ctx, username, hash, s.now())
}

func (s *Server) checkLogin(ctx context.Context, username string, key [comms.KeySize]byte) (bool, error) {
	hash, err := s.store.KeyHash(ctx, username)
	if err != nil {
		return false, err
	}
	return bcrypt.CompareHashAndPassword(hash, key[:]) == nil, nil
}
