package comms

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// Conn exchanges messages over a network connection. It is not safe for
// concurrent use; the protocol is strictly request/reply.
type Conn struct {
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
}

// NewConn wraps a connection. timeout bounds every read and write that has no
// earlier context deadline.
func NewConn(conn net.Conn, timeout time.Duration) *Conn {
	return &Conn{
		conn:    conn,
		reader:  bufio.NewReaderSize(conn, 64*1024),
		timeout: timeout,
	}
}

func (c *Conn) deadline(ctx context.Context) time.Time {
	var deadline time.Time
	if c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	return deadline
}

// watch expires the connection deadline when ctx is cancelled
func (c *Conn) watch(ctx context.Context) (stop func()) {
	if ctx.Done() == nil {
		return func() {}
	}
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		select {
		case <-ctx.Done():
			_ = c.conn.SetDeadline(time.Unix(1, 0))
		case <-done:
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

// Send writes one message
func (c *Conn) Send(ctx context.Context, msg Message) error {
	if err := c.conn.SetWriteDeadline(c.deadline(ctx)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	stop := c.watch(ctx)
	defer stop()

	if err := WritePacket(c.conn, msg.Encode()); err != nil {
		return c.ctxErr(ctx, fmt.Errorf("send %s: %w", msg.Keyword, err))
	}
	return nil
}

// Receive reads one message
func (c *Conn) Receive(ctx context.Context) (Message, error) {
	if err := c.conn.SetReadDeadline(c.deadline(ctx)); err != nil {
		return Message{}, fmt.Errorf("failed to set read deadline: %w", err)
	}
	stop := c.watch(ctx)
	defer stop()

	payload, err := ReadPacket(c.reader)
	if err != nil {
		return Message{}, c.ctxErr(ctx, err)
	}
	return DecodeMessage(payload)
}

// Request sends a message and waits for the reply
func (c *Conn) Request(ctx context.Context, msg Message) (Message, error) {
	if err := c.Send(ctx, msg); err != nil {
		return Message{}, err
	}
	reply, err := c.Receive(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("reply to %s: %w", msg.Keyword, err)
	}
	return reply, nil
}

// ctxErr prefers the context's error over the timeout it caused
func (c *Conn) ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if d, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) && !time.Now().Before(d) {
		return context.DeadlineExceeded
	}
	return err
}

// RemoteAddr returns the peer address
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the connection
func (c *Conn) Close() error {
	return c.conn.Close()
}
