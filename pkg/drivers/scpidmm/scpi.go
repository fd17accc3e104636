package scpidmm

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/acqkit/acqkit-go/pkg/errs"
)

// scpiConn is a raw SCPI session over TCP. Commands and responses are
// newline terminated.
type scpiConn struct {
	mu   sync.Mutex
	conn net.Conn
	rd   *bufio.Reader
}

const (
	dialTimeout  = 3 * time.Second
	queryTimeout = 2 * time.Second
)

func dialSCPI(ctx context.Context, addr string) (*scpiConn, error) {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errs.Wrap(errs.IO, "scpidmm.dial", err)
	}
	return &scpiConn{conn: conn, rd: bufio.NewReader(conn)}, nil
}

// Send writes one command without expecting a response.
func (c *scpiConn) Send(cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(queryTimeout)); err != nil {
		return errs.Wrap(errs.IO, "scpidmm.Send", err)
	}
	if _, err := c.conn.Write([]byte(cmd + "\n")); err != nil {
		return errs.Wrap(errs.IO, "scpidmm.Send", err)
	}
	return nil
}

// Query writes one command and reads the single-line response. The
// deadline is the earlier of the context deadline and the query
// timeout, so a stopped acquisition does not hang on a silent meter.
func (c *scpiConn) Query(ctx context.Context, cmd string) (string, error) {
	const op = "scpidmm.Query"
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(queryTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return "", errs.Wrap(errs.IO, op, err)
	}
	if _, err := c.conn.Write([]byte(cmd + "\n")); err != nil {
		return "", errs.Wrap(errs.IO, op, err)
	}
	line, err := c.rd.ReadString('\n')
	if err != nil {
		return "", errs.Wrap(errs.IO, op, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *scpiConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// parseResource splits a "tcp/host/port" connection string into a
// dialable address.
func parseResource(res string) (string, error) {
	parts := strings.Split(res, "/")
	if len(parts) != 3 || parts[0] != "tcp" || parts[1] == "" || parts[2] == "" {
		return "", errs.Argf("scpidmm.parseResource", "connection %q is not tcp/host/port", res)
	}
	return net.JoinHostPort(parts[1], parts[2]), nil
}
