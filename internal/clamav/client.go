// Package clamav is a client for the clamd scan daemon. It keeps a small pool
// of long-lived IDSESSION connections; each scan checks a session out and
// returns it on success. A circuit breaker makes "engine unavailable" an
// explicit, fast failure instead of a repeated dial timeout.
package clamav

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/redpencilio/virus-scanner-service/internal/resilience"
)

// ErrEngineUnavailable marks failures to reach the scan daemon at all, as
// opposed to the daemon answering that it could not scan the file.
var ErrEngineUnavailable = errors.New("scan engine unavailable")

// Status is the daemon's verdict for one file.
type Status int

const (
	StatusClean Status = iota
	StatusInfected
	// StatusUnknown: the daemon was reachable but could not determine an
	// infection status (unreadable, oversized, ...).
	StatusUnknown
)

// Result is a classified scan reply.
type Result struct {
	Status     Status
	Signatures []string
}

// Client scans files through a clamd socket.
type Client struct {
	network string
	addr    string
	timeout time.Duration
	pool    chan *session
	breaker *resilience.CircuitBreaker
}

// New builds a client for addr, either "unix:/path/to/clamd.ctl" or
// "host:port". timeout bounds dialing and each scan round trip.
func New(addr string, timeout time.Duration, poolSize int) *Client {
	network := "tcp"
	if rest, ok := strings.CutPrefix(addr, "unix:"); ok {
		network = "unix"
		addr = rest
	}
	if poolSize <= 0 {
		poolSize = 4
	}
	return &Client{
		network: network,
		addr:    addr,
		timeout: timeout,
		pool:    make(chan *session, poolSize),
		breaker: resilience.NewCircuitBreaker(5, 10*time.Second, 2),
	}
}

// Scan submits a path to the daemon and classifies the reply.
func (c *Client) Scan(ctx context.Context, path string) (Result, error) {
	if !c.breaker.Allow() {
		return Result{}, fmt.Errorf("%w: circuit open", ErrEngineUnavailable)
	}
	s, err := c.checkout(ctx)
	if err != nil {
		c.breaker.RecordResult(false)
		return Result{}, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	line, err := s.command(c.deadline(ctx), "SCAN "+path)
	if err != nil {
		s.close()
		c.breaker.RecordResult(false)
		return Result{}, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	c.checkin(s)
	res, err := parseVerdict(line)
	c.breaker.RecordResult(err == nil)
	return res, err
}

// Ping checks daemon liveness over a fresh connection.
func (c *Client) Ping(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(c.deadline(ctx))
	if _, err := fmt.Fprint(conn, "nPING\n"); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	if strings.TrimSpace(reply) != "PONG" {
		return fmt.Errorf("unexpected ping reply %q", strings.TrimSpace(reply))
	}
	return nil
}

// Close drains the session pool.
func (c *Client) Close() {
	for {
		select {
		case s := <-c.pool:
			s.end()
		default:
			return
		}
	}
}

func (c *Client) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(d) {
		return dl
	}
	return d
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.timeout}
	return dialer.DialContext(ctx, c.network, c.addr)
}

func (c *Client) checkout(ctx context.Context) (*session, error) {
	select {
	case s := <-c.pool:
		return s, nil
	default:
	}
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	s := &session{conn: conn, r: bufio.NewReader(conn)}
	_ = conn.SetDeadline(c.deadline(ctx))
	if _, err := fmt.Fprint(conn, "nIDSESSION\n"); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (c *Client) checkin(s *session) {
	select {
	case c.pool <- s:
	default:
		s.end()
	}
}

// session is one IDSESSION connection. Commands carry a sequence number the
// daemon echoes back as a "<n>: " reply prefix.
type session struct {
	conn net.Conn
	r    *bufio.Reader
	seq  int
}

func (s *session) command(deadline time.Time, cmd string) (string, error) {
	s.seq++
	_ = s.conn.SetDeadline(deadline)
	if _, err := fmt.Fprintf(s.conn, "n%s\n", cmd); err != nil {
		return "", err
	}
	return s.r.ReadString('\n')
}

func (s *session) end() {
	_ = s.conn.SetDeadline(time.Now().Add(time.Second))
	_, _ = fmt.Fprint(s.conn, "nEND\n")
	s.conn.Close()
}

func (s *session) close() {
	s.conn.Close()
}

// parseVerdict classifies a clamd reply line:
//
//	/path: OK
//	/path: Eicar-Signature FOUND
//	/path: lstat() failed ERROR
//
// In an IDSESSION the line carries a numeric "<n>: " prefix.
func parseVerdict(line string) (Result, error) {
	line = strings.TrimSpace(line)
	line = stripSeq(line)
	switch {
	case strings.HasSuffix(line, ": OK"):
		return Result{Status: StatusClean}, nil
	case strings.HasSuffix(line, " FOUND"):
		body := strings.TrimSuffix(line, " FOUND")
		idx := strings.LastIndex(body, ": ")
		if idx < 0 {
			return Result{}, fmt.Errorf("invalid scan reply %q", line)
		}
		return Result{Status: StatusInfected, Signatures: []string{body[idx+2:]}}, nil
	case strings.HasSuffix(line, " ERROR"):
		return Result{Status: StatusUnknown}, nil
	default:
		return Result{}, fmt.Errorf("invalid scan reply %q", line)
	}
}

func stripSeq(line string) string {
	idx := strings.Index(line, ": ")
	if idx <= 0 {
		return line
	}
	for _, r := range line[:idx] {
		if r < '0' || r > '9' {
			return line
		}
	}
	return line[idx+2:]
}
