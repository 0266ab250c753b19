package cache

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// ValkeyConfig holds connection parameters for a Valkey or Redis compatible
// server.
type ValkeyConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
	TLS          bool
}

// ValkeyProvider implements Provider against a Valkey server. Connections are
// dialed per operation; the provider holds no state beyond its configuration.
type ValkeyProvider struct {
	cfg ValkeyConfig
}

// NewValkeyProvider validates the configuration and pings the target so bad
// credentials or connectivity fail at startup rather than on first use.
func NewValkeyProvider(cfg ValkeyConfig) (*ValkeyProvider, error) {
	if cfg.Addr == "" {
		return nil, errors.New("valkey addr is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 500 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}

	provider := &ValkeyProvider{cfg: cfg}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := provider.ping(ctx); err != nil {
		return nil, err
	}
	return provider, nil
}

// Get fetches bytes by key, returning ErrCacheMiss when the key is absent.
func (p *ValkeyProvider) Get(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := p.do(ctx, func(c *valkeyConn) error {
		if err := c.writeCommand("GET", []byte(key)); err != nil {
			return err
		}
		rep, err := c.readReply()
		if err != nil {
			return err
		}
		switch rep.kind {
		case kindNil:
			return ErrCacheMiss
		case kindBulk:
			payload = rep.data
			return nil
		default:
			return fmt.Errorf("unexpected valkey reply %q for GET", rep.kind)
		}
	})
	return payload, err
}

// Set stores bytes under the key. A positive TTL expires the entry.
func (p *ValkeyProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return p.do(ctx, func(c *valkeyConn) error {
		args := [][]byte{[]byte(key), value}
		if ttl > 0 {
			ms := strconv.FormatInt(ttl.Milliseconds(), 10)
			args = append(args, []byte("PX"), []byte(ms))
		}
		if err := c.writeCommand("SET", args...); err != nil {
			return err
		}
		rep, err := c.readReply()
		if err != nil {
			return err
		}
		if rep.kind != kindStatus || string(rep.data) != "OK" {
			return fmt.Errorf("unexpected SET response: %s", rep.data)
		}
		return nil
	})
}

// Del removes a key.
func (p *ValkeyProvider) Del(ctx context.Context, key string) error {
	return p.do(ctx, func(c *valkeyConn) error {
		if err := c.writeCommand("DEL", []byte(key)); err != nil {
			return err
		}
		_, err := c.readReply()
		return err
	})
}

// Close is a no-op; the provider dials per operation.
func (p *ValkeyProvider) Close() error { return nil }

func (p *ValkeyProvider) ping(ctx context.Context) error {
	return p.do(ctx, func(c *valkeyConn) error {
		if err := c.writeCommand("PING"); err != nil {
			return err
		}
		rep, err := c.readReply()
		if err != nil {
			return err
		}
		if rep.kind != kindStatus || string(rep.data) != "PONG" {
			return fmt.Errorf("unexpected PING response: %s", rep.data)
		}
		return nil
	})
}

// do runs fn against a fresh connection, retrying timeouts with backoff up
// to the configured attempt budget.
func (p *ValkeyProvider) do(ctx context.Context, fn func(*valkeyConn) error) error {
	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c, err := p.dial(ctx)
		if err == nil {
			err = p.bootstrap(c)
			if err == nil {
				err = fn(c)
			}
			c.close()
		}
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) || attempt == p.cfg.MaxRetries-1 {
			return err
		}
		time.Sleep(time.Duration(1<<attempt) * 25 * time.Millisecond)
	}
	return lastErr
}

func (p *ValkeyProvider) dial(ctx context.Context) (*valkeyConn, error) {
	dialer := net.Dialer{Timeout: dialDeadline(ctx, p.cfg.DialTimeout)}
	var (
		conn net.Conn
		err  error
	)
	if p.cfg.TLS {
		host := p.cfg.Addr
		if h, _, splitErr := net.SplitHostPort(p.cfg.Addr); splitErr == nil {
			host = h
		}
		conn, err = tls.DialWithDialer(&dialer, "tcp", p.cfg.Addr, &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host})
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", p.cfg.Addr)
	}
	if err != nil {
		return nil, err
	}
	return &valkeyConn{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		cfg:    p.cfg,
	}, nil
}

// bootstrap authenticates and selects the configured database on a fresh
// connection.
func (p *ValkeyProvider) bootstrap(c *valkeyConn) error {
	if p.cfg.Password != "" {
		args := [][]byte{[]byte(p.cfg.Password)}
		if p.cfg.Username != "" {
			args = [][]byte{[]byte(p.cfg.Username), []byte(p.cfg.Password)}
		}
		if err := c.writeCommand("AUTH", args...); err != nil {
			return err
		}
		rep, err := c.readReply()
		if err != nil {
			return err
		}
		if rep.kind != kindStatus || !strings.EqualFold(string(rep.data), "OK") {
			return fmt.Errorf("auth failed: %s", rep.data)
		}
	}
	if p.cfg.DB > 0 {
		if err := c.writeCommand("SELECT", []byte(strconv.Itoa(p.cfg.DB))); err != nil {
			return err
		}
		rep, err := c.readReply()
		if err != nil {
			return err
		}
		if rep.kind != kindStatus || !strings.EqualFold(string(rep.data), "OK") {
			return fmt.Errorf("select failed: %s", rep.data)
		}
	}
	return nil
}

// RESP reply kinds, keyed by wire prefix.
const (
	kindStatus  = '+'
	kindInteger = ':'
	kindBulk    = '$'
	kindNil     = '_'
)

type valkeyReply struct {
	kind byte
	data []byte
}

// valkeyConn wraps one network connection with RESP read and write helpers.
type valkeyConn struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	cfg    ValkeyConfig
}

func (c *valkeyConn) close() {
	_ = c.conn.Close()
}

func (c *valkeyConn) writeCommand(command string, args ...[]byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	parts := append([][]byte{[]byte(command)}, args...)
	if _, err := fmt.Fprintf(c.writer, "*%d\r\n", len(parts)); err != nil {
		return err
	}
	for _, part := range parts {
		if _, err := fmt.Fprintf(c.writer, "$%d\r\n", len(part)); err != nil {
			return err
		}
		if _, err := c.writer.Write(part); err != nil {
			return err
		}
		if _, err := c.writer.WriteString("\r\n"); err != nil {
			return err
		}
	}
	return c.writer.Flush()
}

func (c *valkeyConn) readReply() (valkeyReply, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
		return valkeyReply{}, err
	}
	prefix, err := c.reader.ReadByte()
	if err != nil {
		return valkeyReply{}, err
	}
	switch prefix {
	case kindStatus, kindInteger:
		line, err := c.readLine()
		return valkeyReply{kind: prefix, data: line}, err
	case '-':
		line, err := c.readLine()
		if err != nil {
			return valkeyReply{}, err
		}
		return valkeyReply{}, errors.New(string(line))
	case kindBulk:
		line, err := c.readLine()
		if err != nil {
			return valkeyReply{}, err
		}
		size, err := strconv.Atoi(string(line))
		if err != nil {
			return valkeyReply{}, err
		}
		if size < 0 {
			return valkeyReply{kind: kindNil}, nil
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(c.reader, buf); err != nil {
			return valkeyReply{}, err
		}
		if buf[size] != '\r' || buf[size+1] != '\n' {
			return valkeyReply{}, errors.New("invalid bulk termination")
		}
		return valkeyReply{kind: kindBulk, data: buf[:size]}, nil
	default:
		return valkeyReply{}, fmt.Errorf("unexpected RESP prefix %q", prefix)
	}
}

func (c *valkeyConn) readLine() ([]byte, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

func dialDeadline(ctx context.Context, d time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return time.Millisecond
		}
		if d <= 0 || remaining < d {
			return remaining
		}
	}
	if d <= 0 {
		return time.Millisecond
	}
	return d
}

func retryable(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
