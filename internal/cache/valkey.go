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
	"sync"
	"time"
)

// ValkeyProvider implements Provider against a Valkey/Redis-compatible server
// using a single persistent connection. The command surface is small enough
// (GET, SET, DEL, PING) that a minimal RESP codec beats pulling in a full
// client library.
type ValkeyProvider struct {
	cfg ValkeyConfig

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
}

// ValkeyConfig holds connection parameters for the Valkey server.
type ValkeyConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TLS          bool
}

// NewValkeyProvider connects and pings the target to fail fast when
// credentials or connectivity are wrong.
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

	p := &ValkeyProvider{cfg: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if _, err := p.do(ctx, "PING"); err != nil {
		return nil, err
	}
	return p, nil
}

// Get fetches bytes by key, returning ErrCacheMiss when the key is absent.
func (p *ValkeyProvider) Get(ctx context.Context, key string) ([]byte, error) {
	reply, err := p.do(ctx, "GET", key)
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, ErrCacheMiss
	}
	return reply, nil
}

// Set stores bytes with the provided TTL.
func (p *ValkeyProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := []string{key, string(value)}
	if ttl > 0 {
		args = append(args, "PX", strconv.FormatInt(ttl.Milliseconds(), 10))
	}
	reply, err := p.do(ctx, "SET", args...)
	if err != nil {
		return err
	}
	if string(reply) != "OK" {
		return fmt.Errorf("unexpected SET response: %s", reply)
	}
	return nil
}

// SetNX stores the value only if the key does not exist.
func (p *ValkeyProvider) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	args := []string{key, string(value)}
	if ttl > 0 {
		args = append(args, "PX", strconv.FormatInt(ttl.Milliseconds(), 10))
	}
	args = append(args, "NX")
	reply, err := p.do(ctx, "SET", args...)
	if err != nil {
		return false, err
	}
	// Nil reply means the key already existed.
	return reply != nil, nil
}

// Del removes a key from the cache.
func (p *ValkeyProvider) Del(ctx context.Context, key string) error {
	_, err := p.do(ctx, "DEL", key)
	return err
}

// Close tears down the connection.
func (p *ValkeyProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}

// do runs one command over the shared connection, reconnecting once on a
// broken pipe. A nil reply with a nil error is a RESP nil (absent key).
func (p *ValkeyProvider) do(ctx context.Context, command string, args ...string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err := p.ensureConn(ctx); err != nil {
			return nil, err
		}
		reply, err := p.roundTrip(command, args...)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		// Server-side errors are not connection failures; do not retry.
		var respErr *respError
		if errors.As(err, &respErr) {
			return nil, err
		}
		p.dropConn()
	}
	return nil, lastErr
}

func (p *ValkeyProvider) ensureConn(ctx context.Context) error {
	if p.conn != nil {
		return nil
	}

	dialer := net.Dialer{Timeout: p.cfg.DialTimeout}
	var (
		conn net.Conn
		err  error
	)
	if p.cfg.TLS {
		host := p.cfg.Addr
		if h, _, splitErr := net.SplitHostPort(p.cfg.Addr); splitErr == nil {
			host = h
		}
		tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
		conn, err = tls.DialWithDialer(&dialer, "tcp", p.cfg.Addr, tlsCfg)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", p.cfg.Addr)
	}
	if err != nil {
		return err
	}

	p.conn = conn
	p.reader = bufio.NewReader(conn)
	p.writer = bufio.NewWriter(conn)

	if p.cfg.Password != "" {
		auth := []string{p.cfg.Password}
		if p.cfg.Username != "" {
			auth = []string{p.cfg.Username, p.cfg.Password}
		}
		if reply, err := p.roundTrip("AUTH", auth...); err != nil {
			p.dropConn()
			return fmt.Errorf("valkey auth: %w", err)
		} else if !strings.EqualFold(string(reply), "OK") {
			p.dropConn()
			return fmt.Errorf("valkey auth failed: %s", reply)
		}
	}
	if p.cfg.DB > 0 {
		if reply, err := p.roundTrip("SELECT", strconv.Itoa(p.cfg.DB)); err != nil {
			p.dropConn()
			return fmt.Errorf("valkey select: %w", err)
		} else if !strings.EqualFold(string(reply), "OK") {
			p.dropConn()
			return fmt.Errorf("valkey select failed: %s", reply)
		}
	}
	return nil
}

func (p *ValkeyProvider) dropConn() {
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *ValkeyProvider) roundTrip(command string, args ...string) ([]byte, error) {
	if err := p.conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout)); err != nil {
		return nil, err
	}
	fmt.Fprintf(p.writer, "*%d\r\n$%d\r\n%s\r\n", len(args)+1, len(command), command)
	for _, arg := range args {
		fmt.Fprintf(p.writer, "$%d\r\n%s\r\n", len(arg), arg)
	}
	if err := p.writer.Flush(); err != nil {
		return nil, err
	}

	if err := p.conn.SetReadDeadline(time.Now().Add(p.cfg.ReadTimeout)); err != nil {
		return nil, err
	}
	return p.readReply()
}

// respError marks an error reported by the server rather than the transport.
type respError struct{ msg string }

func (e *respError) Error() string { return e.msg }

func (p *ValkeyProvider) readReply() ([]byte, error) {
	prefix, err := p.reader.ReadByte()
	if err != nil {
		return nil, err
	}
	line, err := p.readLine()
	if err != nil {
		return nil, err
	}

	switch prefix {
	case '+', ':':
		return line, nil
	case '-':
		return nil, &respError{msg: string(line)}
	case '$':
		size, err := strconv.Atoi(string(line))
		if err != nil {
			return nil, fmt.Errorf("bad bulk length %q", line)
		}
		if size < 0 {
			return nil, nil
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(p.reader, buf); err != nil {
			return nil, err
		}
		return buf[:size], nil
	default:
		return nil, fmt.Errorf("unexpected RESP prefix %q", prefix)
	}
}

func (p *ValkeyProvider) readLine() ([]byte, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}
