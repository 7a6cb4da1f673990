// Package client implements the RPC client session: one logical call at a
// time, with per-attempt timeouts and bounded retransmission.
//
// A logical call keeps one request id across all its attempts. Silence
// (timeout, broken connection) triggers a retry; an application-level ERROR
// response does not — the server answered, the answer just happens to be a
// failure.
package client

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akariss21/lab-1-distributed-computing/codec"
	"github.com/akariss21/lab-1-distributed-computing/loadbalance"
	"github.com/akariss21/lab-1-distributed-computing/message"
	"github.com/akariss21/lab-1-distributed-computing/registry"
	"github.com/akariss21/lab-1-distributed-computing/transport"
)

// TimeoutExceededError reports a logical call whose every attempt ended in
// silence. It carries the request id so the failure can be correlated with
// server-side logs (and with a response that may later be found in the
// server's dedup cache).
type TimeoutExceededError struct {
	RequestID string
	Attempts  int
	LastErr   error
}

func (e *TimeoutExceededError) Error() string {
	return fmt.Sprintf("rpc failed after %d attempts (request_id=%s): %v",
		e.Attempts, e.RequestID, e.LastErr)
}

func (e *TimeoutExceededError) Unwrap() error { return e.LastErr }

// Options configures a Session.
type Options struct {
	// Addr is the server address, used when no Registry is configured.
	Addr      string
	CodecType codec.CodecType

	// Timeout bounds each attempt's wait for a matching response.
	Timeout time.Duration
	// MaxRetries is the number of retransmissions after the first attempt,
	// so MaxRetries=2 yields 3 attempts in total.
	MaxRetries int

	// ReconnectPerAttempt dials a fresh connection for every attempt and
	// closes it afterwards, instead of reusing pooled connections.
	ReconnectPerAttempt bool
	// PoolSize caps pooled connections per server address (default 1).
	PoolSize int

	Logger *zap.Logger

	// Registry and Balancer enable discovery: when set, each attempt picks
	// an instance instead of using Addr.
	Registry registry.Registry
	Balancer loadbalance.Balancer
}

const (
	DefaultTimeout    = 2 * time.Second
	DefaultMaxRetries = 2
)

// Session issues RPC calls to a server. Safe for concurrent use; each call
// borrows its own connection.
type Session struct {
	opts   Options
	logger *zap.Logger

	mu    sync.Mutex
	pools map[string]*transport.Pool // Per-address connection pools
}

func NewSession(opts Options) *Session {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Balancer == nil {
		opts.Balancer = &loadbalance.RoundRobinBalancer{}
	}
	return &Session{
		opts:   opts,
		logger: opts.Logger,
		pools:  make(map[string]*transport.Pool),
	}
}

// Call performs one logical call: a fresh request id, then up to
// MaxRetries+1 attempts. It returns the server's response — OK or ERROR —
// or a *TimeoutExceededError when every attempt went unanswered.
func (s *Session) Call(method string, params map[string]any) (*message.Response, error) {
	return s.Do(message.NewRequest(method, params))
}

// Do runs the retry loop for an already-built request. Exposed so callers
// can retransmit a request they constructed themselves; most code wants
// Call.
func (s *Session) Do(req *message.Request) (*message.Response, error) {
	attempts := s.opts.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := s.attempt(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		s.logger.Warn("attempt failed",
			zap.String("request_id", req.RequestID),
			zap.String("method", req.Method),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err))
	}

	return nil, &TimeoutExceededError{
		RequestID: req.RequestID,
		Attempts:  attempts,
		LastErr:   lastErr,
	}
}

// attempt sends the request once and waits for the matching response. Any
// returned error — timeout, connection failure, undecodable response — is a
// retry trigger for the caller.
func (s *Session) attempt(req *message.Request) (*message.Response, error) {
	addr, err := s.resolve(req.RequestID)
	if err != nil {
		return nil, err
	}

	conn, fresh, err := s.acquire(addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}

	resp, err := s.exchange(conn, req)
	if err != nil {
		// The connection may still carry a late response for this or an
		// earlier call; it must not be reused for a different one.
		s.discard(addr, conn, fresh)
		return nil, err
	}

	s.release(addr, conn, fresh)
	return resp, nil
}

// exchange writes the request and reads until the matching response arrives
// or the attempt's deadline passes. Responses bearing a different request id
// (late replies to earlier attempts or other calls on a reused connection)
// are discarded; the wait continues on the remaining budget because the
// deadline is absolute.
func (s *Session) exchange(conn *transport.Conn, req *message.Request) (*message.Response, error) {
	if err := conn.WriteRequest(req); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}

	deadline := time.Now().Add(s.opts.Timeout)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	for {
		resp, err := conn.ReadResponse()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, fmt.Errorf("timed out after %s waiting for response", s.opts.Timeout)
			}
			return nil, fmt.Errorf("receive: %w", err)
		}
		if resp.RequestID != req.RequestID {
			s.logger.Warn("discarding response with mismatched request_id",
				zap.String("want", req.RequestID),
				zap.String("got", resp.RequestID))
			continue
		}

		conn.SetReadDeadline(time.Time{})
		return resp, nil
	}
}

// resolve picks the server address for this attempt: the discovery registry
// when configured, the static address otherwise. The balancer key is the
// request id, so hash-affine balancers route retries of one logical call to
// the same instance.
func (s *Session) resolve(requestID string) (string, error) {
	if s.opts.Registry == nil {
		if s.opts.Addr == "" {
			return "", errors.New("no server address configured")
		}
		return s.opts.Addr, nil
	}

	instances, err := s.opts.Registry.Discover(registry.DefaultService)
	if err != nil {
		return "", fmt.Errorf("discover: %w", err)
	}
	inst, err := s.opts.Balancer.Pick(requestID, instances)
	if err != nil {
		return "", err
	}
	return inst.Addr, nil
}

// acquire hands out a connection to addr: a throwaway one in
// reconnect-per-attempt mode, a pooled one otherwise. The fresh flag tells
// release/discard which lifecycle applies.
func (s *Session) acquire(addr string) (conn *transport.Conn, fresh bool, err error) {
	if s.opts.ReconnectPerAttempt {
		conn, err = transport.Dial(addr, s.opts.CodecType, s.opts.Timeout)
		return conn, true, err
	}
	conn, err = s.pool(addr).Get()
	return conn, false, err
}

func (s *Session) release(addr string, conn *transport.Conn, fresh bool) {
	if fresh {
		conn.Close()
		return
	}
	s.pool(addr).Put(conn)
}

func (s *Session) discard(addr string, conn *transport.Conn, fresh bool) {
	if fresh {
		conn.Close()
		return
	}
	s.pool(addr).Discard(conn)
}

func (s *Session) pool(addr string) *transport.Pool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[addr]
	if !ok {
		p = transport.NewPool(s.opts.PoolSize, func() (*transport.Conn, error) {
			return transport.Dial(addr, s.opts.CodecType, s.opts.Timeout)
		})
		s.pools[addr] = p
	}
	return p
}

// Close releases all pooled connections.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pools {
		p.Close()
	}
	s.pools = make(map[string]*transport.Pool)
	return nil
}
