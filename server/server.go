// Package server implements the RPC dispatcher: it accepts connections,
// decodes requests, runs them through the middleware chain and the procedure
// registry, and writes responses back — subject to the configured delivery
// mode and fault injection.
//
// Request processing pipeline, per connection:
//
//	Accept conn → handleConn (sequential read loop, preserves FIFO per conn)
//	  → receive/decode → artificial delay → dedup check (at-most-once)
//	  → middleware chain → procedure.Invoke → cache (at-most-once)
//	  → drop gate → write response
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/akariss21/lab-1-distributed-computing/codec"
	"github.com/akariss21/lab-1-distributed-computing/dedup"
	"github.com/akariss21/lab-1-distributed-computing/fault"
	"github.com/akariss21/lab-1-distributed-computing/message"
	"github.com/akariss21/lab-1-distributed-computing/middleware"
	"github.com/akariss21/lab-1-distributed-computing/procedure"
	"github.com/akariss21/lab-1-distributed-computing/registry"
	"github.com/akariss21/lab-1-distributed-computing/transport"
)

// Options configures a Server. Zero values select sane defaults: built-in
// procedures, no fault injection, at-least-once delivery, JSON codec, and a
// no-op logger.
type Options struct {
	Procedures *procedure.Registry
	Injector   fault.Injector
	CodecType  codec.CodecType
	Logger     *zap.Logger

	// AtMostOnce switches the dispatcher from at-least-once (re-execute
	// every arrival) to at-most-once (dedup on request id).
	AtMostOnce bool
	// Dedup overrides the response cache used in at-most-once mode.
	Dedup dedup.Cache
}

// Server is the RPC server. Create with NewServer, optionally attach
// middlewares with Use, then call Serve.
type Server struct {
	procedures *procedure.Registry
	injector   fault.Injector
	codecType  codec.CodecType
	logger     *zap.Logger

	atMostOnce bool
	dedup      dedup.Cache
	flight     singleflight.Group // Collapses concurrent duplicates of one request id

	mu          sync.Mutex
	listener    net.Listener
	wg          sync.WaitGroup // Tracks in-flight requests for graceful shutdown
	shutdown    atomic.Bool    // Set during shutdown to suppress Accept errors
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc

	reg           registry.Registry
	advertiseAddr string
}

func NewServer(opts Options) *Server {
	if opts.Procedures == nil {
		opts.Procedures = procedure.Builtin()
	}
	if opts.Injector == nil {
		opts.Injector = fault.None{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Server{
		procedures: opts.Procedures,
		injector:   opts.Injector,
		codecType:  opts.CodecType,
		logger:     opts.Logger,
		atMostOnce: opts.AtMostOnce,
		dedup:      opts.Dedup,
	}
	if s.atMostOnce && s.dedup == nil {
		s.dedup = dedup.NewLRU(dedup.DefaultSize, dedup.DefaultTTL)
	}
	return s
}

// Use registers a middleware. Middlewares are applied in the order added and
// wrap only the execute step, not dedup or fault injection.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Serve listens on address and runs the accept loop until Shutdown.
//
// advertiseAddr is the address registered in the service registry (a
// routable host:port, unlike a ":0" listen address). Pass a nil reg to skip
// registration.
func (s *Server) Serve(network, address string, advertiseAddr string, reg registry.Registry) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = listener
	// Build the middleware chain once at startup, not per request
	s.handler = middleware.Chain(s.middlewares...)(s.execute)
	s.mu.Unlock()

	s.advertiseAddr = advertiseAddr
	if reg != nil {
		s.reg = reg
		if err := reg.Register(registry.DefaultService, registry.ServiceInstance{Addr: advertiseAddr}, 10); err != nil {
			listener.Close()
			return fmt.Errorf("register %s: %w", advertiseAddr, err)
		}
	}

	s.logger.Info("server listening",
		zap.String("addr", listener.Addr().String()),
		zap.Bool("at_most_once", s.atMostOnce),
		zap.Strings("methods", s.procedures.Methods()))

	for {
		conn, err := listener.Accept()
		if err != nil {
			// Shutdown closes the listener, which surfaces here as an
			// Accept error; the flag tells intentional close apart from a
			// real failure.
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// Addr returns the bound listen address, or "" before Serve has bound one.
// Lets tests serve on ":0" and discover the port.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// handleConn runs the per-connection dispatch loop. Requests on one
// connection are handled sequentially, so responses keep the request order
// (FIFO within a connection). Concurrency comes from concurrent connections.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	tc := transport.NewConn(conn, s.codecType)
	s.logger.Info("client connected", zap.String("remote", conn.RemoteAddr().String()))

	for {
		req, err := tc.ReadRequest()
		if err != nil {
			var decodeErr *codec.DecodeError
			if errors.As(err, &decodeErr) {
				if decodeErr.RequestID != "" {
					// Malformed but the id survived: answer with ERROR and
					// keep the connection.
					s.respond(tc, message.Error(decodeErr.RequestID, decodeErr.Error()))
					continue
				}
				s.logger.Warn("dropping connection on undecodable request",
					zap.String("remote", conn.RemoteAddr().String()),
					zap.String("reason", decodeErr.Reason))
				return
			}
			// EOF, reset, or framing corruption — connection is done.
			s.logger.Info("client disconnected",
				zap.String("remote", conn.RemoteAddr().String()),
				zap.Error(err))
			return
		}

		if !s.admit() {
			s.logger.Info("refusing request during shutdown",
				zap.String("request_id", req.RequestID))
			return
		}
		s.handleRequest(tc, req)
	}
}

// admit registers a decoded request with the shutdown wait group. Taking the
// lock Shutdown sets the flag under means no request can join the wait group
// after Shutdown has started waiting on it.
func (s *Server) admit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown.Load() {
		return false
	}
	s.wg.Add(1)
	return true
}

// handleRequest runs the dispatch state machine for one admitted request:
// delay → dedup check → execute → cache → gate → send.
func (s *Server) handleRequest(tc *transport.Conn, req *message.Request) {
	defer s.wg.Done() // Paired with the Add in admit

	if delay := s.injector.Delay(); delay > 0 {
		s.logger.Warn("artificial delay",
			zap.String("request_id", req.RequestID),
			zap.Duration("delay", delay))
		time.Sleep(delay)
	}

	var resp *message.Response
	if s.atMostOnce {
		if cached, ok := s.dedup.Get(req.RequestID); ok {
			s.logger.Info("dedup cache hit", zap.String("request_id", req.RequestID))
			resp = cached
		} else {
			// Concurrent duplicates of the same request id (a retransmission
			// racing the original, possibly on another connection) share one
			// execution instead of re-running the handler.
			v, _, _ := s.flight.Do(req.RequestID, func() (any, error) {
				r := s.safeExecute(req)
				s.dedup.Put(req.RequestID, r)
				return r, nil
			})
			resp = v.(*message.Response)
		}
	} else {
		resp = s.safeExecute(req)
	}

	s.respond(tc, resp)
}

// safeExecute runs the middleware chain and converts any panic escaping it
// into a generic ERROR response. Nothing a request does may kill the
// dispatch loop.
func (s *Server) safeExecute(req *message.Request) (resp *message.Response) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("panic during request execution",
				zap.String("request_id", req.RequestID),
				zap.Any("panic", rec))
			resp = message.Error(req.RequestID, "internal server error")
		}
	}()
	return s.handler(context.Background(), req)
}

// execute is the innermost handler wrapped by the middleware chain: it
// invokes the procedure and maps registry errors to ERROR responses.
func (s *Server) execute(ctx context.Context, req *message.Request) *message.Response {
	result, err := s.procedures.Invoke(req.Method, req.Params)
	if err != nil {
		return message.Error(req.RequestID, err.Error())
	}
	return message.OK(req.RequestID, result)
}

// respond passes the response through the drop gate and writes it.
// A dropped response is computed and discarded without writing a byte —
// that silence is what forces the client to time out and retransmit.
func (s *Server) respond(tc *transport.Conn, resp *message.Response) {
	if s.injector.DropResponse() {
		s.logger.Warn("dropping response", zap.String("request_id", resp.RequestID))
		return
	}
	if err := tc.WriteResponse(resp); err != nil {
		s.logger.Warn("failed to write response",
			zap.String("request_id", resp.RequestID),
			zap.Error(err))
	}
}

// Shutdown performs graceful shutdown:
//  1. Deregister from the service registry (clients stop routing here)
//  2. Set the shutdown flag, then close the listener
//  3. Wait for in-flight requests, bounded by timeout
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.reg != nil {
		if err := s.reg.Deregister(registry.DefaultService, s.advertiseAddr); err != nil {
			s.logger.Warn("deregister failed", zap.Error(err))
		}
	}

	// Flag before close, so Serve reads the Accept error as intentional.
	// Setting it under the lock admit holds keeps the wait group stable:
	// requests admitted before this point are waited for, later arrivals
	// are refused.
	s.mu.Lock()
	s.shutdown.Store(true)
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for ongoing requests to finish")
	}
}
