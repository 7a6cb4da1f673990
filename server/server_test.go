package server

import (
	"bytes"
	"encoding/json"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/akariss21/lab-1-distributed-computing/codec"
	"github.com/akariss21/lab-1-distributed-computing/fault"
	"github.com/akariss21/lab-1-distributed-computing/message"
	"github.com/akariss21/lab-1-distributed-computing/procedure"
	"github.com/akariss21/lab-1-distributed-computing/protocol"
	"github.com/akariss21/lab-1-distributed-computing/transport"
)

// startServer serves on an ephemeral port and returns the bound address.
func startServer(t *testing.T, opts Options) (*Server, string) {
	t.Helper()
	svr := NewServer(opts)
	go svr.Serve("tcp", "127.0.0.1:0", "", nil)

	var addr string
	for i := 0; i < 100; i++ {
		if addr = svr.Addr(); addr != "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if addr == "" {
		t.Fatal("server did not start listening")
	}
	t.Cleanup(func() { svr.Shutdown(time.Second) })
	return svr, addr
}

// countingRegistry registers a "count" procedure whose result is the number
// of executions so far — deliberately not idempotent, to expose duplicate
// execution.
func countingRegistry() (*procedure.Registry, *int64) {
	var count int64
	r := procedure.Builtin()
	r.Register("count", func(params map[string]any) (any, error) {
		return atomic.AddInt64(&count, 1), nil
	})
	return r, &count
}

func TestDispatchAdd(t *testing.T) {
	_, addr := startServer(t, Options{})

	conn, err := transport.Dial(addr, codec.CodecTypeJSON, time.Second)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	req := message.NewRequest("add", map[string]any{"a": 5.0, "b": 7.0})
	if err := conn.WriteRequest(req); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	resp, err := conn.ReadResponse()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if resp.RequestID != req.RequestID {
		t.Fatalf("response id %s does not match request id %s", resp.RequestID, req.RequestID)
	}
	if resp.Status != message.StatusOK || resp.Result != 12.0 {
		t.Fatalf("add(5,7): expect OK/12, got %+v", resp)
	}
}

func TestUnknownMethodReturnsError(t *testing.T) {
	_, addr := startServer(t, Options{})

	conn, err := transport.Dial(addr, codec.CodecTypeJSON, time.Second)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	req := message.NewRequest("divide_by_zero_like", nil)
	conn.WriteRequest(req)

	resp, err := conn.ReadResponse()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if resp.Status != message.StatusError {
		t.Fatalf("expect ERROR for unknown method, got %+v", resp)
	}
	if !bytes.Contains([]byte(resp.ErrorMessage), []byte("divide_by_zero_like")) {
		t.Fatalf("error message does not name the method: %q", resp.ErrorMessage)
	}
}

func TestMalformedRequestWithSalvageableID(t *testing.T) {
	_, addr := startServer(t, Options{})

	raw, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer raw.Close()

	// Schema violation, but request_id survives: the server must answer
	// ERROR and keep the connection open.
	protocol.WriteFrame(raw, []byte(`{"request_id":"bad-1","method":42}`))

	body, err := protocol.ReadFrame(raw)
	if err != nil {
		t.Fatalf("expect an ERROR response, read failed: %v", err)
	}
	var resp message.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if resp.RequestID != "bad-1" || resp.Status != message.StatusError {
		t.Fatalf("expect ERROR echoing bad-1, got %+v", resp)
	}

	// Connection still usable for a valid request
	req := message.NewRequest("get_time", nil)
	payload, _ := json.Marshal(req)
	protocol.WriteFrame(raw, payload)
	if _, err := protocol.ReadFrame(raw); err != nil {
		t.Fatalf("connection unusable after salvaged decode error: %v", err)
	}
}

func TestUndecodableRequestDropsConnection(t *testing.T) {
	_, addr := startServer(t, Options{})

	raw, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer raw.Close()

	protocol.WriteFrame(raw, []byte(`this is not json at all`))

	raw.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := protocol.ReadFrame(raw); err == nil {
		t.Fatal("expect the server to close the connection, got a frame")
	}
}

func TestAtMostOnceExecutesOnce(t *testing.T) {
	procs, count := countingRegistry()
	_, addr := startServer(t, Options{Procedures: procs, AtMostOnce: true})

	conn, err := transport.Dial(addr, codec.CodecTypeJSON, time.Second)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	req := message.NewRequest("count", nil)

	// Same request id sent twice: the handler must run exactly once and
	// the replayed response must be byte-identical to the first.
	var bodies [][]byte
	for i := 0; i < 2; i++ {
		if err := conn.WriteRequest(req); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
		resp, err := conn.ReadResponse()
		if err != nil {
			t.Fatalf("read %d failed: %v", i, err)
		}
		if resp.Status != message.StatusOK || resp.Result != 1.0 {
			t.Fatalf("send %d: expect the first execution's result, got %+v", i, resp)
		}
		body, _ := json.Marshal(resp)
		bodies = append(bodies, body)
	}

	if got := atomic.LoadInt64(count); got != 1 {
		t.Fatalf("handler executed %d times, want 1", got)
	}
	if !bytes.Equal(bodies[0], bodies[1]) {
		t.Fatalf("replayed response differs:\n  first  %s\n  second %s", bodies[0], bodies[1])
	}
}

func TestAtLeastOnceReexecutes(t *testing.T) {
	procs, count := countingRegistry()
	_, addr := startServer(t, Options{Procedures: procs})

	conn, err := transport.Dial(addr, codec.CodecTypeJSON, time.Second)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	req := message.NewRequest("count", nil)
	for i := 0; i < 2; i++ {
		conn.WriteRequest(req)
		if _, err := conn.ReadResponse(); err != nil {
			t.Fatalf("read %d failed: %v", i, err)
		}
	}

	if got := atomic.LoadInt64(count); got != 2 {
		t.Fatalf("at-least-once must re-execute, handler ran %d times", got)
	}
}

func TestDropGateSuppressesResponse(t *testing.T) {
	// Drop exactly the first response; the retransmission goes through.
	_, addr := startServer(t, Options{Injector: fault.NewScript(0, true)})

	conn, err := transport.Dial(addr, codec.CodecTypeJSON, time.Second)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	req := message.NewRequest("add", map[string]any{"a": 1.0, "b": 2.0})
	conn.WriteRequest(req)

	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, err := conn.ReadResponse(); err == nil {
		t.Fatal("expect silence for the dropped response")
	}

	conn.SetReadDeadline(time.Time{})
	conn.WriteRequest(req)
	resp, err := conn.ReadResponse()
	if err != nil {
		t.Fatalf("retransmission read failed: %v", err)
	}
	if resp.Result != 3.0 {
		t.Fatalf("expect 3, got %+v", resp)
	}
}

func TestShutdownWaitsForInFlightRequest(t *testing.T) {
	// A request already being dispatched (here, parked in the artificial
	// delay) must finish and get its response before Shutdown returns.
	svr, addr := startServer(t, Options{Injector: fault.NewRandom(200*time.Millisecond, 0)})

	conn, err := transport.Dial(addr, codec.CodecTypeJSON, time.Second)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	req := message.NewRequest("add", map[string]any{"a": 5.0, "b": 7.0})
	if err := conn.WriteRequest(req); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond) // Let the server decode and admit it

	if err := svr.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("shutdown did not wait for the in-flight request: %v", err)
	}

	resp, err := conn.ReadResponse()
	if err != nil {
		t.Fatalf("in-flight request lost during shutdown: %v", err)
	}
	if resp.Status != message.StatusOK || resp.Result != 12.0 {
		t.Fatalf("expect OK/12, got %+v", resp)
	}
}

func TestRequestAfterShutdownRefused(t *testing.T) {
	svr, addr := startServer(t, Options{})

	conn, err := transport.Dial(addr, codec.CodecTypeJSON, time.Second)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	// Establish the connection's dispatch loop with one normal exchange
	req := message.NewRequest("get_time", nil)
	conn.WriteRequest(req)
	if _, err := conn.ReadResponse(); err != nil {
		t.Fatalf("read failed: %v", err)
	}

	if err := svr.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	// A request arriving on the surviving connection is refused: the server
	// closes the connection instead of dispatching.
	conn.WriteRequest(message.NewRequest("get_time", nil))
	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := conn.ReadResponse(); err == nil {
		t.Fatal("expect the server to refuse requests after shutdown")
	}
}

func TestGracefulShutdown(t *testing.T) {
	svr, addr := startServer(t, Options{})

	if err := svr.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	// New connections must be refused after shutdown
	if conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond); err == nil {
		conn.Close()
		t.Fatal("expect connection refused after shutdown")
	}
}
