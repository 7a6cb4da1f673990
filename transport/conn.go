// Package transport wraps a byte-stream connection with message framing and
// connection pooling.
//
// Conn is the boundary between the RPC core and the network: the server and
// client exchange decoded messages through it and never touch raw frames.
// The core is agnostic to what carries the bytes — anything satisfying
// net.Conn works, which is also how tests substitute in-memory pipes.
package transport

import (
	"net"
	"time"

	"github.com/akariss21/lab-1-distributed-computing/codec"
	"github.com/akariss21/lab-1-distributed-computing/message"
	"github.com/akariss21/lab-1-distributed-computing/protocol"
)

// Conn is a framed, codec-aware connection. It is not safe for concurrent
// reads or concurrent writes; the dispatcher and the client session both
// drive a connection from a single goroutine at a time.
type Conn struct {
	conn  net.Conn
	codec codec.Codec
}

func NewConn(conn net.Conn, codecType codec.CodecType) *Conn {
	return &Conn{conn: conn, codec: codec.GetCodec(codecType)}
}

// Dial connects to addr over TCP, bounded by timeout, and wraps the
// connection. A zero timeout leaves the connect unbounded.
func Dial(addr string, codecType codec.CodecType, timeout time.Duration) (*Conn, error) {
	nc, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	return NewConn(nc, codecType), nil
}

// ReadRequest reads one frame and decodes it as a request.
// Framing failures (closed connection, oversized prefix) come back as the
// underlying error; decodable-but-invalid bodies come back as
// *codec.DecodeError so the caller can salvage the request id.
func (c *Conn) ReadRequest() (*message.Request, error) {
	body, err := protocol.ReadFrame(c.conn)
	if err != nil {
		return nil, err
	}
	return codec.DecodeRequest(c.codec, body)
}

// ReadResponse reads one frame and decodes it as a response.
func (c *Conn) ReadResponse() (*message.Response, error) {
	body, err := protocol.ReadFrame(c.conn)
	if err != nil {
		return nil, err
	}
	return codec.DecodeResponse(c.codec, body)
}

func (c *Conn) WriteRequest(req *message.Request) error {
	return c.writeMessage(req)
}

func (c *Conn) WriteResponse(resp *message.Response) error {
	return c.writeMessage(resp)
}

func (c *Conn) writeMessage(v any) error {
	body, err := c.codec.Encode(v)
	if err != nil {
		return err
	}
	return protocol.WriteFrame(c.conn, body)
}

// SetReadDeadline bounds subsequent reads. The zero time clears the deadline.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
