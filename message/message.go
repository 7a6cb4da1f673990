// Package message defines the RPC request and response envelopes exchanged
// between client and server.
//
// Both types get serialized by the codec layer and wrapped in a length-prefixed
// frame for transmission over TCP. The JSON field names are the wire schema
// and must not change without a protocol revision.
package message

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the outcome of an RPC call as reported by the server.
type Status string

const (
	StatusOK    Status = "OK"
	StatusError Status = "ERROR"
)

// Request carries one RPC invocation.
//
// RequestID identifies a logical call: every retransmission of the same call
// carries the same id, which is what lets an at-most-once server recognize
// duplicates instead of re-executing. A fresh logical call always gets a
// fresh id.
type Request struct {
	RequestID string         `json:"request_id"`
	Method    string         `json:"method"`
	Params    map[string]any `json:"params"`
	Timestamp int64          `json:"timestamp"` // seconds since epoch, advisory only
}

// Response carries the result of one RPC invocation.
//
//   - Status == OK:    Result holds the return value, ErrorMessage is empty.
//   - Status == ERROR: ErrorMessage holds a human-readable reason.
type Response struct {
	RequestID    string `json:"request_id"`
	Status       Status `json:"status"`
	Result       any    `json:"result,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// NewRequest builds a request for a fresh logical call: a new random 128-bit
// request id and the current timestamp.
func NewRequest(method string, params map[string]any) *Request {
	if params == nil {
		params = map[string]any{}
	}
	return &Request{
		RequestID: uuid.NewString(),
		Method:    method,
		Params:    params,
		Timestamp: time.Now().Unix(),
	}
}

// OK builds a success response echoing the request id.
func OK(requestID string, result any) *Response {
	return &Response{RequestID: requestID, Status: StatusOK, Result: result}
}

// Error builds a failure response echoing the request id.
func Error(requestID string, msg string) *Response {
	return &Response{RequestID: requestID, Status: StatusError, ErrorMessage: msg}
}

// Validate checks the schema requirements a decoded request must satisfy.
func (r *Request) Validate() error {
	if r.RequestID == "" {
		return errors.New("missing request_id")
	}
	if r.Method == "" {
		return errors.New("missing method")
	}
	return nil
}

// Validate checks the schema requirements a decoded response must satisfy.
func (r *Response) Validate() error {
	if r.RequestID == "" {
		return errors.New("missing request_id")
	}
	if r.Status != StatusOK && r.Status != StatusError {
		return errors.New("invalid status: " + string(r.Status))
	}
	return nil
}
