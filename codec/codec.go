// Package codec serializes RPC messages to and from the frame body bytes.
//
// The codec is symmetric: client and server must be configured with the same
// CodecType. The body produced by Encode is opaque to the framing layer.
package codec

import (
	"fmt"

	"github.com/akariss21/lab-1-distributed-computing/message"
)

type CodecType byte

const (
	CodecTypeJSON   CodecType = 0
	CodecTypeSnappy CodecType = 1
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=JSON, 1=Snappy-compressed JSON
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeSnappy {
		return &SnappyCodec{}
	}

	return &JSONCodec{}
}

// ParseCodecType maps a config string to a CodecType.
func ParseCodecType(name string) (CodecType, error) {
	switch name {
	case "", "json":
		return CodecTypeJSON, nil
	case "snappy":
		return CodecTypeSnappy, nil
	default:
		return 0, fmt.Errorf("unknown codec %q", name)
	}
}

// DecodeError reports a frame body that could not be decoded into a valid
// message: malformed bytes, truncated compression, or a schema violation
// such as a missing request_id or method.
//
// RequestID is the id salvaged from the malformed input, if any. The server
// uses it to answer with a well-formed ERROR response; when empty, the
// connection is dropped instead.
type DecodeError struct {
	RequestID string
	Reason    string
}

func (e *DecodeError) Error() string {
	return "decode error: " + e.Reason
}

// DecodeRequest decodes and validates a request body. Any failure is
// reported as a *DecodeError carrying whatever request id could be salvaged.
func DecodeRequest(c Codec, data []byte) (*message.Request, error) {
	req := &message.Request{}
	if err := c.Decode(data, req); err != nil {
		return nil, &DecodeError{RequestID: salvageRequestID(c, data), Reason: err.Error()}
	}
	if err := req.Validate(); err != nil {
		return nil, &DecodeError{RequestID: req.RequestID, Reason: err.Error()}
	}
	return req, nil
}

// DecodeResponse decodes and validates a response body.
func DecodeResponse(c Codec, data []byte) (*message.Response, error) {
	resp := &message.Response{}
	if err := c.Decode(data, resp); err != nil {
		return nil, &DecodeError{RequestID: salvageRequestID(c, data), Reason: err.Error()}
	}
	if err := resp.Validate(); err != nil {
		return nil, &DecodeError{RequestID: resp.RequestID, Reason: err.Error()}
	}
	return resp, nil
}

// salvageRequestID re-decodes the body loosely and pulls out request_id if it
// is present as a string. A body that fails even the loose decode (corrupt
// JSON, bad compression) yields no id.
func salvageRequestID(c Codec, data []byte) string {
	var loose map[string]any
	if err := c.Decode(data, &loose); err != nil {
		return ""
	}
	id, _ := loose["request_id"].(string)
	return id
}
