// Package middleware wraps the server's execute step with cross-cutting
// behavior (logging, rate limiting, execution timeouts).
//
// Middlewares compose in the onion model: Chain(A, B, C)(handler) runs
// A.before → B.before → C.before → handler → C.after → B.after → A.after.
// The chain sees decoded requests only; framing, dedup, and fault injection
// stay in the dispatcher.
package middleware

import (
	"context"

	"github.com/akariss21/lab-1-distributed-computing/message"
)

type HandlerFunc func(ctx context.Context, req *message.Request) *message.Response

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines middlewares into one, applied in the order given.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
