package middleware

import (
	"context"
	"time"

	"github.com/akariss21/lab-1-distributed-computing/message"
)

// Timeout bounds handler execution. A handler that overruns yields an ERROR
// response; the handler goroutine itself is left to finish in the background
// since handlers take no cancellation signal.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.Response, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return message.Error(req.RequestID, "execution timed out")
			}
		}
	}
}
