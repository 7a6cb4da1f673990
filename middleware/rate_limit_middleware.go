package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/akariss21/lab-1-distributed-computing/message"
)

// RateLimit rejects requests above r per second (token bucket with the given
// burst). Rejections are well-formed ERROR responses, so a throttled client
// fails fast instead of timing out and retrying into the same limiter.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			if !limiter.Allow() {
				return message.Error(req.RequestID, "rate limit exceeded")
			}
			return next(ctx, req)
		}
	}
}
