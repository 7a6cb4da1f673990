package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/akariss21/lab-1-distributed-computing/message"
)

// Logging records every executed request: method, request id, duration, and
// outcome. Replayed (cached) responses never reach this middleware, so the
// log doubles as an execution count when verifying at-most-once behavior.
func Logging(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			start := time.Now()
			resp := next(ctx, req)
			fields := []zap.Field{
				zap.String("request_id", req.RequestID),
				zap.String("method", req.Method),
				zap.Duration("duration", time.Since(start)),
				zap.String("status", string(resp.Status)),
			}
			if resp.Status == message.StatusError {
				fields = append(fields, zap.String("error_message", resp.ErrorMessage))
				logger.Warn("request failed", fields...)
				return resp
			}
			logger.Info("request executed", fields...)
			return resp
		}
	}
}
