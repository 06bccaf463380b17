package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetryMiddleware retries transport failures under policy.
func RetryMiddleware(policy RetryPolicy, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.OnRetry == nil {
		policy.OnRetry = func(err error, delay time.Duration) {
			logger.Warn("retrying model request", zap.Error(err), zap.Duration("delay", delay))
		}
	}
	return func(ctx context.Context, req Request, next Handler) (*Response, error) {
		return Retry(ctx, policy, func(ctx context.Context) (*Response, error) {
			return next(ctx, req)
		})
	}
}

// LoggingMiddleware logs each model call at debug level and failures at warn.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, req Request, next Handler) (*Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		fields := []zap.Field{
			zap.String("provider", req.Provider),
			zap.String("model", req.Model),
			zap.Int("messages", len(req.Messages)),
			zap.Int("tools", len(req.ToolDefs)),
			zap.Duration("elapsed", time.Since(start)),
		}
		if err != nil {
			logger.Warn("model request failed", append(fields, zap.Error(err))...)
			return nil, err
		}
		logger.Debug("model request completed", append(fields,
			zap.String("finish_reason", resp.FinishReason.Reason),
			zap.Int("tool_calls", len(resp.ToolCalls())),
			zap.Int("total_tokens", resp.Usage.TotalTokens),
		)...)
		return resp, nil
	}
}
