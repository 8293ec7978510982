package redisclient

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Client wraps a Redis client with OpenTelemetry tracing
type Client struct {
	cmdable redis.UniversalClient
}

// NewClient creates a new traced Redis client for single Redis instance
func NewClient(client redis.UniversalClient) *Client {
	return &Client{cmdable: client}
}

// startSpan opens a span for one Redis command. The returned func records
// the command outcome and ends the span.
func (c *Client) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	attrs = append(attrs,
		attribute.String("redis.operation", operation),
		attribute.String("redis.client", "nis-portal"),
	)
	ctx, span := otel.Tracer("redis").Start(ctx, "redis."+operation, trace.WithAttributes(attrs...))

	return ctx, func(err error) {
		duration := time.Since(start)
		span.SetAttributes(
			attribute.Int64("redis.duration_ms", duration.Milliseconds()),
			attribute.String("redis.duration", duration.String()),
		)
		if err != nil && !errors.Is(err, redis.Nil) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(attribute.String("redis.error", err.Error()))
		} else {
			span.SetStatus(codes.Ok, "success")
		}
		span.End()
	}
}

// Incr wraps Redis Incr with tracing
func (c *Client) Incr(ctx context.Context, key string) *redis.IntCmd {
	ctx, finish := c.startSpan(ctx, "incr", attribute.String("redis.key", key))
	cmd := c.cmdable.Incr(ctx, key)
	finish(cmd.Err())
	return cmd
}

// PExpire wraps Redis PExpire with tracing
func (c *Client) PExpire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	ctx, finish := c.startSpan(ctx, "pexpire",
		attribute.String("redis.key", key),
		attribute.String("redis.expiration", expiration.String()),
	)
	cmd := c.cmdable.PExpire(ctx, key, expiration)
	finish(cmd.Err())
	return cmd
}

// PTTL wraps Redis PTTL with tracing
func (c *Client) PTTL(ctx context.Context, key string) *redis.DurationCmd {
	ctx, finish := c.startSpan(ctx, "pttl", attribute.String("redis.key", key))
	cmd := c.cmdable.PTTL(ctx, key)
	finish(cmd.Err())
	return cmd
}

// Del wraps Redis Del with tracing
func (c *Client) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	ctx, finish := c.startSpan(ctx, "del",
		attribute.StringSlice("redis.keys", keys),
		attribute.Int("redis.key_count", len(keys)),
	)
	cmd := c.cmdable.Del(ctx, keys...)
	finish(cmd.Err())
	return cmd
}

// Ping wraps Redis Ping with tracing
func (c *Client) Ping(ctx context.Context) *redis.StatusCmd {
	ctx, finish := c.startSpan(ctx, "ping")
	cmd := c.cmdable.Ping(ctx)
	finish(cmd.Err())
	return cmd
}

// Close closes the underlying connection pool
func (c *Client) Close() error {
	return c.cmdable.Close()
}
