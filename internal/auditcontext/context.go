// Package auditcontext stores the request metadata recorded alongside audit entries.
package auditcontext

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

type actorUserIDKey struct{}
type ipAddressKey struct{}
type userAgentKey struct{}
type requestIDKey struct{}

// WithActorUserID stores the authenticated user performing the request.
func WithActorUserID(ctx context.Context, userID snowflake.ID) context.Context {
	if userID == 0 {
		return ctx
	}
	return context.WithValue(ctx, actorUserIDKey{}, userID)
}

// ActorUserIDFromContext returns the acting user, if any.
func ActorUserIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(actorUserIDKey{}).(snowflake.ID)
	if !ok || id == 0 {
		return 0, false
	}
	return id, true
}

func WithIPAddress(ctx context.Context, ip string) context.Context {
	return withString(ctx, ipAddressKey{}, ip)
}

func IPAddressFromContext(ctx context.Context) string {
	return stringFrom(ctx, ipAddressKey{})
}

func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return withString(ctx, userAgentKey{}, userAgent)
}

func UserAgentFromContext(ctx context.Context) string {
	return stringFrom(ctx, userAgentKey{})
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withString(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringFrom(ctx, requestIDKey{})
}

func withString(ctx context.Context, key any, value string) context.Context {
	value = strings.TrimSpace(value)
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key any) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
