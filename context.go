package authcore

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type actorContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses
// it for rate limiting and audit logging; it is never trusted for
// anything security-critical beyond throttling keys.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx for session
// records and audit events.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithActor attaches the acting administrator's account ID to ctx.
// Administrative operations record it as the audit event's AdminID.
func WithActor(ctx context.Context, adminID string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, adminID)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func actorFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	adminID, _ := ctx.Value(actorContextKey{}).(string)
	return adminID
}
