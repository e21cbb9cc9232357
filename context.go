package goSession

import "context"

type clientIPContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// for refresh throttling and audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// ClientIPFromContext returns the IP set by WithClientIP, or "unknown".
func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return unknownIP
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	if ip == "" {
		return unknownIP
	}
	return ip
}

const unknownIP = "unknown"

// throttleKeyFromContext keys refresh throttling by client IP. It returns ""
// when no IP was attached so callers never share an "unknown" bucket.
func throttleKeyFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	if ip == "" {
		return ""
	}
	return "ip:" + ip
}
