package pinauth

import "context"

type clientIPContextKey struct{}
type restaurantIDContextKey struct{}
type userAgentContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// for per-origin throttling, brute-force detection, and audit logging.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithRestaurantID attaches a restaurant identifier to ctx for tenant
// scoping of sessions and audit records. When absent, the default
// restaurant "0" is used.
func WithRestaurantID(ctx context.Context, restaurantID string) context.Context {
	return context.WithValue(ctx, restaurantIDContextKey{}, restaurantID)
}

// WithUserAgent attaches the client User-Agent string to ctx. Used by the
// brute-force detector's user-agent churn signal.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
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

func restaurantIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return "0"
	}

	restaurantID, _ := ctx.Value(restaurantIDContextKey{}).(string)
	if restaurantID == "" {
		return "0"
	}

	return restaurantID
}
