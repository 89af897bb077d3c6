package core

import "context"

type contextKey string

const (
	ctxKeyClientIP  contextKey = "import_client_ip"
	ctxKeyUserAgent contextKey = "import_user_agent"
)

// ContextWithClient records who submitted a batch, for import logs.
func ContextWithClient(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyClientIP, ip)
	return context.WithValue(ctx, ctxKeyUserAgent, userAgent)
}

// ClientFromContext returns the values stored by ContextWithClient.
func ClientFromContext(ctx context.Context) (ip, userAgent string) {
	ip, _ = ctx.Value(ctxKeyClientIP).(string)
	userAgent, _ = ctx.Value(ctxKeyUserAgent).(string)
	return ip, userAgent
}

// clientAttrs returns the client as log attributes, omitting empty values.
func clientAttrs(ctx context.Context) []any {
	ip, ua := ClientFromContext(ctx)
	var attrs []any
	if ip != "" {
		attrs = append(attrs, "client_ip", ip)
	}
	if ua != "" {
		attrs = append(attrs, "user_agent", ua)
	}
	return attrs
}
