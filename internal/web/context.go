package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/recordimport/internal/core"
)

// withRequestMetadata adds the client IP and User-Agent to the request
// context for import logs. RemoteAddr has already been resolved by
// TrustedRealIP.
func withRequestMetadata(r *http.Request) context.Context {
	ip := r.RemoteAddr
	if host, ok := splitHost(ip); ok {
		ip = host
	}
	return core.ContextWithClient(r.Context(), ip, r.Header.Get("User-Agent"))
}
