// Package clientid derives a stable client identity from request metadata
// (C2). The identity is an opaque string used only as an equality key by
// admission and audit; it is never parsed as a real IP address.
package clientid

import "net/http"

// Identify returns the first non-empty of X-Forwarded-For, X-Real-IP, or
// the transport-level remote address.
func Identify(r *http.Request) string {
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		return v
	}
	if v := r.Header.Get("X-Real-IP"); v != "" {
		return v
	}
	return r.RemoteAddr
}
