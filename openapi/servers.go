package openapi

import (
	"net/http"
	"strings"
)

// ServerURL derives the server URL advertised in generated documents. It
// prefers X-Forwarded-Proto with X-Forwarded-Host, then Host, then the first
// element of Forwarded. The second result is false when none is present.
//
// Go's HTTP server moves the Host header into Request.Host, so callers that
// want the Host fallback must copy it back into the header they pass.
func ServerURL(h http.Header) (string, bool) {
	proto, host := h.Get("X-Forwarded-Proto"), h.Get("X-Forwarded-Host")
	if proto != "" && host != "" {
		return proto + "://" + host, true
	}
	if host := h.Get("Host"); host != "" {
		return host, true
	}
	if fwd := h.Get("Forwarded"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ";")
		_, origin, ok := strings.Cut(first, "=")
		origin = strings.Trim(strings.TrimSpace(origin), `"`)
		if ok && origin != "" {
			return origin, true
		}
	}
	return "", false
}
