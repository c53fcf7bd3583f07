package httpapi

import (
	"net/http"
	"strconv"

	"github.com/weavegate/gateway/pkg/datasource"
	"github.com/weavegate/gateway/pkg/hopheaders"
)

// attributesFromRequest reads the inbound hop headers into a
// RequestAttributes value.
// Hops is read as-is; the tier that actually forwards upstream is
// responsible for incrementing it (gatewaytier already does).
func attributesFromRequest(r *http.Request) datasource.RequestAttributes {
	hops, _ := strconv.ParseUint(r.Header.Get(hopheaders.Hops), 10, 32)
	return datasource.RequestAttributes{
		Hops:          uint32(hops),
		Origin:        r.Header.Get(hopheaders.Origin),
		OriginRelease: r.Header.Get(hopheaders.OriginRelease),
		ArNSName:      r.Header.Get(hopheaders.ArNSName),
		ArNSBasename:  r.Header.Get(hopheaders.ArNSBasename),
		ArNSRecord:    r.Header.Get(hopheaders.ArNSRecord),
	}
}

// securityHeaders applies the restrictive header set required for
// /raw/{id}.
func securityHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Security-Policy", "default-src 'self'")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
}

// stripCacheValidationHeaders removes the headers a 304 response must not
// carry.
func stripCacheValidationHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Del("Content-Length")
	h.Del("Content-Encoding")
	h.Del("Content-Range")
	h.Del("Content-Type")
}
