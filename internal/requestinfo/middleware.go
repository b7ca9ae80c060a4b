//
//  internal/requestinfo/middleware.go
//
//  Enrich is a chi middleware that parses the User-Agent header,
//  resolves the client IP, and performs an optional geolocation lookup
//  before the admin handlers run.  The resulting *RequestInfo lives in
//  the request context for the duration of the request; handlers pull
//  it out via FromContext when writing audit log entries.
//
//  Notes
//  • We trust the left-most X-Forwarded-For entry only when the peer
//    is a private address, i.e. the request came through our own proxy.
//  • Parsing is cheap (microseconds), so there is no caching layer.
//

package requestinfo

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"
)

// Enrich parses request metadata and stores it in the context.
func Enrich(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := &RequestInfo{
			UA:        parseUA(r.UserAgent()),
			Geo:       lookupGeo(clientIP(r)),
			URL:       r.URL,
			Timestamp: time.Now().UTC(),
		}

		ctx := context.WithValue(r.Context(), ctxKey{}, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP extracts the real client address, honoring X-Forwarded-For
// only when the direct peer is a private or loopback address.
func clientIP(r *http.Request) net.IP {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer := net.ParseIP(host)

	if peer != nil && (peer.IsLoopback() || peer.IsPrivate()) {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip
			}
		}
	}
	return peer
}
