package middleware

import (
	"net/http"
	"strings"
)

// SkipCompressionForWebsocket wraps a compression middleware so websocket
// upgrade requests bypass it. Compression middleware wraps the
// ResponseWriter and breaks the connection hijack the upgrade needs; the
// websocket layer negotiates its own permessage-deflate instead.
func SkipCompressionForWebsocket(compressionHandler func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		compressedHandler := compressionHandler(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}
			compressedHandler.ServeHTTP(w, r)
		})
	}
}
