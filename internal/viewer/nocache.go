package viewer

import "net/http"

// noCache disables browser caching so a rebuilt binary's page is picked up
// on the next reload.
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Del("ETag")
		w.Header().Del("Last-Modified")
		next.ServeHTTP(w, r)
	})
}
