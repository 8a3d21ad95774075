package httpmw

import (
	"net/http"
	"slices"
	"strings"
)

// CORS answers preflights and sets Access-Control-* headers for the listed
// origins. "*" allows any origin. Origin patterns may end in "*" to match
// a scheme prefix, e.g. "chrome-extension://*".
func CORS(origins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && allowedOrigin(origins, origin) {
				h := w.Header()
				if slices.Contains(origins, "*") {
					h.Set("Access-Control-Allow-Origin", "*")
				} else {
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Trace-ID")
				h.Set("Access-Control-Expose-Headers", "X-Trace-ID")
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func allowedOrigin(origins []string, origin string) bool {
	for _, o := range origins {
		switch {
		case o == "*" || o == origin:
			return true
		case strings.HasSuffix(o, "*") && strings.HasPrefix(origin, strings.TrimSuffix(o, "*")):
			return true
		}
	}
	return false
}
