package middleware

import (
	"net/http"
	"slices"
	"strings"
)

// CORSOptions defines configuration for CORS.
type CORSOptions struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
}

// defaultCORSOptions returns the default CORS options for the REST surface.
func defaultCORSOptions() *CORSOptions {
	return &CORSOptions{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Accept", "Origin", RequestIDHeader},
	}
}

// CORSWithOptions creates a CORS middleware with the provided configuration.
// If options is nil, it will use the default CORS settings.
// If options is an empty struct (CORSOptions{}), it will create a middleware with no CORS headers.
//
// With several allowed origins the request Origin is echoed back when it is
// one of them, since Access-Control-Allow-Origin carries a single origin.
func CORSWithOptions(options *CORSOptions) func(http.Handler) http.Handler {
	if options == nil {
		options = defaultCORSOptions()
	}
	wildcard := slices.Contains(options.AllowedOrigins, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case wildcard:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && slices.Contains(options.AllowedOrigins, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			if len(options.AllowedMethods) > 0 {
				w.Header().Set("Access-Control-Allow-Methods", strings.Join(options.AllowedMethods, ","))
			}
			if len(options.AllowedHeaders) > 0 {
				w.Header().Set("Access-Control-Allow-Headers", strings.Join(options.AllowedHeaders, ","))
			}
			if options.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			// Handle preflight request
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
