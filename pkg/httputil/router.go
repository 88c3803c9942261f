package httputil

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Middleware defines a function type that represents a middleware. Middleware functions wrap an
// http.Handler to modify or enhance its behavior.
type Middleware func(http.Handler) http.Handler

// RouterOptions is a function type that represents options to configure a Router.
type RouterOptions func(*Router)

// Router is the main structure for handling HTTP routing and middleware.
type Router struct {
	mux        *http.ServeMux
	server     *http.Server
	logger     *zap.Logger
	prefix     string
	certFile   string
	keyFile    string
	middleware []Middleware
	mu         sync.RWMutex
}

// NewRouter creates a new instance of Router with the given options.
func NewRouter(opts ...RouterOptions) *Router {
	r := &Router{
		mux: http.NewServeMux(),
		server: &http.Server{
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithServerOptions returns a RouterOptions function that sets custom http.Server options.
func WithServerOptions(opts ...func(*http.Server)) RouterOptions {
	return func(r *Router) {
		for _, opt := range opts {
			opt(r.server)
		}
	}
}

// WithLogger sets the logger used for server lifecycle messages.
func WithLogger(logger *zap.Logger) RouterOptions {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTLS serves HTTPS with the given certificate and key files.
func WithTLS(certFile, keyFile string) RouterOptions {
	return func(r *Router) {
		r.certFile = certFile
		r.keyFile = keyFile
	}
}

// Use adds one or more middleware to the router. At least one middleware must be provided.
// Middleware functions are applied in the order they are added, to routes registered afterwards.
func (r *Router) Use(mw Middleware, additional ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw)
	r.middleware = append(r.middleware, additional...)
}

// Group creates a new sub-router with a specified prefix. The sub-router inherits the middleware
// from its parent router.
func (r *Router) Group(prefix string) *Router {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &Router{
		mux:        r.mux,
		middleware: slices.Clone(r.middleware),
		server:     r.server,
		logger:     r.logger,
		prefix:     r.prefix + prefix,
	}
}

// Handle registers an HTTP handler for a given method and pattern as introduced in
// [Routing Enhancements for Go 1.22](https://go.dev/blog/routing-enhancements)
// The handler `METHOD /pattern` on a route group with a /prefix resolves to `METHOD /prefix/pattern`
func (r *Router) Handle(methodPattern string, handler http.Handler) {
	method, pattern, ok := strings.Cut(methodPattern, " ")
	if !ok {
		panic(fmt.Sprintf("invalid method pattern: %s", methodPattern))
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	finalHandler := handler
	for i := len(r.middleware) - 1; i >= 0; i-- {
		finalHandler = r.middleware[i](finalHandler)
	}
	r.mux.Handle(fmt.Sprintf("%s %s%s", method, r.prefix, pattern), finalHandler)
}

// HandleFunc is Handle for a handler function.
func (r *Router) HandleFunc(methodPattern string, handler http.HandlerFunc) {
	r.Handle(methodPattern, handler)
}

// Handler returns the http.Handler serving every registered route.
func (r *Router) Handler() http.Handler {
	return r.mux
}

// ListenAndServe starts the server, serving HTTPS when WithTLS was given.
func (r *Router) ListenAndServe(addr string) error {
	r.server.Addr = addr
	r.server.Handler = r.mux

	if r.certFile != "" && r.keyFile != "" {
		r.logger.Info("starting server", zap.String("addr", addr), zap.Bool("tls", true))
		return r.server.ListenAndServeTLS(r.certFile, r.keyFile)
	}
	r.logger.Info("starting server", zap.String("addr", addr))
	return r.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (r *Router) Shutdown(ctx context.Context) error {
	r.logger.Info("shutting down server")
	return r.server.Shutdown(ctx)
}
