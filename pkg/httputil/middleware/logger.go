package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/edgeflare/catalogd/pkg/httputil"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ResponseRecorder is a wrapper for http.ResponseWriter to capture status codes and sizes.
type ResponseRecorder struct {
	http.ResponseWriter
	StatusCode int
	Bytes      int
}

func NewResponseRecorder(w http.ResponseWriter) *ResponseRecorder {
	return &ResponseRecorder{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

func (rr *ResponseRecorder) WriteHeader(statusCode int) {
	rr.StatusCode = statusCode
	rr.ResponseWriter.WriteHeader(statusCode)
}

func (rr *ResponseRecorder) Write(b []byte) (int, error) {
	n, err := rr.ResponseWriter.Write(b)
	rr.Bytes += n
	return n, err
}

// LoggerOptions defines configuration for the logger middleware.
type LoggerOptions struct {
	Logger *zap.Logger
	Format func(reqID string, rec *ResponseRecorder, r *http.Request, latency time.Duration) []zap.Field
}

func defaultFormat(reqID string, rec *ResponseRecorder, r *http.Request, latency time.Duration) []zap.Field {
	return []zap.Field{
		zap.String("req_id", reqID),
		zap.Int("status", rec.StatusCode),
		zap.String("method", r.Method),
		zap.String("host", r.Host),
		zap.String("url", r.URL.String()),
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("user_agent", r.UserAgent()),
		zap.Int("bytes", rec.Bytes),
		zap.Duration("latency", latency),
	}
}

// LoggerWithOptions logs one "response" entry per request: info for 1xx-3xx,
// warn for 4xx and error for 5xx. Handlers get a request scoped logger,
// carrying the request id, via httputil.Logger.
func LoggerWithOptions(options *LoggerOptions) func(http.Handler) http.Handler {
	opts := LoggerOptions{Logger: zap.NewNop(), Format: defaultFormat}
	if options != nil {
		if options.Logger != nil {
			opts.Logger = options.Logger
		}
		if options.Format != nil {
			opts.Format = options.Format
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.Context().Value(httputil.LogEntryCtxKey).(*zap.Logger); ok {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			reqID, ok := r.Context().Value(httputil.RequestIDCtxKey).(string)
			if !ok {
				reqID = uuid.Nil.String()
			}

			rec := NewResponseRecorder(w)
			ctx := context.WithValue(r.Context(), httputil.LogEntryCtxKey, opts.Logger.With(zap.String("req_id", reqID)))
			r = r.WithContext(ctx)

			next.ServeHTTP(rec, r)

			fields := opts.Format(reqID, rec, r, time.Since(start))
			if ce := opts.Logger.Check(levelFor(rec.StatusCode), "response"); ce != nil {
				ce.Write(fields...)
			}
		})
	}
}

func levelFor(status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status >= http.StatusBadRequest:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
