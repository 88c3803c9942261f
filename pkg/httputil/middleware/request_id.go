package middleware

import (
	"context"
	"net/http"

	"github.com/edgeflare/catalogd/pkg/httputil"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-Id"

// RequestID middleware assigns every request an id. An id already in the
// context or a valid UUID in the X-Request-Id request header is kept;
// otherwise a new UUID is generated. The id is echoed in the response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID, ok := r.Context().Value(httputil.RequestIDCtxKey).(string)
		if !ok || reqID == "" {
			reqID = r.Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(reqID); err != nil {
				reqID = uuid.NewString()
			}
		}

		ctx := context.WithValue(r.Context(), httputil.RequestIDCtxKey, reqID)
		w.Header().Set(RequestIDHeader, reqID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
