package httputil

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, map[string]int{"code": 1})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"code":1}`, w.Body.String())
}

func TestJSONEncodeFailure(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, map[string]any{"price": math.Inf(1)})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestText(t *testing.T) {
	w := httptest.NewRecorder()
	Text(w, http.StatusOK, "Data with code 1 deleted with success.")

	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, "Data with code 1 deleted with success.", w.Body.String())
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusNotFound, "not found")

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, ErrorResponse{Code: http.StatusNotFound, Message: "not found"}, resp)
}

func TestBindOrError(t *testing.T) {
	var dst struct {
		Name string `json:"wine_name"`
	}

	r := httptest.NewRequest(http.MethodPut, "/1", strings.NewReader(`{"wine_name":"Malbec"}`))
	w := httptest.NewRecorder()
	require.NoError(t, BindOrError(r, w, &dst))
	assert.Equal(t, "Malbec", dst.Name)

	r = httptest.NewRequest(http.MethodPut, "/1", strings.NewReader(`{"wine_name":`))
	w = httptest.NewRecorder()
	assert.Error(t, BindOrError(r, w, &dst))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContextHelpers(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, RequestID(r))
	assert.NotNil(t, Logger(r.Context()))

	logger := zap.NewExample()
	ctx := context.WithValue(r.Context(), RequestIDCtxKey, "abc")
	ctx = context.WithValue(ctx, LogEntryCtxKey, logger)
	r = r.WithContext(ctx)
	assert.Equal(t, "abc", RequestID(r))
	assert.Same(t, logger, Logger(r.Context()))
}
