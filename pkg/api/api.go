// Package api serves the catalog store over HTTP:
//
//	GET    {baseURL}/all     all records
//	GET    {baseURL}/{code}  one record
//	PUT    {baseURL}/{code}  merge the JSON body onto the stored record
//	DELETE {baseURL}/{code}  remove the record
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/edgeflare/catalogd/pkg/catalog"
	"github.com/edgeflare/catalogd/pkg/httputil"
	"go.uber.org/zap"
)

// maxBodySize bounds PUT request bodies.
const maxBodySize = 1 << 20

// Service is the record store surface exposed over HTTP.
type Service interface {
	Get(ctx context.Context, code int) (catalog.Record, error)
	List(ctx context.Context) ([]catalog.Record, error)
	Modify(ctx context.Context, code int, fn func(*catalog.Record) error) (catalog.Record, error)
	Delete(ctx context.Context, code int) error
}

// Register mounts the handlers on r. Routes are relative to r's group prefix.
func Register(r *httputil.Router, svc Service) {
	h := &handlers{svc: svc}
	r.HandleFunc("GET /all", h.list)
	r.HandleFunc("GET /{code}", h.get)
	r.HandleFunc("PUT /{code}", h.put)
	r.HandleFunc("DELETE /{code}", h.delete)
}

type handlers struct {
	svc Service
}

func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if records == nil {
		records = []catalog.Record{}
	}
	httputil.Logger(r.Context()).Debug("retrieved all records", zap.Int("count", len(records)))
	httputil.JSON(w, http.StatusOK, records)
}

func (h *handlers) get(w http.ResponseWriter, r *http.Request) {
	code, ok := pathCode(w, r)
	if !ok {
		return
	}

	rec, err := h.svc.Get(r.Context(), code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, rec)
}

func (h *handlers) put(w http.ResponseWriter, r *http.Request) {
	code, ok := pathCode(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", catalog.ErrMalformed, err))
		return
	}
	if !json.Valid(body) {
		h.fail(w, r, fmt.Errorf("%w: body is not valid JSON", catalog.ErrMalformed))
		return
	}

	rec, err := h.svc.Modify(r.Context(), code, func(rec *catalog.Record) error {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		if err := dec.Decode(rec); err != nil {
			return fmt.Errorf("%w: %v", catalog.ErrMalformed, err)
		}
		return nil
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, rec)
}

func (h *handlers) delete(w http.ResponseWriter, r *http.Request) {
	code, ok := pathCode(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), code); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.Text(w, http.StatusOK, fmt.Sprintf("Data with code %d deleted with success.", code))
}

// fail maps service errors to status codes.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	logger := httputil.Logger(r.Context())
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		logger.Warn("record not found", zap.String("code", r.PathValue("code")))
		httputil.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, catalog.ErrMalformed):
		logger.Warn("malformed request", zap.Error(err))
		httputil.Error(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error("request failed", zap.Error(err))
		httputil.Error(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func pathCode(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.PathValue("code")
	code, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, fmt.Sprintf("code must be an integer, got %q", raw))
		return 0, false
	}
	return int(code), true
}
