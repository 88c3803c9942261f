package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/edgeflare/catalogd/pkg/catalog"
	"github.com/edgeflare/catalogd/pkg/csvbatch"
	"github.com/edgeflare/catalogd/pkg/httputil"
	"github.com/edgeflare/catalogd/pkg/httputil/middleware"
	"github.com/edgeflare/catalogd/pkg/reconcile"
	"github.com/edgeflare/catalogd/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var seed = []catalog.Record{
	{Code: 1, Name: "Malbec", Vintage: 2019, Type: "Red", Country: "Argentina", Price: 12.5},
	{Code: 2, Name: "Rioja", Vintage: 2018, Type: "Red", Country: "Spain", Price: 20},
}

func newServer(t *testing.T, svc Service) http.Handler {
	t.Helper()
	r := httputil.NewRouter()
	r.Use(middleware.RequestID)
	Register(r.Group("/data-service"), svc)
	return r.Handler()
}

func seeded(t *testing.T) (http.Handler, *reconcile.Engine) {
	t.Helper()
	e := reconcile.New(memory.New())
	require.NoError(t, e.Reconcile(context.Background(), seed).Err())
	return newServer(t, e), e
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestListAll(t *testing.T) {
	h, _ := seeded(t)

	w := do(h, http.MethodGet, "/data-service/all", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got []catalog.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.ElementsMatch(t, seed, got)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestListAllEmpty(t *testing.T) {
	h := newServer(t, reconcile.New(memory.New()))

	w := do(h, http.MethodGet, "/data-service/all", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestGetByCode(t *testing.T) {
	h, _ := seeded(t)

	w := do(h, http.MethodGet, "/data-service/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"code":1,"wineName":"Malbec","vintage":2019,"type":"Red","country":"Argentina","price":12.5}`, w.Body.String())

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/data-service/9", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/data-service/abc", "").Code)
}

func TestPutMergesFields(t *testing.T) {
	h, e := seeded(t)

	w := do(h, http.MethodPut, "/data-service/1", `{"price":15.75,"code":99}`)
	require.Equal(t, http.StatusOK, w.Code)

	var got catalog.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	want := seed[0]
	want.Price = 15.75
	assert.Equal(t, want, got, "absent fields kept, code stays the path code")

	stored, err := e.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, want, stored)
	_, err = e.Get(context.Background(), 99)
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	w = do(h, http.MethodPut, "/data-service/2", `{"wineName":"Rioja Reserva"}`)
	require.Equal(t, http.StatusOK, w.Code)
	stored, err = e.Get(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "Rioja Reserva", stored.Name)
}

func TestPutErrors(t *testing.T) {
	h, e := seeded(t)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodPut, "/data-service/9", `{"price":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPut, "/data-service/1", `{"price":`).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPut, "/data-service/1", `{"vintage":"old"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPut, "/data-service/x", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPut, "/data-service/1", `{"wineName":"Renamed","bogus":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPut, "/data-service/1", `{"wine_name":"Renamed"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/data-service/3000000000", "").Code)

	stored, err := e.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, seed[0], stored, "failed updates leave the record untouched")
}

func TestDelete(t *testing.T) {
	h, _ := seeded(t)

	w := do(h, http.MethodDelete, "/data-service/2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Data with code 2 deleted with success.", w.Body.String())

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodDelete, "/data-service/2", "").Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/data-service/2", "").Code)
}

type brokenService struct{ Service }

func (brokenService) List(context.Context) ([]catalog.Record, error) {
	return nil, errors.New("connection refused")
}

func TestInternalError(t *testing.T) {
	h := newServer(t, brokenService{})

	w := do(h, http.MethodGet, "/data-service/all", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestListAllSkipsNonFinitePrices(t *testing.T) {
	batch, err := csvbatch.NewParser().Parse([]byte("code,name,vintage,type,country,price\n" +
		"1,Malbec,2019,Red,Argentina,NaN\n2,Rioja,2018,Red,Spain,Inf\n3,Cava,2020,Sparkling,Spain,11\n"))
	require.NoError(t, err)
	require.Len(t, batch.Skipped, 2)

	e := reconcile.New(memory.New())
	require.NoError(t, e.Reconcile(context.Background(), batch.Records).Err())
	h := newServer(t, e)

	w := do(h, http.MethodGet, "/data-service/all", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var got []catalog.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Len(t, got, 1)
}

type nanService struct{ Service }

func (nanService) List(context.Context) ([]catalog.Record, error) {
	return []catalog.Record{{Code: 1, Price: math.NaN()}}, nil
}

func TestListAllUnencodableIsServerError(t *testing.T) {
	h := newServer(t, nanService{})

	w := do(h, http.MethodGet, "/data-service/all", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.True(t, json.Valid(w.Body.Bytes()), w.Body.String())
}
