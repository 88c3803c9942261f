// Package store defines the keyed record store consumed by the reconciliation engine.
//
// Records are looked up by business key (catalog.Record.Code). Each stored record
// also has a storage identity assigned on insert; it travels inside an Entry so
// that Update can target the stored row without callers handling it.
package store

import (
	"context"
	"errors"

	"github.com/edgeflare/catalogd/pkg/catalog"
	"github.com/google/uuid"
)

var (
	// ErrDuplicateKey is returned by Insert when the store enforces code uniqueness
	// and a record with the same code already exists.
	ErrDuplicateKey = errors.New("duplicate record code")
	// ErrUnbound is returned by Update for an entry that was not obtained from the store.
	ErrUnbound = errors.New("entry is not bound to a storage identity")
)

// RecordStore is a keyed document store for catalog records.
type RecordStore interface {
	// FindByKey returns the entry stored for code, or (nil, nil) if there is none.
	FindByKey(ctx context.Context, code int) (*Entry, error)
	// Insert stores rec under a new storage identity.
	Insert(ctx context.Context, rec catalog.Record) (*Entry, error)
	// Update persists the current field values of an entry returned by FindByKey or Insert.
	Update(ctx context.Context, e *Entry) error
	// DeleteByKey removes the record stored for code and reports whether one existed.
	DeleteByKey(ctx context.Context, code int) (bool, error)
	// List returns every stored record ordered by code.
	List(ctx context.Context) ([]catalog.Record, error)
}

// Entry is a record bound to its storage identity.
type Entry struct {
	catalog.Record
	id uuid.UUID
}

// Bind returns an entry for rec stored under id. Only store adapters call it.
func Bind(id uuid.UUID, rec catalog.Record) *Entry {
	return &Entry{Record: rec, id: id}
}

// Identity returns the storage identity, uuid.Nil for an unbound entry.
func (e *Entry) Identity() uuid.UUID {
	return e.id
}

// Bound reports whether the entry carries a storage identity.
func (e *Entry) Bound() bool {
	return e != nil && e.id != uuid.Nil
}
