// Package catalog defines the catalog record reconciled by catalogd.
//
// A Record is keyed by its business key Code. How a record is stored, and the
// storage identity it gets on insert, is the concern of package store.
package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no stored record matches a code.
	ErrNotFound = errors.New("record not found")
	// ErrMalformed is returned when a request body cannot be interpreted as a record.
	ErrMalformed = errors.New("malformed record")
)

// Record is a catalog item. Code is the business key and is never regenerated.
type Record struct {
	Code    int     `json:"code"`
	Name    string  `json:"wineName"`
	Vintage int     `json:"vintage"`
	Type    string  `json:"type"`
	Country string  `json:"country"`
	Price   float64 `json:"price"`
}

// Overwrite copies every descriptive and price field of src onto r. Code is left untouched.
func (r *Record) Overwrite(src Record) {
	r.Name = src.Name
	r.Vintage = src.Vintage
	r.Type = src.Type
	r.Country = src.Country
	r.Price = src.Price
}

func (r Record) String() string {
	return fmt.Sprintf("Record{code=%d name=%q vintage=%d type=%q country=%q price=%.2f}",
		r.Code, r.Name, r.Vintage, r.Type, r.Country, r.Price)
}
