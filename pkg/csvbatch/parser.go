// Package csvbatch turns one CSV message into catalog records.
//
// A message is a complete CSV document whose first row is a header. Rows whose
// numeric fields cannot be converted are dropped and reported in Batch.Skipped;
// framing errors (broken quoting, truncated rows, read failures) fail the
// whole message with a *StructuralError and no records.
package csvbatch

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/edgeflare/catalogd/pkg/catalog"
	"go.uber.org/zap"
)

// NumFields is the number of positional fields a data row must carry:
// code,name,vintage,type,country,price.
const NumFields = 6

var (
	// ErrNonFinite is wrapped by a price RowError for NaN and infinite values.
	ErrNonFinite = errors.New("value is not a finite number")
	// ErrStructural matches any *StructuralError via errors.Is.
	ErrStructural = errors.New("csv structural error")
	// ErrTruncatedRow is wrapped by a StructuralError when a row has fewer than NumFields fields.
	ErrTruncatedRow = errors.New("truncated row")
)

var utf8BOM = []byte("\xef\xbb\xbf")

// StructuralError reports a framing failure that invalidates the whole message.
type StructuralError struct {
	Line int
	Err  error
}

func (e *StructuralError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("csv structural error at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("csv structural error: %v", e.Err)
}

func (e *StructuralError) Unwrap() error { return e.Err }

func (e *StructuralError) Is(target error) bool { return target == ErrStructural }

// RowError describes a data row dropped because one of its numeric fields did not convert.
type RowError struct {
	Line  int
	Field string
	Value string
	Err   error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: field %s: cannot convert %q: %v", e.Line, e.Field, e.Value, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// Batch is the result of parsing one message.
type Batch struct {
	// Records holds the converted rows in input order.
	Records []catalog.Record
	// Skipped holds one entry per dropped row.
	Skipped []RowError
	// Rows counts data rows read, header excluded.
	Rows int
}

// Parser parses CSV messages. It holds no per-message state and is safe for concurrent use.
type Parser struct {
	logger *zap.Logger
}

// NewParser returns a Parser logging dropped rows to the optional logger.
func NewParser(logger ...*zap.Logger) *Parser {
	p := &Parser{logger: zap.NewNop()}
	if len(logger) > 0 && logger[0] != nil {
		p.logger = logger[0]
	}
	return p
}

// Parse converts raw into records. The first row of raw is always treated as the header.
func (p *Parser) Parse(raw []byte) (*Batch, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(raw, utf8BOM)))
	r.Comma = ','
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	batch := &Batch{}
	header := true
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &StructuralError{Err: err}
		}
		line, _ := r.FieldPos(0)

		if header {
			header = false
			continue
		}
		batch.Rows++

		if len(row) < NumFields {
			return nil, &StructuralError{
				Line: line,
				Err:  fmt.Errorf("%w: got %d fields, want %d", ErrTruncatedRow, len(row), NumFields),
			}
		}

		rec, rowErr := toRecord(line, row)
		if rowErr != nil {
			p.logger.Warn("dropping csv row", zap.Int("line", rowErr.Line),
				zap.String("field", rowErr.Field), zap.String("value", rowErr.Value), zap.Error(rowErr.Err))
			batch.Skipped = append(batch.Skipped, *rowErr)
			continue
		}
		batch.Records = append(batch.Records, rec)
	}

	return batch, nil
}

// toRecord maps a row positionally onto a Record.
func toRecord(line int, row []string) (catalog.Record, *RowError) {
	code, err := parseInt32(row[0])
	if err != nil {
		return catalog.Record{}, &RowError{Line: line, Field: "code", Value: row[0], Err: err}
	}
	vintage, err := parseInt32(row[2])
	if err != nil {
		return catalog.Record{}, &RowError{Line: line, Field: "vintage", Value: row[2], Err: err}
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(row[5]), 64)
	if err == nil && (math.IsNaN(price) || math.IsInf(price, 0)) {
		err = ErrNonFinite
	}
	if err != nil {
		return catalog.Record{}, &RowError{Line: line, Field: "price", Value: row[5], Err: err}
	}

	return catalog.Record{
		Code:    code,
		Name:    row[1],
		Vintage: vintage,
		Type:    row[3],
		Country: row[4],
		Price:   price,
	}, nil
}

// parseInt32 converts an integer field. Values outside int32 fail here so the
// row is dropped whichever store is configured.
func parseInt32(s string) (int, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	return int(n), err
}
