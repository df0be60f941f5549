// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package decode

import (
	"fmt"

	"github.com/cardinalhq/bsoncolumns/internal/colbuf"
)

// ColumnStats counts what happened to one column across a batch.
// Decoded + Absent + Mismatched always equals Processed.
type ColumnStats struct {
	Processed  int64 `cbor:"1,keyasint"`
	Decoded    int64 `cbor:"2,keyasint"`
	Absent     int64 `cbor:"3,keyasint"`
	Mismatched int64 `cbor:"4,keyasint"`
}

// Add accumulates o into s.
func (s *ColumnStats) Add(o ColumnStats) {
	s.Processed += o.Processed
	s.Decoded += o.Decoded
	s.Absent += o.Absent
	s.Mismatched += o.Mismatched
}

// Balanced reports whether the counters satisfy the per-column invariant.
func (s ColumnStats) Balanced() bool {
	return s.Decoded+s.Absent+s.Mismatched == s.Processed
}

// Result holds the counters for one decoded batch.
type Result struct {
	Documents int64         `cbor:"1,keyasint"`
	Malformed int64         `cbor:"2,keyasint"`
	Columns   []ColumnStats `cbor:"3,keyasint"`
}

func newResult(columns int) Result {
	return Result{Columns: make([]ColumnStats, columns)}
}

// Merge accumulates another result over the same schema.
func (r *Result) Merge(o Result) {
	r.Documents += o.Documents
	r.Malformed += o.Malformed
	if r.Columns == nil {
		r.Columns = make([]ColumnStats, len(o.Columns))
	}
	for i := range o.Columns {
		r.Columns[i].Add(o.Columns[i])
	}
}

// Check verifies the counter invariants and returns a descriptive error
// for the first violation.
func (r Result) Check() error {
	for i, c := range r.Columns {
		if !c.Balanced() {
			return fmt.Errorf("column %d counters unbalanced: %d decoded + %d absent + %d mismatched != %d processed",
				i, c.Decoded, c.Absent, c.Mismatched, c.Processed)
		}
		if c.Processed != r.Documents {
			return fmt.Errorf("column %d processed %d of %d documents", i, c.Processed, r.Documents)
		}
	}
	return nil
}

// Batch is the output of one decode: a column buffer per schema entry and
// the batch counters. Complete is false when decoding stopped early; rows
// that were not reached keep their prior contents, which for freshly
// allocated columns is zero and invalid.
type Batch struct {
	Schema   *Schema
	Columns  []*colbuf.Column
	Result   Result
	Complete bool
}

// Rows is the allocated row count of every column.
func (b *Batch) Rows() int {
	if len(b.Columns) == 0 {
		return 0
	}
	return b.Columns[0].Rows
}

// Column returns the buffer for the named column.
func (b *Batch) Column(name string) (*colbuf.Column, bool) {
	i, ok := b.Schema.Index(name)
	if !ok {
		return nil, false
	}
	return b.Columns[i], true
}

// Totals accumulates results across the batches of a streaming extraction.
type Totals struct {
	Batches int64
	Result  Result
}
