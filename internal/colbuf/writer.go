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

package colbuf

import (
	"encoding/binary"
	"fmt"

	"github.com/cardinalhq/bsoncolumns/internal/coltype"
)

// Writer is the only component that mutates column memory. Concurrent use
// is safe as long as each goroutine writes a disjoint row range.
type Writer struct {
	cols []*Column
	rows int
}

// NewWriter allocates one column per width, each holding rows slots.
func NewWriter(widths []int, rows int) *Writer {
	w := &Writer{cols: make([]*Column, len(widths)), rows: rows}
	for i, width := range widths {
		w.cols[i] = NewColumn(width, rows)
	}
	return w
}

// NewWriterWithColumns writes into existing columns, which must all have
// the same row count.
func NewWriterWithColumns(cols []*Column) (*Writer, error) {
	rows := 0
	for i, c := range cols {
		if i == 0 {
			rows = c.Rows
		}
		if c.Rows != rows || len(c.Validity) != c.Rows || len(c.Data) != c.Width*c.Rows {
			return nil, fmt.Errorf("%w: column %d", ErrWidthMismatch, i)
		}
	}
	return &Writer{cols: cols, rows: rows}, nil
}

// Rows is the fixed row count of every column.
func (w *Writer) Rows() int {
	return w.rows
}

// Columns returns the buffers. Ownership passes to the caller once
// writing is done.
func (w *Writer) Columns() []*Column {
	return w.cols
}

func (w *Writer) slot(col, row int) (*Column, []byte, error) {
	if col < 0 || col >= len(w.cols) {
		return nil, nil, fmt.Errorf("%w: column %d of %d", ErrIndexOutOfRange, col, len(w.cols))
	}
	if row < 0 || row >= w.rows {
		return nil, nil, fmt.Errorf("%w: row %d of %d", ErrIndexOutOfRange, row, w.rows)
	}
	c := w.cols[col]
	return c, c.Value(row), nil
}

// Write stores v in the slot and marks it valid.
func (w *Writer) Write(col, row int, v coltype.Scalar) error {
	c, dst, err := w.slot(col, row)
	if err != nil {
		return err
	}
	put(dst, v)
	c.Validity[row] = 1
	return nil
}

// WritePartial stores the bytes of a truncated value but leaves the slot invalid.
func (w *Writer) WritePartial(col, row int, v coltype.Scalar) error {
	c, dst, err := w.slot(col, row)
	if err != nil {
		return err
	}
	put(dst, v)
	c.Validity[row] = 0
	return nil
}

// MarkInvalid zero-fills the slot and clears its validity flag.
func (w *Writer) MarkInvalid(col, row int) error {
	c, dst, err := w.slot(col, row)
	if err != nil {
		return err
	}
	clear(dst)
	c.Validity[row] = 0
	return nil
}

// MarkRowInvalid invalidates row in every column.
func (w *Writer) MarkRowInvalid(row int) error {
	for col := range w.cols {
		if err := w.MarkInvalid(col, row); err != nil {
			return err
		}
	}
	return nil
}

func put(dst []byte, v coltype.Scalar) {
	if v.IsBytes() {
		n := copy(dst, v.Raw())
		clear(dst[n:])
		return
	}
	bits := v.Bits()
	switch len(dst) {
	case 1:
		dst[0] = byte(bits)
	case 2:
		binary.LittleEndian.PutUint16(dst, uint16(bits))
	case 4:
		binary.LittleEndian.PutUint32(dst, uint32(bits))
	case 8:
		binary.LittleEndian.PutUint64(dst, bits)
	default:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], bits)
		n := copy(dst, tmp[:])
		clear(dst[n:])
	}
}
