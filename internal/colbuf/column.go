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

// Package colbuf holds fixed-stride column buffers and the writer that
// fills them. Row i of a column occupies Data[i*Width:(i+1)*Width] and its
// validity flag is Validity[i]. Validity uses one byte per row so writers
// working on disjoint row ranges never touch the same byte.
package colbuf

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexOutOfRange means a column or row index was outside the allocated buffers.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrWidthMismatch means caller-supplied buffers do not match the declared geometry.
	ErrWidthMismatch = errors.New("buffer size does not match width and rows")
)

// Column is one typed output array.
type Column struct {
	Width    int
	Rows     int
	Data     []byte
	Validity []byte
}

// NewColumn allocates a zeroed column.
func NewColumn(width, rows int) *Column {
	return &Column{
		Width:    width,
		Rows:     rows,
		Data:     make([]byte, width*rows),
		Validity: make([]byte, rows),
	}
}

// NewColumnFrom wraps caller-owned buffers. data must hold exactly
// width*rows bytes and valid exactly rows bytes.
func NewColumnFrom(data, valid []byte, width int) (*Column, error) {
	if width <= 0 {
		return nil, fmt.Errorf("%w: width %d", ErrWidthMismatch, width)
	}
	rows := len(valid)
	if len(data) != width*rows {
		return nil, fmt.Errorf("%w: %d data bytes for %d rows of width %d", ErrWidthMismatch, len(data), rows, width)
	}
	return &Column{Width: width, Rows: rows, Data: data, Validity: valid}, nil
}

// Valid reports whether row holds a decoded value.
func (c *Column) Valid(row int) bool {
	return c.Validity[row] != 0
}

// Value returns the slot for row. The slice aliases the column buffer.
func (c *Column) Value(row int) []byte {
	off := row * c.Width
	return c.Data[off : off+c.Width : off+c.Width]
}

// NullCount is the number of rows without a valid value.
func (c *Column) NullCount() int {
	n := 0
	for _, v := range c.Validity {
		if v == 0 {
			n++
		}
	}
	return n
}
