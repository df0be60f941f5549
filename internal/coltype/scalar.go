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

package coltype

import "math"

// Scalar is one decoded value ready to be written into a column slot.
// Numeric values are held as raw bits and written little-endian at the
// column width; byte values are copied and zero-padded.
// A byte Scalar may alias the source document.
type Scalar struct {
	bits  uint64
	raw   []byte
	isRaw bool
}

// Uint returns a numeric scalar from unsigned bits.
func Uint(v uint64) Scalar { return Scalar{bits: v} }

// Int returns a numeric scalar holding the two's complement of v.
func Int(v int64) Scalar { return Scalar{bits: uint64(v)} }

// Float64 returns a scalar holding the IEEE-754 bits of f.
func Float64(f float64) Scalar { return Scalar{bits: math.Float64bits(f)} }

// Float32 returns a scalar holding the IEEE-754 single precision bits of f.
func Float32(f float32) Scalar { return Scalar{bits: uint64(math.Float32bits(f))} }

// Bool returns 1 or 0.
func Bool(b bool) Scalar {
	if b {
		return Scalar{bits: 1}
	}
	return Scalar{}
}

// Bytes returns a byte scalar.
func Bytes(b []byte) Scalar { return Scalar{raw: b, isRaw: true} }

// Bits returns the numeric payload.
func (s Scalar) Bits() uint64 { return s.bits }

// Raw returns the byte payload, or nil for numeric scalars.
func (s Scalar) Raw() []byte { return s.raw }

// IsBytes reports whether the scalar carries bytes rather than a number.
func (s Scalar) IsBytes() bool { return s.isRaw }
