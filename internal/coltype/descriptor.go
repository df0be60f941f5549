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

import (
	"math"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cardinalhq/bsoncolumns/internal/bsonscan"
)

type decodeFunc func(tok bsonscan.Token, width int) (Scalar, error)

// Descriptor binds a column type to the wire tags it accepts and the rule
// that converts a token into a Scalar.
type Descriptor struct {
	Type     Type
	WireTags mapset.Set[bsonscan.Type]
	decode   decodeFunc
}

// Width is the column slot size in bytes.
func (d Descriptor) Width() int {
	return d.Type.Width
}

// Accepts reports whether tokens of wire type t can be decoded.
func (d Descriptor) Accepts(t bsonscan.Type) bool {
	return d.WireTags.Contains(t)
}

// Decode converts a token. ErrTypeMismatch is returned for unaccepted wire
// tags or unrepresentable values. ErrValueTooLarge is returned together with
// a Scalar truncated to the column width.
func (d Descriptor) Decode(tok bsonscan.Token) (Scalar, error) {
	if !d.WireTags.Contains(tok.Type) {
		return Scalar{}, ErrTypeMismatch
	}
	return d.decode(tok, d.Type.Width)
}

type entry struct {
	tags   mapset.Set[bsonscan.Type]
	decode decodeFunc
}

var table [kindCount]entry

func tags(ts ...bsonscan.Type) mapset.Set[bsonscan.Type] {
	return mapset.NewThreadUnsafeSet(ts...)
}

func init() {
	numeric := []bsonscan.Type{bsonscan.TypeInt32, bsonscan.TypeInt64, bsonscan.TypeDouble, bsonscan.TypeBoolean}

	table[KindInt8] = entry{tags(numeric...), signed(math.MinInt8, math.MaxInt8)}
	table[KindInt16] = entry{tags(numeric...), signed(math.MinInt16, math.MaxInt16)}
	table[KindInt32] = entry{tags(numeric...), signed(math.MinInt32, math.MaxInt32)}
	table[KindInt64] = entry{tags(numeric...), signed(math.MinInt64, math.MaxInt64)}
	table[KindUint8] = entry{tags(numeric...), unsigned(math.MaxUint8)}
	table[KindUint16] = entry{tags(numeric...), unsigned(math.MaxUint16)}
	table[KindUint32] = entry{tags(numeric...), unsigned(math.MaxUint32)}
	table[KindUint64] = entry{tags(numeric...), unsigned(math.MaxUint64)}
	table[KindFloat32] = entry{tags(numeric...), decodeFloat32}
	table[KindFloat64] = entry{tags(numeric...), decodeFloat64}
	table[KindBool] = entry{tags(numeric...), decodeBool}

	table[KindDate] = entry{tags(bsonscan.TypeDateTime), func(tok bsonscan.Token, _ int) (Scalar, error) {
		return Int(tok.Int64()), nil
	}}
	table[KindTimestamp] = entry{tags(bsonscan.TypeTimestamp), func(tok bsonscan.Token, _ int) (Scalar, error) {
		return Uint(tok.Uint64()), nil
	}}
	table[KindObjectID] = entry{tags(bsonscan.TypeObjectID), func(tok bsonscan.Token, _ int) (Scalar, error) {
		return Bytes(tok.Value), nil
	}}
	table[KindUUID] = entry{tags(bsonscan.TypeBinary), decodeUUID}
	table[KindString] = entry{tags(bsonscan.TypeString, bsonscan.TypeSymbol), func(tok bsonscan.Token, width int) (Scalar, error) {
		return fit(tok.StringValue(), width)
	}}
	table[KindBinary] = entry{tags(bsonscan.TypeBinary), func(tok bsonscan.Token, width int) (Scalar, error) {
		_, data := tok.BinaryValue()
		return fit(data, width)
	}}
	table[KindBSON] = entry{tags(bsonscan.TypeDocument, bsonscan.TypeArray), func(tok bsonscan.Token, width int) (Scalar, error) {
		return fit(tok.Value, width)
	}}

	all := tags()
	for t := 0; t < 256; t++ {
		if bt := bsonscan.Type(t); bt.Known() {
			all.Add(bt)
		}
	}
	table[KindTypeTag] = entry{all, func(tok bsonscan.Token, _ int) (Scalar, error) {
		return Uint(uint64(tok.Type)), nil
	}}
	table[KindLength] = entry{
		tags(bsonscan.TypeString, bsonscan.TypeSymbol, bsonscan.TypeBinary, bsonscan.TypeDocument, bsonscan.TypeArray),
		decodeLength,
	}
}

// Lookup returns the descriptor for a column type. The boolean is false for
// types that fail Validate.
func Lookup(t Type) (Descriptor, bool) {
	if t.Validate() != nil {
		return Descriptor{}, false
	}
	e := table[t.Kind]
	return Descriptor{Type: t, WireTags: e.tags, decode: e.decode}, true
}

// fit returns b as a byte scalar, truncated with ErrValueTooLarge when it
// does not fit in width bytes.
func fit(b []byte, width int) (Scalar, error) {
	if len(b) > width {
		return Bytes(b[:width]), ErrValueTooLarge
	}
	return Bytes(b), nil
}

// integral extracts a whole number from a numeric token. Doubles are
// truncated toward zero; ok is false for NaN and infinities.
func integral(tok bsonscan.Token) (v float64, i int64, isFloat bool, ok bool) {
	switch tok.Type {
	case bsonscan.TypeInt32:
		return 0, int64(tok.Int32()), false, true
	case bsonscan.TypeInt64:
		return 0, tok.Int64(), false, true
	case bsonscan.TypeBoolean:
		if tok.Boolean() {
			return 0, 1, false, true
		}
		return 0, 0, false, true
	case bsonscan.TypeDouble:
		f := tok.Double()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, 0, true, false
		}
		return math.Trunc(f), 0, true, true
	}
	return 0, 0, false, false
}

func signed(lo, hi int64) decodeFunc {
	return func(tok bsonscan.Token, _ int) (Scalar, error) {
		f, i, isFloat, ok := integral(tok)
		if !ok {
			return Scalar{}, ErrTypeMismatch
		}
		if isFloat {
			// float64(hi) rounds up to 2^63 for int64, so the upper bound is exclusive there.
			if f < float64(lo) || f > float64(hi) || (hi == math.MaxInt64 && f >= math.Exp2(63)) {
				return Scalar{}, ErrTypeMismatch
			}
			return Int(int64(f)), nil
		}
		if i < lo || i > hi {
			return Scalar{}, ErrTypeMismatch
		}
		return Int(i), nil
	}
}

func unsigned(hi uint64) decodeFunc {
	return func(tok bsonscan.Token, _ int) (Scalar, error) {
		f, i, isFloat, ok := integral(tok)
		if !ok {
			return Scalar{}, ErrTypeMismatch
		}
		if isFloat {
			if f < 0 || f > float64(hi) || (hi == math.MaxUint64 && f >= math.Exp2(64)) {
				return Scalar{}, ErrTypeMismatch
			}
			return Uint(uint64(f)), nil
		}
		if i < 0 || uint64(i) > hi {
			return Scalar{}, ErrTypeMismatch
		}
		return Uint(uint64(i)), nil
	}
}

func number(tok bsonscan.Token) float64 {
	switch tok.Type {
	case bsonscan.TypeInt32:
		return float64(tok.Int32())
	case bsonscan.TypeInt64:
		return float64(tok.Int64())
	case bsonscan.TypeBoolean:
		if tok.Boolean() {
			return 1
		}
		return 0
	default:
		return tok.Double()
	}
}

func decodeFloat64(tok bsonscan.Token, _ int) (Scalar, error) {
	return Float64(number(tok)), nil
}

// decodeFloat32 rejects finite values that overflow single precision.
func decodeFloat32(tok bsonscan.Token, _ int) (Scalar, error) {
	f := number(tok)
	f32 := float32(f)
	if math.IsInf(float64(f32), 0) && !math.IsInf(f, 0) {
		return Scalar{}, ErrTypeMismatch
	}
	return Float32(f32), nil
}

func decodeBool(tok bsonscan.Token, _ int) (Scalar, error) {
	if tok.Type == bsonscan.TypeBoolean {
		return Bool(tok.Boolean()), nil
	}
	return Bool(number(tok) != 0), nil
}

func decodeUUID(tok bsonscan.Token, _ int) (Scalar, error) {
	subtype, data := tok.BinaryValue()
	if (subtype != bsonscan.BinaryUUID && subtype != bsonscan.BinaryUUIDOld) || len(data) != 16 {
		return Scalar{}, ErrTypeMismatch
	}
	return Bytes(data), nil
}

func decodeLength(tok bsonscan.Token, _ int) (Scalar, error) {
	switch tok.Type {
	case bsonscan.TypeString, bsonscan.TypeSymbol:
		return Uint(uint64(len(tok.StringValue()))), nil
	case bsonscan.TypeBinary:
		_, data := tok.BinaryValue()
		return Uint(uint64(len(data))), nil
	default:
		n, err := tok.ElementCount()
		if err != nil {
			return Scalar{}, err
		}
		return Uint(uint64(n)), nil
	}
}
