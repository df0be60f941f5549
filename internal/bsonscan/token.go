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

package bsonscan

import (
	"encoding/binary"
	"math"
)

// Token is one element of a document: its key, wire type and raw value bytes.
// Name and Value alias the scanned document and are only valid while that
// buffer is. Accessors assume the caller has already checked Type.
type Token struct {
	Name  []byte
	Type  Type
	Value []byte
}

// Int32 reads an int32 value.
func (t Token) Int32() int32 {
	return int32(binary.LittleEndian.Uint32(t.Value))
}

// Int64 reads an int64 or datetime value.
func (t Token) Int64() int64 {
	return int64(binary.LittleEndian.Uint64(t.Value))
}

// Uint64 reads the raw 8 bytes of a timestamp value.
func (t Token) Uint64() uint64 {
	return binary.LittleEndian.Uint64(t.Value)
}

// Double reads a double value.
func (t Token) Double() float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(t.Value))
}

// Boolean reads a boolean value.
func (t Token) Boolean() bool {
	return t.Value[0] == 1
}

// StringValue returns the string bytes without the length prefix or terminator.
func (t Token) StringValue() []byte {
	return t.Value[4 : len(t.Value)-1]
}

// BinaryValue returns the binary subtype and payload.
// The legacy 0x02 subtype carries a redundant inner length which is stripped
// when it agrees with the outer one.
func (t Token) BinaryValue() (byte, []byte) {
	subtype := t.Value[4]
	data := t.Value[5:]
	if subtype == BinaryOld && len(data) >= 4 {
		inner := int32(binary.LittleEndian.Uint32(data))
		if inner >= 0 && int(inner) == len(data)-4 {
			data = data[4:]
		}
	}
	return subtype, data
}

// ElementCount counts the elements of an embedded document or array.
func (t Token) ElementCount() (int, error) {
	var s Scanner
	if err := s.Reset(t.Value); err != nil {
		return 0, err
	}
	n := 0
	for {
		if _, ok := s.Next(); !ok {
			break
		}
		n++
	}
	return n, s.Err()
}
