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
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/cardinalhq/bsoncolumns/internal/bsonscan"
)

// Value converts one column slot back into a Go value:
// int8..int64, uint8..uint64, float32, float64, bool, time.Time for dates,
// uint64 for timestamps, uuid.UUID for uuids, string for strings and
// []byte for the remaining byte kinds.
// Trailing zero padding is trimmed from strings.
func Value(t Type, slot []byte) any {
	le := binary.LittleEndian
	switch t.Kind {
	case KindInt8:
		return int8(slot[0])
	case KindInt16:
		return int16(le.Uint16(slot))
	case KindInt32:
		return int32(le.Uint32(slot))
	case KindInt64:
		return int64(le.Uint64(slot))
	case KindUint8, KindTypeTag:
		return slot[0]
	case KindUint16:
		return le.Uint16(slot)
	case KindUint32, KindLength:
		return le.Uint32(slot)
	case KindUint64, KindTimestamp:
		return le.Uint64(slot)
	case KindFloat32:
		return math.Float32frombits(le.Uint32(slot))
	case KindFloat64:
		return math.Float64frombits(le.Uint64(slot))
	case KindBool:
		return slot[0] != 0
	case KindDate:
		return time.UnixMilli(int64(le.Uint64(slot))).UTC()
	case KindUUID:
		return uuid.UUID(slot[:16])
	case KindString:
		return string(Payload(t, slot))
	default:
		return slot
	}
}

// Format renders one column slot for display.
func Format(t Type, slot []byte) string {
	switch t.Kind {
	case KindObjectID, KindBinary, KindBSON:
		return hex.EncodeToString(Payload(t, slot))
	case KindTypeTag:
		return bsonscan.Type(slot[0]).String()
	case KindDate:
		return Value(t, slot).(time.Time).Format(time.RFC3339Nano)
	case KindUUID:
		return Value(t, slot).(uuid.UUID).String()
	case KindFloat32:
		return strconv.FormatFloat(float64(Value(t, slot).(float32)), 'g', -1, 32)
	case KindFloat64:
		return strconv.FormatFloat(Value(t, slot).(float64), 'g', -1, 64)
	case KindString:
		return Value(t, slot).(string)
	case KindBool:
		return strconv.FormatBool(slot[0] != 0)
	}

	switch v := Value(t, slot).(type) {
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	}
	return hex.EncodeToString(slot)
}

// Payload drops the zero padding a slot carries when the value is
// shorter than the column: trailing NULs of strings, and whatever follows
// an embedded document's own length prefix. Other kinds are returned as is.
// Trailing NULs that belong to a string value are indistinguishable from
// padding and are dropped too; a length column gives the exact size.
func Payload(t Type, slot []byte) []byte {
	switch t.Kind {
	case KindString:
		return bytes.TrimRight(slot, "\x00")
	case KindBSON:
		if len(slot) >= 4 {
			if n := int(int32(binary.LittleEndian.Uint32(slot))); n >= bsonscan.MinDocumentSize && n <= len(slot) {
				return slot[:n]
			}
		}
	}
	return slot
}
