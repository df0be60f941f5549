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

import "fmt"

// Type is the one-byte element tag that precedes every field in a BSON document.
type Type byte

const (
	TypeDouble        Type = 0x01
	TypeString        Type = 0x02
	TypeDocument      Type = 0x03
	TypeArray         Type = 0x04
	TypeBinary        Type = 0x05
	TypeUndefined     Type = 0x06
	TypeObjectID      Type = 0x07
	TypeBoolean       Type = 0x08
	TypeDateTime      Type = 0x09
	TypeNull          Type = 0x0A
	TypeRegex         Type = 0x0B
	TypeDBPointer     Type = 0x0C
	TypeJavaScript    Type = 0x0D
	TypeSymbol        Type = 0x0E
	TypeCodeWithScope Type = 0x0F
	TypeInt32         Type = 0x10
	TypeTimestamp     Type = 0x11
	TypeInt64         Type = 0x12
	TypeDecimal128    Type = 0x13
	TypeMaxKey        Type = 0x7F
	TypeMinKey        Type = 0xFF
)

// Binary subtypes the decoder cares about.
const (
	BinaryGeneric  byte = 0x00
	BinaryOld      byte = 0x02
	BinaryUUIDOld  byte = 0x03
	BinaryUUID     byte = 0x04
	BinaryMD5      byte = 0x05
	BinaryUserDef  byte = 0x80
	objectIDLength      = 12
)

func (t Type) String() string {
	switch t {
	case TypeDouble:
		return "double"
	case TypeString:
		return "string"
	case TypeDocument:
		return "document"
	case TypeArray:
		return "array"
	case TypeBinary:
		return "binary"
	case TypeUndefined:
		return "undefined"
	case TypeObjectID:
		return "objectid"
	case TypeBoolean:
		return "bool"
	case TypeDateTime:
		return "datetime"
	case TypeNull:
		return "null"
	case TypeRegex:
		return "regex"
	case TypeDBPointer:
		return "dbpointer"
	case TypeJavaScript:
		return "javascript"
	case TypeSymbol:
		return "symbol"
	case TypeCodeWithScope:
		return "javascriptwithscope"
	case TypeInt32:
		return "int32"
	case TypeTimestamp:
		return "timestamp"
	case TypeInt64:
		return "int64"
	case TypeDecimal128:
		return "decimal128"
	case TypeMaxKey:
		return "maxkey"
	case TypeMinKey:
		return "minkey"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

// Known reports whether t is a tag defined by the BSON specification.
func (t Type) Known() bool {
	switch {
	case t >= TypeDouble && t <= TypeDecimal128:
		return true
	case t == TypeMaxKey, t == TypeMinKey:
		return true
	default:
		return false
	}
}

// Container reports whether values of this type are themselves BSON documents.
func (t Type) Container() bool {
	return t == TypeDocument || t == TypeArray
}
