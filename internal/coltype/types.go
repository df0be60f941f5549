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

// Package coltype defines the closed set of logical column types a BSON
// field can be decoded into, and the table describing how each one is read
// off the wire.
package coltype

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cardinalhq/bsoncolumns/internal/bsonscan"
)

var (
	// ErrTypeMismatch means the wire value cannot be represented in the column type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrValueTooLarge means a variable-length value was truncated to the column width.
	ErrValueTooLarge = errors.New("value too large")

	// ErrUnknownType is returned when parsing an unrecognized type declaration.
	ErrUnknownType = errors.New("unknown column type")
)

// Kind enumerates the logical column types.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindBool
	KindDate
	KindTimestamp
	KindObjectID
	KindUUID
	KindString
	KindBinary
	KindBSON
	KindTypeTag
	KindLength

	kindCount
)

var kindNames = [kindCount]string{
	KindInvalid:   "invalid",
	KindInt8:      "int8",
	KindInt16:     "int16",
	KindInt32:     "int32",
	KindInt64:     "int64",
	KindUint8:     "uint8",
	KindUint16:    "uint16",
	KindUint32:    "uint32",
	KindUint64:    "uint64",
	KindFloat32:   "float32",
	KindFloat64:   "float64",
	KindBool:      "bool",
	KindDate:      "date",
	KindTimestamp: "timestamp",
	KindObjectID:  "objectid",
	KindUUID:      "uuid",
	KindString:    "string",
	KindBinary:    "binary",
	KindBSON:      "bson",
	KindTypeTag:   "type",
	KindLength:    "length",
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Kinds returns every valid kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount-1)
	for k := KindInt8; k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

// Sized reports whether the kind takes a caller-chosen byte width.
func (k Kind) Sized() bool {
	return k == KindString || k == KindBinary || k == KindBSON
}

// Bytes reports whether values of this kind are stored as raw bytes rather
// than a little-endian number.
func (k Kind) Bytes() bool {
	switch k {
	case KindObjectID, KindUUID, KindString, KindBinary, KindBSON:
		return true
	default:
		return false
	}
}

// MaxWidth caps caller-chosen widths for sized kinds.
const MaxWidth = bsonscan.MaxDocumentSize

// Type is a logical column type together with its storage width.
type Type struct {
	Kind  Kind
	Width int
}

// Of returns the Type for a kind with a fixed natural width.
// It panics for sized kinds, which need an explicit width.
func Of(k Kind) Type {
	w := fixedWidth(k)
	if w == 0 {
		panic("coltype: " + k.String() + " requires an explicit width")
	}
	return Type{Kind: k, Width: w}
}

// Sized returns a Type for string, binary or bson columns of n bytes.
func Sized(k Kind, n int) Type {
	return Type{Kind: k, Width: n}
}

func (t Type) String() string {
	if t.Kind.Sized() {
		return t.Kind.String() + ":" + strconv.Itoa(t.Width)
	}
	return t.Kind.String()
}

// Validate checks the width is consistent with the kind.
func (t Type) Validate() error {
	if t.Kind == KindInvalid || t.Kind >= kindCount {
		return fmt.Errorf("%w: %s", ErrUnknownType, t.Kind)
	}
	if t.Kind.Sized() {
		if t.Width <= 0 || t.Width > MaxWidth {
			return fmt.Errorf("%w: %s width must be between 1 and %d", ErrUnknownType, t.Kind, MaxWidth)
		}
		return nil
	}
	if t.Width != fixedWidth(t.Kind) {
		return fmt.Errorf("%w: %s has fixed width %d, got %d", ErrUnknownType, t.Kind, fixedWidth(t.Kind), t.Width)
	}
	return nil
}

// ParseType parses a type declaration such as "int32", "float64" or "string:16".
// Aliases accepted for readability: "double" (float64), "id" (objectid),
// "datetime" (date), "boolean" (bool).
func ParseType(decl string) (Type, error) {
	decl = strings.TrimSpace(strings.ToLower(decl))
	name, widthStr, hasWidth := strings.Cut(decl, ":")

	k, ok := kindByName(name)
	if !ok {
		return Type{}, fmt.Errorf("%w: %q", ErrUnknownType, decl)
	}

	t := Type{Kind: k}
	switch {
	case k.Sized() && !hasWidth:
		return Type{}, fmt.Errorf("%w: %q requires a width, e.g. %s:16", ErrUnknownType, decl, name)
	case k.Sized():
		n, err := strconv.Atoi(widthStr)
		if err != nil {
			return Type{}, fmt.Errorf("%w: %q has a non-numeric width", ErrUnknownType, decl)
		}
		t.Width = n
	case hasWidth:
		return Type{}, fmt.Errorf("%w: %q does not take a width", ErrUnknownType, decl)
	default:
		t.Width = fixedWidth(k)
	}

	if err := t.Validate(); err != nil {
		return Type{}, err
	}
	return t, nil
}

func kindByName(name string) (Kind, bool) {
	switch name {
	case "double":
		return KindFloat64, true
	case "id":
		return KindObjectID, true
	case "datetime":
		return KindDate, true
	case "boolean":
		return KindBool, true
	}
	for k := KindInt8; k < kindCount; k++ {
		if kindNames[k] == name {
			return k, true
		}
	}
	return KindInvalid, false
}

func fixedWidth(k Kind) int {
	switch k {
	case KindInt8, KindUint8, KindBool, KindTypeTag:
		return 1
	case KindInt16, KindUint16:
		return 2
	case KindInt32, KindUint32, KindFloat32, KindLength:
		return 4
	case KindInt64, KindUint64, KindFloat64, KindDate, KindTimestamp:
		return 8
	case KindObjectID:
		return 12
	case KindUUID:
		return 16
	default:
		return 0
	}
}
