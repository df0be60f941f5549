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
	"bytes"
	"encoding/binary"
)

const (
	// MinDocumentSize is the encoded size of an empty document: length prefix plus terminator.
	MinDocumentSize = 5

	// MaxDocumentSize is the largest document a server will hand out.
	MaxDocumentSize = 16 * 1024 * 1024
)

// Scanner walks the top level of a single BSON document.
//
// A Scanner holds no state beyond its position in the current document, so
// rescanning the same bytes always yields the same tokens in the same order.
// The zero value is an exhausted scanner; call Reset before use.
type Scanner struct {
	doc []byte
	pos int
	end int // index of the document terminator
	err error
}

// New validates the document header and returns a scanner positioned at the first element.
func New(doc []byte) (*Scanner, error) {
	s := &Scanner{}
	if err := s.Reset(doc); err != nil {
		return nil, err
	}
	return s, nil
}

// Reset points the scanner at a new document. The declared length prefix must
// match the span length exactly and the last byte must be the terminator.
func (s *Scanner) Reset(doc []byte) error {
	s.doc = nil
	s.pos = 0
	s.end = 0
	s.err = nil

	if err := checkHeader(doc); err != nil {
		s.err = err
		return err
	}

	s.doc = doc
	s.pos = 4
	s.end = len(doc) - 1
	return nil
}

func checkHeader(doc []byte) error {
	if len(doc) < MinDocumentSize {
		return malformed(0, "document shorter than minimum size")
	}
	declared := int32(binary.LittleEndian.Uint32(doc))
	if declared < MinDocumentSize {
		return malformed(0, "declared length below minimum size")
	}
	if int(declared) != len(doc) {
		return malformed(0, "declared length does not match span length")
	}
	if doc[len(doc)-1] != 0x00 {
		return malformed(len(doc)-1, "missing document terminator")
	}
	return nil
}

// Err returns the first validation error hit while scanning, if any.
func (s *Scanner) Err() error {
	return s.err
}

// Next returns the next element. It returns false at the end of the document
// or after a validation failure; check Err to tell the two apart.
func (s *Scanner) Next() (Token, bool) {
	if s.err != nil || s.doc == nil || s.pos >= s.end {
		return Token{}, false
	}

	start := s.pos
	t := Type(s.doc[s.pos])
	s.pos++

	nameLen := bytes.IndexByte(s.doc[s.pos:s.end], 0x00)
	if nameLen < 0 {
		return s.fail(start, "unterminated field name")
	}
	name := s.doc[s.pos : s.pos+nameLen]
	s.pos += nameLen + 1

	size, err := valueSize(t, s.doc[:s.end], s.pos)
	if err != nil {
		s.err = err
		return Token{}, false
	}

	value := s.doc[s.pos : s.pos+size]
	s.pos += size
	return Token{Name: name, Type: t, Value: value}, true
}

func (s *Scanner) fail(offset int, reason string) (Token, bool) {
	s.err = malformed(offset, reason)
	return Token{}, false
}

// valueSize returns the encoded size of a value of type t starting at off.
// body excludes the enclosing document terminator, so every value must end
// at or before len(body).
func valueSize(t Type, body []byte, off int) (int, error) {
	remaining := len(body) - off

	fixed := func(n int) (int, error) {
		if n > remaining {
			return 0, malformed(off, "value of type "+t.String()+" runs past document end")
		}
		return n, nil
	}

	switch t {
	case TypeDouble, TypeDateTime, TypeInt64, TypeTimestamp:
		return fixed(8)
	case TypeInt32:
		return fixed(4)
	case TypeObjectID:
		return fixed(objectIDLength)
	case TypeDecimal128:
		return fixed(16)
	case TypeNull, TypeUndefined, TypeMinKey, TypeMaxKey:
		return 0, nil
	case TypeBoolean:
		n, err := fixed(1)
		if err != nil {
			return 0, err
		}
		if body[off] > 1 {
			return 0, malformed(off, "boolean value is neither 0 nor 1")
		}
		return n, nil
	case TypeString, TypeJavaScript, TypeSymbol:
		return stringSize(body, off)
	case TypeDocument, TypeArray:
		return documentSize(body, off)
	case TypeBinary:
		if remaining < 5 {
			return 0, malformed(off, "binary header runs past document end")
		}
		n := int32(binary.LittleEndian.Uint32(body[off:]))
		if n < 0 {
			return 0, malformed(off, "negative binary length")
		}
		if int64(n)+5 > int64(remaining) {
			return 0, malformed(off, "binary value runs past document end")
		}
		return int(n) + 5, nil
	case TypeRegex:
		pattern := bytes.IndexByte(body[off:], 0x00)
		if pattern < 0 {
			return 0, malformed(off, "unterminated regex pattern")
		}
		opts := bytes.IndexByte(body[off+pattern+1:], 0x00)
		if opts < 0 {
			return 0, malformed(off, "unterminated regex options")
		}
		return pattern + 1 + opts + 1, nil
	case TypeDBPointer:
		n, err := stringSize(body, off)
		if err != nil {
			return 0, err
		}
		if n+objectIDLength > remaining {
			return 0, malformed(off, "dbpointer runs past document end")
		}
		return n + objectIDLength, nil
	case TypeCodeWithScope:
		if remaining < 4 {
			return 0, malformed(off, "code with scope header runs past document end")
		}
		total := int32(binary.LittleEndian.Uint32(body[off:]))
		// int32 total + string (4 + at least 1) + empty scope document
		if total < 4+5+MinDocumentSize {
			return 0, malformed(off, "code with scope length below minimum")
		}
		if int64(total) > int64(remaining) {
			return 0, malformed(off, "code with scope runs past document end")
		}
		inner := body[:off+int(total)]
		code, err := stringSize(inner, off+4)
		if err != nil {
			return 0, err
		}
		scope, err := documentSize(inner, off+4+code)
		if err != nil {
			return 0, err
		}
		if 4+code+scope != int(total) {
			return 0, malformed(off, "code with scope length does not match contents")
		}
		return int(total), nil
	default:
		return 0, malformed(off, "unknown element type "+t.String())
	}
}

// stringSize validates a length-prefixed, NUL-terminated string.
func stringSize(body []byte, off int) (int, error) {
	remaining := len(body) - off
	if remaining < 4 {
		return 0, malformed(off, "string header runs past document end")
	}
	n := int32(binary.LittleEndian.Uint32(body[off:]))
	if n < 1 {
		return 0, malformed(off, "string length below minimum")
	}
	if int64(n)+4 > int64(remaining) {
		return 0, malformed(off, "string value runs past document end")
	}
	if body[off+4+int(n)-1] != 0x00 {
		return 0, malformed(off, "string value is not NUL terminated")
	}
	return int(n) + 4, nil
}

// documentSize validates the header of an embedded document or array.
// The embedded elements are checked lazily when the span is scanned.
func documentSize(body []byte, off int) (int, error) {
	remaining := len(body) - off
	if remaining < 4 {
		return 0, malformed(off, "embedded document header runs past document end")
	}
	n := int32(binary.LittleEndian.Uint32(body[off:]))
	if n < MinDocumentSize {
		return 0, malformed(off, "embedded document length below minimum")
	}
	if int64(n) > int64(remaining) {
		return 0, malformed(off, "embedded document runs past document end")
	}
	if body[off+int(n)-1] != 0x00 {
		return 0, malformed(off, "embedded document missing terminator")
	}
	return int(n), nil
}

// ScanAll appends every top-level token of doc to dst and returns the extended slice.
// Passing a reused dst[:0] keeps the per-document scan allocation free.
func ScanAll(doc []byte, dst []Token) ([]Token, error) {
	var s Scanner
	if err := s.Reset(doc); err != nil {
		return dst, err
	}
	for {
		tok, ok := s.Next()
		if !ok {
			break
		}
		dst = append(dst, tok)
	}
	return dst, s.Err()
}

// maxNestingDepth bounds Validate recursion on hostile input.
const maxNestingDepth = 100

// Validate walks doc and every nested document, array and scope recursively.
func Validate(doc []byte) error {
	return validate(doc, 0)
}

func validate(doc []byte, depth int) error {
	if depth > maxNestingDepth {
		return malformed(0, "nesting depth exceeded")
	}
	var s Scanner
	if err := s.Reset(doc); err != nil {
		return err
	}
	for {
		tok, ok := s.Next()
		if !ok {
			break
		}
		switch tok.Type {
		case TypeDocument, TypeArray:
			if err := validate(tok.Value, depth+1); err != nil {
				return err
			}
		case TypeCodeWithScope:
			code := int(binary.LittleEndian.Uint32(tok.Value[4:]))
			if err := validate(tok.Value[8+code:], depth+1); err != nil {
				return err
			}
		}
	}
	return s.Err()
}
