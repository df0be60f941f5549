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

package testhelpers

import (
	"bytes"
	"encoding/binary"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

// MarshalDoc encodes d with the MongoDB driver and fails the test on error.
func MarshalDoc(t testing.TB, d bson.D) []byte {
	t.Helper()
	b, err := bson.Marshal(d)
	if err != nil {
		t.Fatalf("Failed to marshal fixture document: %v", err)
	}
	return b
}

// MarshalDocs encodes each document in order.
func MarshalDocs(t testing.TB, docs ...bson.D) [][]byte {
	t.Helper()
	out := make([][]byte, len(docs))
	for i, d := range docs {
		out[i] = MarshalDoc(t, d)
	}
	return out
}

// ConcatDocs joins encoded documents back to back, the layout of a mongodump .bson file.
func ConcatDocs(docs [][]byte) []byte {
	var buf bytes.Buffer
	for _, d := range docs {
		buf.Write(d)
	}
	return buf.Bytes()
}

// WithDeclaredLength returns a copy of doc whose length prefix claims n bytes.
func WithDeclaredLength(doc []byte, n int32) []byte {
	out := bytes.Clone(doc)
	binary.LittleEndian.PutUint32(out, uint32(n))
	return out
}

// RawElement builds a single-element document from a hand-written element type
// and value, bypassing the driver so tests can produce invalid encodings.
func RawElement(elemType byte, name string, value []byte) []byte {
	body := make([]byte, 0, 1+len(name)+1+len(value))
	body = append(body, elemType)
	body = append(body, name...)
	body = append(body, 0x00)
	body = append(body, value...)

	doc := make([]byte, 4, 4+len(body)+1)
	doc = append(doc, body...)
	doc = append(doc, 0x00)
	binary.LittleEndian.PutUint32(doc, uint32(len(doc)))
	return doc
}
