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

package fieldpath

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/cardinalhq/bsoncolumns/internal/bsonscan"
	"github.com/cardinalhq/bsoncolumns/testhelpers"
)

func TestCompileInvalid(t *testing.T) {
	for _, path := range []string{
		"",
		".",
		"a.",
		".a",
		"a..b",
		"*",
		"*.a",
		"a.*.b.*",
	} {
		t.Run(path, func(t *testing.T) {
			m, err := Compile(path)
			assert.Nil(t, m)
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}

func TestCompileValid(t *testing.T) {
	tests := []struct {
		path       string
		depth      int
		projection string
	}{
		{"x", 1, "x"},
		{"a.b.c", 3, "a.b.c"},
		{"arr.*", 2, "arr"},
		{"arr.*.value", 3, "arr"},
		{"arr.2", 2, "arr"},
		{"arr.2.value", 3, "arr"},
		{"a.b.10.c", 4, "a.b"},
		{"7.x", 2, "7.x"},
		{"a.b2", 2, "a.b2"},
		{"weird key$", 1, "weird key$"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			m, err := Compile(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.path, m.String())
			assert.Equal(t, tt.depth, m.Depth())
			assert.Equal(t, tt.projection, m.Projection())
		})
	}
}

func TestMustCompilePanics(t *testing.T) {
	assert.Panics(t, func() { MustCompile("a..b") })
	assert.NotPanics(t, func() { MustCompile("a.b") })
}

func scan(t *testing.T, doc []byte) []bsonscan.Token {
	t.Helper()
	toks, err := bsonscan.ScanAll(doc, nil)
	require.NoError(t, err)
	return toks
}

func TestMatch(t *testing.T) {
	doc := testhelpers.MarshalDoc(t, bson.D{
		{"x", int32(1)},
		{"name", "first"},
		{"name", "second"},
		{"sub", bson.D{
			{"y", 2.5},
			{"deep", bson.D{{"z", "leaf"}}},
		}},
		{"arr", bson.A{int32(10), int32(20), int32(30)}},
		{"objs", bson.A{
			bson.D{{"v", int32(100)}},
			bson.D{{"v", int32(200)}, {"only_second", true}},
		}},
		{"empty", bson.A{}},
		{"emptydoc", bson.D{}},
		{"scalar", int64(5)},
	})
	toks := scan(t, doc)

	tests := []struct {
		path    string
		found   bool
		typ     bsonscan.Type
		checkFn func(t *testing.T, tok bsonscan.Token)
	}{
		{"x", true, bsonscan.TypeInt32, func(t *testing.T, tok bsonscan.Token) { assert.Equal(t, int32(1), tok.Int32()) }},
		{"name", true, bsonscan.TypeString, func(t *testing.T, tok bsonscan.Token) {
			assert.Equal(t, "first", string(tok.StringValue()), "first occurrence wins")
		}},
		{"sub.y", true, bsonscan.TypeDouble, func(t *testing.T, tok bsonscan.Token) { assert.Equal(t, 2.5, tok.Double()) }},
		{"sub.deep.z", true, bsonscan.TypeString, func(t *testing.T, tok bsonscan.Token) {
			assert.Equal(t, "leaf", string(tok.StringValue()))
		}},
		{"sub.deep", true, bsonscan.TypeDocument, nil},
		{"arr.*", true, bsonscan.TypeInt32, func(t *testing.T, tok bsonscan.Token) { assert.Equal(t, int32(10), tok.Int32()) }},
		{"arr.2", true, bsonscan.TypeInt32, func(t *testing.T, tok bsonscan.Token) { assert.Equal(t, int32(30), tok.Int32()) }},
		{"arr.3", false, 0, nil},
		{"objs.*.v", true, bsonscan.TypeInt32, func(t *testing.T, tok bsonscan.Token) { assert.Equal(t, int32(100), tok.Int32()) }},
		{"objs.1.v", true, bsonscan.TypeInt32, func(t *testing.T, tok bsonscan.Token) { assert.Equal(t, int32(200), tok.Int32()) }},
		// only element 0 is consulted through the wildcard
		{"objs.*.only_second", false, 0, nil},
		{"empty.*", false, 0, nil},
		{"emptydoc.a", false, 0, nil},
		// wildcard over a document is not an array element
		{"sub.*", false, 0, nil},
		// descending through a scalar
		{"scalar.a", false, 0, nil},
		{"x.y.z", false, 0, nil},
		{"missing", false, 0, nil},
		{"sub.missing", false, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			m := MustCompile(tt.path)
			tok, err := m.Match(toks)
			if !tt.found {
				assert.ErrorIs(t, err, ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.typ, tok.Type)
			if tt.checkFn != nil {
				tt.checkFn(t, tok)
			}
		})
	}
}

func TestMatchIsReadOnlyAndDeterministic(t *testing.T) {
	doc := testhelpers.MarshalDoc(t, bson.D{{"a", bson.D{{"b", "c"}}}})
	before := append([]byte(nil), doc...)
	toks := scan(t, doc)

	m := MustCompile("a.b")
	first, err := m.Match(toks)
	require.NoError(t, err)
	second, err := m.Match(toks)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, before, doc)
}

func TestMatchReportsMalformedNestedDocument(t *testing.T) {
	doc := testhelpers.MarshalDoc(t, bson.D{{"sub", bson.D{{"s", "abc"}}}})
	toks := scan(t, doc)
	require.Len(t, toks, 1)

	// Corrupt the string length inside the sub-document so it overruns.
	// sub value: [len][0x02 's' 0][strlen]["abc" 0][0]
	strlenAt := len(doc) - 1 - len(toks[0].Value) + 4 + 3
	binary.LittleEndian.PutUint32(doc[strlenAt:], 99)

	_, err := MustCompile("sub.s").Match(toks)
	assert.ErrorIs(t, err, bsonscan.ErrMalformedDocument)
	assert.NotErrorIs(t, err, ErrNotFound)
}
