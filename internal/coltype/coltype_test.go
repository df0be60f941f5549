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
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/cardinalhq/bsoncolumns/internal/bsonscan"
	"github.com/cardinalhq/bsoncolumns/testhelpers"
)

func token(t *testing.T, v any) bsonscan.Token {
	t.Helper()
	doc := testhelpers.MarshalDoc(t, bson.D{{"v", v}})
	toks, err := bsonscan.ScanAll(doc, nil)
	require.NoError(t, err)
	require.Len(t, toks, 1)
	return toks[0]
}

func mustLookup(t *testing.T, decl string) Descriptor {
	t.Helper()
	ct, err := ParseType(decl)
	require.NoError(t, err)
	d, ok := Lookup(ct)
	require.True(t, ok)
	return d
}

func TestParseType(t *testing.T) {
	tests := []struct {
		decl  string
		want  Type
		round string
	}{
		{"int32", Type{KindInt32, 4}, "int32"},
		{" INT64 ", Type{KindInt64, 8}, "int64"},
		{"uint8", Type{KindUint8, 1}, "uint8"},
		{"double", Type{KindFloat64, 8}, "float64"},
		{"float32", Type{KindFloat32, 4}, "float32"},
		{"boolean", Type{KindBool, 1}, "bool"},
		{"datetime", Type{KindDate, 8}, "date"},
		{"timestamp", Type{KindTimestamp, 8}, "timestamp"},
		{"id", Type{KindObjectID, 12}, "objectid"},
		{"uuid", Type{KindUUID, 16}, "uuid"},
		{"string:16", Type{KindString, 16}, "string:16"},
		{"binary:4", Type{KindBinary, 4}, "binary:4"},
		{"bson:128", Type{KindBSON, 128}, "bson:128"},
		{"type", Type{KindTypeTag, 1}, "type"},
		{"length", Type{KindLength, 4}, "length"},
	}
	for _, tt := range tests {
		t.Run(tt.decl, func(t *testing.T) {
			got, err := ParseType(tt.decl)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.round, got.String())

			again, err := ParseType(got.String())
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestParseTypeErrors(t *testing.T) {
	for _, decl := range []string{
		"",
		"int128",
		"string",
		"string:0",
		"string:-1",
		"string:abc",
		"int32:4",
		"bson:99999999",
	} {
		t.Run(decl, func(t *testing.T) {
			_, err := ParseType(decl)
			assert.ErrorIs(t, err, ErrUnknownType)
		})
	}
}

func TestOfAndSized(t *testing.T) {
	assert.Equal(t, Type{KindFloat64, 8}, Of(KindFloat64))
	assert.Panics(t, func() { Of(KindString) })
	assert.NoError(t, Sized(KindString, 3).Validate())
	assert.Error(t, Type{KindInt32, 8}.Validate())

	_, ok := Lookup(Type{KindInt32, 2})
	assert.False(t, ok)
}

func TestEveryKindHasADescriptor(t *testing.T) {
	for _, k := range Kinds() {
		ct := Type{Kind: k, Width: 8}
		if !k.Sized() {
			ct = Of(k)
		}
		d, ok := Lookup(ct)
		require.True(t, ok, k.String())
		assert.NotNil(t, d.WireTags, k.String())
		assert.NotNil(t, d.decode, k.String())
		assert.Positive(t, d.WireTags.Cardinality(), k.String())
	}
}

func TestFixedWidths(t *testing.T) {
	want := map[Kind]int{
		KindInt8: 1, KindUint8: 1, KindBool: 1, KindTypeTag: 1,
		KindInt16: 2, KindUint16: 2,
		KindInt32: 4, KindUint32: 4, KindFloat32: 4, KindLength: 4,
		KindInt64: 8, KindUint64: 8, KindFloat64: 8, KindDate: 8, KindTimestamp: 8,
		KindObjectID: 12, KindUUID: 16,
	}
	for _, k := range Kinds() {
		if k.Sized() {
			continue
		}
		assert.Positive(t, fixedWidth(k), k.String())
		assert.Equal(t, want[k], fixedWidth(k), k.String())
		assert.Equal(t, want[k], Of(k).Width, k.String())

		parsed, err := ParseType(k.String())
		require.NoError(t, err, k.String())
		assert.Equal(t, want[k], parsed.Width, k.String())
	}
}

func TestFourByteValuesRoundTrip(t *testing.T) {
	i32 := fourByteType(t, "int32")
	slot := make([]byte, i32.Width)
	binary.LittleEndian.PutUint32(slot, uint32(0xffffffd6))
	assert.Equal(t, int32(-42), Value(i32, slot))
	assert.Equal(t, "-42", Format(i32, slot))

	f32 := fourByteType(t, "float32")
	slot = make([]byte, f32.Width)
	binary.LittleEndian.PutUint32(slot, math.Float32bits(1.5))
	assert.Equal(t, "1.5", Format(f32, slot))
}

func fourByteType(t *testing.T, decl string) Type {
	t.Helper()
	ct, err := ParseType(decl)
	require.NoError(t, err)
	require.Equal(t, 4, ct.Width, decl)
	return ct
}

func TestIntegerDecoding(t *testing.T) {
	tests := []struct {
		decl     string
		value    any
		want     uint64
		mismatch bool
	}{
		{"int32", int32(-7), uint64(math.MaxUint64 - 6), false},
		{"int32", int64(1 << 40), 0, true},
		{"int64", int64(1 << 40), 1 << 40, false},
		{"int8", int32(127), 127, false},
		{"int8", int32(128), 0, true},
		{"int8", int32(-128), uint64(math.MaxUint64 - 127), false},
		{"int16", 3.9, 3, false},
		{"int16", -3.9, uint64(math.MaxUint64 - 2), false},
		{"int32", math.NaN(), 0, true},
		{"int32", math.Inf(1), 0, true},
		{"int64", 9.3e18, 0, true},
		{"int64", math.Exp2(63), 0, true},
		{"int64", -math.Exp2(63), 1 << 63, false},
		{"int32", true, 1, false},
		{"int32", false, 0, false},
		{"uint8", int32(255), 255, false},
		{"uint8", int32(256), 0, true},
		{"uint16", int32(-1), 0, true},
		{"uint32", -0.5, 0, false},
		{"uint32", -1.0, 0, true},
		{"uint64", int64(math.MaxInt64), math.MaxInt64, false},
		{"uint64", math.Exp2(64), 0, true},
		{"int32", "12", 0, true},
	}
	for _, tt := range tests {
		d := mustLookup(t, tt.decl)
		s, err := d.Decode(token(t, tt.value))
		if tt.mismatch {
			assert.ErrorIs(t, err, ErrTypeMismatch, "%s <- %v", tt.decl, tt.value)
			continue
		}
		require.NoError(t, err, "%s <- %v", tt.decl, tt.value)
		assert.False(t, s.IsBytes())
		assert.Equal(t, tt.want, s.Bits(), "%s <- %v", tt.decl, tt.value)
	}
}

func TestFloatAndBoolDecoding(t *testing.T) {
	f64 := mustLookup(t, "float64")
	s, err := f64.Decode(token(t, int64(3)))
	require.NoError(t, err)
	assert.Equal(t, 3.0, math.Float64frombits(s.Bits()))

	s, err = f64.Decode(token(t, math.Inf(-1)))
	require.NoError(t, err)
	assert.True(t, math.IsInf(math.Float64frombits(s.Bits()), -1))

	f32 := mustLookup(t, "float32")
	s, err = f32.Decode(token(t, 1.5))
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), math.Float32frombits(uint32(s.Bits())))

	_, err = f32.Decode(token(t, 1e300))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	b := mustLookup(t, "bool")
	for _, tc := range []struct {
		v    any
		want uint64
	}{
		{true, 1}, {false, 0}, {int32(0), 0}, {int64(-4), 1}, {0.0, 0}, {0.25, 1},
	} {
		s, err := b.Decode(token(t, tc.v))
		require.NoError(t, err)
		assert.Equal(t, tc.want, s.Bits(), "%v", tc.v)
	}

	_, err = b.Decode(token(t, "true"))
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestDateTimestampObjectID(t *testing.T) {
	when := time.Date(2024, 2, 29, 12, 30, 0, 0, time.UTC)
	s, err := mustLookup(t, "date").Decode(token(t, primitive.NewDateTimeFromTime(when)))
	require.NoError(t, err)
	assert.Equal(t, when.UnixMilli(), int64(s.Bits()))

	_, err = mustLookup(t, "date").Decode(token(t, when.UnixMilli()))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	ts := primitive.Timestamp{T: 1700000000, I: 7}
	s, err = mustLookup(t, "timestamp").Decode(token(t, ts))
	require.NoError(t, err)
	assert.Equal(t, uint64(ts.T)<<32|uint64(ts.I), s.Bits())

	oid := primitive.NewObjectID()
	s, err = mustLookup(t, "objectid").Decode(token(t, oid))
	require.NoError(t, err)
	assert.True(t, s.IsBytes())
	assert.Equal(t, oid[:], s.Raw())
}

func TestUUIDDecoding(t *testing.T) {
	id := uuid.New()
	d := mustLookup(t, "uuid")

	s, err := d.Decode(token(t, primitive.Binary{Subtype: bsonscan.BinaryUUID, Data: id[:]}))
	require.NoError(t, err)
	assert.Equal(t, id[:], s.Raw())

	_, err = d.Decode(token(t, primitive.Binary{Subtype: bsonscan.BinaryUUIDOld, Data: id[:]}))
	assert.NoError(t, err)

	_, err = d.Decode(token(t, primitive.Binary{Subtype: bsonscan.BinaryGeneric, Data: id[:]}))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = d.Decode(token(t, primitive.Binary{Subtype: bsonscan.BinaryUUID, Data: id[:8]}))
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestVariableLengthDecoding(t *testing.T) {
	str := mustLookup(t, "string:5")

	s, err := str.Decode(token(t, "abc"))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), s.Raw())

	s, err = str.Decode(token(t, "abcde"))
	require.NoError(t, err)
	assert.Equal(t, []byte("abcde"), s.Raw())

	s, err = str.Decode(token(t, "abcdefgh"))
	assert.ErrorIs(t, err, ErrValueTooLarge)
	assert.Equal(t, []byte("abcde"), s.Raw())

	s, err = str.Decode(token(t, primitive.Symbol("sym")))
	require.NoError(t, err)
	assert.Equal(t, []byte("sym"), s.Raw())

	_, err = str.Decode(token(t, int32(1)))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	bin := mustLookup(t, "binary:2")
	s, err = bin.Decode(token(t, primitive.Binary{Data: []byte{1, 2, 3}}))
	assert.ErrorIs(t, err, ErrValueTooLarge)
	assert.Equal(t, []byte{1, 2}, s.Raw())

	sub := testhelpers.MarshalDoc(t, bson.D{{"a", int32(1)}})
	raw := mustLookup(t, "bson:64")
	s, err = raw.Decode(token(t, bson.D{{"a", int32(1)}}))
	require.NoError(t, err)
	assert.Equal(t, sub, s.Raw())
}

func TestTypeTagAndLength(t *testing.T) {
	tag := mustLookup(t, "type")
	for _, tc := range []struct {
		v    any
		want bsonscan.Type
	}{
		{int32(1), bsonscan.TypeInt32},
		{"s", bsonscan.TypeString},
		{nil, bsonscan.TypeNull},
		{primitive.Undefined{}, bsonscan.TypeUndefined},
		{bson.A{}, bsonscan.TypeArray},
		{primitive.MinKey{}, bsonscan.TypeMinKey},
		{primitive.MaxKey{}, bsonscan.TypeMaxKey},
	} {
		s, err := tag.Decode(token(t, tc.v))
		require.NoError(t, err)
		assert.Equal(t, uint64(tc.want), s.Bits())
	}

	length := mustLookup(t, "length")
	for _, tc := range []struct {
		v    any
		want uint64
	}{
		{"héllo", 6},
		{"", 0},
		{primitive.Binary{Data: []byte{1, 2, 3}}, 3},
		{bson.A{int32(1), int32(2), int32(3), int32(4)}, 4},
		{bson.D{{"a", 1.0}, {"b", 2.0}}, 2},
	} {
		s, err := length.Decode(token(t, tc.v))
		require.NoError(t, err)
		assert.Equal(t, tc.want, s.Bits(), "%v", tc.v)
	}

	_, err := length.Decode(token(t, int64(5)))
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestValueAndFormat(t *testing.T) {
	slot := func(n int, v uint64) []byte {
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, v)
		return b[:n]
	}

	neg := int64(-42)
	assert.Equal(t, int64(-42), Value(Of(KindInt64), slot(8, uint64(neg))))
	assert.Equal(t, "-42", Format(Of(KindInt64), slot(8, uint64(neg))))
	assert.Equal(t, "-42", Format(Of(KindInt8), slot(1, uint64(neg))))
	assert.Equal(t, "255", Format(Of(KindUint8), []byte{0xff}))
	assert.Equal(t, "1.5", Format(Of(KindFloat64), slot(8, math.Float64bits(1.5))))
	assert.Equal(t, "true", Format(Of(KindBool), []byte{1}))
	assert.Equal(t, "int32", Format(Of(KindTypeTag), []byte{byte(bsonscan.TypeInt32)}))
	assert.Equal(t, "1970-01-01T00:00:01Z", Format(Of(KindDate), slot(8, 1000)))
	assert.Equal(t, "ab", Format(Sized(KindString, 4), []byte{'a', 'b', 0, 0}))

	id := uuid.New()
	assert.Equal(t, id.String(), Format(Of(KindUUID), id[:]))

	doc := testhelpers.MarshalDoc(t, bson.D{{"a", true}})
	padded := append(append([]byte(nil), doc...), 0, 0, 0)
	assert.Equal(t, Format(Sized(KindBSON, len(doc)), doc), Format(Sized(KindBSON, len(padded)), padded))
}

func TestPayload(t *testing.T) {
	str := Sized(KindString, 6)
	assert.Equal(t, []byte("ab"), Payload(str, []byte("ab\x00\x00\x00\x00")))
	assert.Equal(t, []byte("abcdef"), Payload(str, []byte("abcdef")))
	assert.Equal(t, []byte("a\x00b"), Payload(str, []byte("a\x00b\x00\x00\x00")))
	assert.Equal(t, []byte("ab"), Payload(str, []byte("ab\x00\x00\x00\x00")), "value NULs at the end read as padding")

	doc := testhelpers.MarshalDoc(t, bson.D{{"a", int32(1)}})
	slot := make([]byte, len(doc)+8)
	copy(slot, doc)
	emb := Sized(KindBSON, len(slot))
	assert.Equal(t, doc, Payload(emb, slot))

	// A prefix claiming more than the slot holds returns the whole slot.
	binary.LittleEndian.PutUint32(slot, uint32(len(slot)+1))
	assert.Len(t, Payload(emb, slot), len(slot))

	oid := Of(KindObjectID)
	raw := make([]byte, 12)
	assert.Equal(t, raw, Payload(oid, raw))
}
