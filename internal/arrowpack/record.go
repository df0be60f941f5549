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

// Package arrowpack packages decoded column batches as Arrow records and
// writes them to Parquet.
package arrowpack

import (
	"fmt"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/bitutil"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/cardinalhq/bsoncolumns/internal/colbuf"
	"github.com/cardinalhq/bsoncolumns/internal/coltype"
	"github.com/cardinalhq/bsoncolumns/internal/decode"
)

// Field metadata keys recording where a column came from.
const (
	MetaPath        = "bson.path"
	MetaType        = "bson.type"
	MetaFingerprint = "bson.schema_fingerprint"
)

// ArrowType maps a column type to the Arrow type it is exported as.
// Fixed-width kinds keep their slot layout so their buffers can be shared.
func ArrowType(t coltype.Type) arrow.DataType {
	switch t.Kind {
	case coltype.KindInt8:
		return arrow.PrimitiveTypes.Int8
	case coltype.KindInt16:
		return arrow.PrimitiveTypes.Int16
	case coltype.KindInt32:
		return arrow.PrimitiveTypes.Int32
	case coltype.KindInt64:
		return arrow.PrimitiveTypes.Int64
	case coltype.KindUint8, coltype.KindTypeTag:
		return arrow.PrimitiveTypes.Uint8
	case coltype.KindUint16:
		return arrow.PrimitiveTypes.Uint16
	case coltype.KindUint32, coltype.KindLength:
		return arrow.PrimitiveTypes.Uint32
	case coltype.KindUint64, coltype.KindTimestamp:
		return arrow.PrimitiveTypes.Uint64
	case coltype.KindFloat32:
		return arrow.PrimitiveTypes.Float32
	case coltype.KindFloat64:
		return arrow.PrimitiveTypes.Float64
	case coltype.KindBool:
		return arrow.FixedWidthTypes.Boolean
	case coltype.KindDate:
		return arrow.FixedWidthTypes.Timestamp_ms
	case coltype.KindObjectID, coltype.KindUUID, coltype.KindBinary:
		return &arrow.FixedSizeBinaryType{ByteWidth: t.Width}
	case coltype.KindString:
		return arrow.BinaryTypes.String
	default:
		return arrow.BinaryTypes.Binary
	}
}

// sharesBuffer reports whether the Arrow layout of t is the slot layout.
func sharesBuffer(t coltype.Type) bool {
	switch t.Kind {
	case coltype.KindBool, coltype.KindString, coltype.KindBSON:
		return false
	}
	return true
}

// Schema builds the Arrow schema for a decode schema. Every field is
// nullable and carries its source path and declared type as metadata.
func Schema(s *decode.Schema) *arrow.Schema {
	fields := make([]arrow.Field, s.Len())
	for i, c := range s.Columns() {
		fields[i] = arrow.Field{
			Name:     c.Name,
			Type:     ArrowType(c.Type),
			Nullable: true,
			Metadata: arrow.NewMetadata(
				[]string{MetaPath, MetaType},
				[]string{c.Path, c.Type.String()},
			),
		}
	}
	md := arrow.NewMetadata(
		[]string{MetaFingerprint},
		[]string{strconv.FormatUint(s.Fingerprint(), 16)},
	)
	return arrow.NewSchema(fields, &md)
}

// NewRecord packages a decoded batch. Fixed-width columns reference the
// batch buffers directly, so the batch must not be reused while the record
// is alive. The caller releases the record.
func NewRecord(mem memory.Allocator, b *decode.Batch) (arrow.Record, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	schema := Schema(b.Schema)
	rows := b.Rows()

	arrays := make([]arrow.Array, len(b.Columns))
	defer func() {
		for _, a := range arrays {
			if a != nil {
				a.Release()
			}
		}
	}()

	for i, col := range b.Columns {
		c := b.Schema.Column(i)
		if col.Rows != rows || col.Width != c.Width() {
			return nil, fmt.Errorf("%w: column %q is %dx%d", colbuf.ErrWidthMismatch, c.Name, col.Rows, col.Width)
		}
		if sharesBuffer(c.Type) {
			arrays[i] = wrapFixed(ArrowType(c.Type), col)
		} else {
			arrays[i] = buildVariable(mem, c.Type, col)
		}
	}

	return array.NewRecordBatch(schema, arrays, int64(rows)), nil
}

func validityBitmap(col *colbuf.Column) (*memory.Buffer, int) {
	bitmap := make([]byte, bitutil.BytesForBits(int64(col.Rows)))
	nulls := 0
	for r := 0; r < col.Rows; r++ {
		if col.Valid(r) {
			bitutil.SetBit(bitmap, r)
		} else {
			nulls++
		}
	}
	return memory.NewBufferBytes(bitmap), nulls
}

func wrapFixed(dt arrow.DataType, col *colbuf.Column) arrow.Array {
	valid, nulls := validityBitmap(col)
	data := array.NewData(dt, col.Rows,
		[]*memory.Buffer{valid, memory.NewBufferBytes(col.Data)},
		nil, nulls, 0)
	defer data.Release()
	return array.MakeFromData(data)
}

func buildVariable(mem memory.Allocator, t coltype.Type, col *colbuf.Column) arrow.Array {
	switch t.Kind {
	case coltype.KindBool:
		bld := array.NewBooleanBuilder(mem)
		defer bld.Release()
		bld.Reserve(col.Rows)
		for r := 0; r < col.Rows; r++ {
			if col.Valid(r) {
				bld.Append(col.Value(r)[0] != 0)
			} else {
				bld.AppendNull()
			}
		}
		return bld.NewArray()
	case coltype.KindString:
		bld := array.NewStringBuilder(mem)
		defer bld.Release()
		bld.Reserve(col.Rows)
		for r := 0; r < col.Rows; r++ {
			if col.Valid(r) {
				bld.Append(string(coltype.Payload(t, col.Value(r))))
			} else {
				bld.AppendNull()
			}
		}
		return bld.NewArray()
	default:
		bld := array.NewBinaryBuilder(mem, arrow.BinaryTypes.Binary)
		defer bld.Release()
		bld.Reserve(col.Rows)
		for r := 0; r < col.Rows; r++ {
			if col.Valid(r) {
				bld.Append(coltype.Payload(t, col.Value(r)))
			} else {
				bld.AppendNull()
			}
		}
		return bld.NewArray()
	}
}
