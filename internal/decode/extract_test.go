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

package decode

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/cardinalhq/bsoncolumns/internal/docsource"
	"github.com/cardinalhq/bsoncolumns/testhelpers"
)

func TestExtractFromSliceSource(t *testing.T) {
	s := schemaOf(t, "id=id:int64", "v=v:float64")
	docs := mixedDocs(t, 250)
	src := docsource.NewSliceSource(docs, 100)

	var rows []int
	var ids []int64
	totals, err := Extract(context.Background(), src, s, func(_ context.Context, b *Batch) error {
		rows = append(rows, b.Rows())
		for r := 0; r < b.Rows(); r++ {
			if b.Columns[0].Valid(r) {
				ids = append(ids, value(t, b, "id", r).(int64))
			}
		}
		return nil
	}, WithWorkers(3))
	require.NoError(t, err)

	assert.Equal(t, []int{100, 100, 50}, rows)
	assert.Equal(t, int64(3), totals.Batches)
	assert.Equal(t, int64(250), totals.Result.Documents)
	assert.Equal(t, int64(2), totals.Result.Malformed)
	assert.NoError(t, totals.Result.Check())
	assert.Len(t, ids, 248)
	assert.Equal(t, int64(0), ids[0])
}

func TestExtractStream(t *testing.T) {
	s := schemaOf(t, "name=name:string:8")
	docs := testhelpers.MarshalDocs(t, bson.D{{"name", "a"}}, bson.D{{"name", "b"}}, bson.D{{"other", 1}})
	src, err := docsource.NewStreamReader(io.NopCloser(bytes.NewReader(testhelpers.ConcatDocs(docs))), 2)
	require.NoError(t, err)
	defer func() { _ = src.Close() }()

	var names []string
	totals, err := Extract(context.Background(), src, s, func(_ context.Context, b *Batch) error {
		for r := 0; r < b.Rows(); r++ {
			names = append(names, value(t, b, "name", r).(string))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", ""}, names)
	assert.Equal(t, ColumnStats{Processed: 3, Decoded: 2, Absent: 1}, totals.Result.Columns[0])
}

func TestExtractEmptySource(t *testing.T) {
	s := schemaOf(t, "x=x:int32")
	totals, err := Extract(context.Background(), docsource.NewSliceSource(nil, 10), s, func(context.Context, *Batch) error {
		t.Fatal("no batches expected")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), totals.Batches)
	assert.Len(t, totals.Result.Columns, 1)
}

func TestExtractStopsOnCallbackError(t *testing.T) {
	s := schemaOf(t, "x=x:int32")
	boom := errors.New("boom")
	calls := 0
	totals, err := Extract(context.Background(), docsource.NewSliceSource(mixedDocs(t, 30), 10), s,
		func(context.Context, *Batch) error {
			calls++
			return boom
		})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(1), totals.Batches)
}

func TestExtractReportsSourceErrors(t *testing.T) {
	s := schemaOf(t, "x=x:int32")
	stream := testhelpers.ConcatDocs(testhelpers.MarshalDocs(t, bson.D{{"x", int32(1)}}))
	stream = append(stream, 0xff, 0xff, 0xff, 0x7f)
	src, err := docsource.NewStreamReader(io.NopCloser(bytes.NewReader(stream)), 10)
	require.NoError(t, err)

	totals, err := Extract(context.Background(), src, s, func(context.Context, *Batch) error { return nil })
	assert.ErrorIs(t, err, docsource.ErrInvalidFrame)
	assert.Equal(t, int64(1), totals.Result.Documents)
}

func TestExtractCancelled(t *testing.T) {
	s := schemaOf(t, "x=x:int32")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Extract(ctx, docsource.NewSliceSource(mixedDocs(t, 10), 5), s, func(context.Context, *Batch) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
