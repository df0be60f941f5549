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

package docsource

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/cardinalhq/bsoncolumns/internal/pipeline"
	"github.com/cardinalhq/bsoncolumns/testhelpers"
)

func fixtureDocs(t *testing.T, n int) [][]byte {
	t.Helper()
	docs := make([][]byte, n)
	for i := range docs {
		docs[i] = testhelpers.MarshalDoc(t, bson.D{{"i", int32(i)}, {"name", "doc"}})
	}
	return docs
}

// drain collects every document from src and the terminating error.
func drain(t *testing.T, src Source) ([][]byte, []int, error) {
	t.Helper()
	var docs [][]byte
	var sizes []int
	for {
		b, err := src.Next(context.Background())
		if err != nil {
			return docs, sizes, err
		}
		sizes = append(sizes, b.Len())
		for _, d := range b.Docs() {
			docs = append(docs, bytes.Clone(d))
		}
		pipeline.ReturnBatch(b)
	}
}

func TestSliceSource(t *testing.T) {
	docs := fixtureDocs(t, 7)
	src := NewSliceSource(docs, 3)

	got, sizes, err := drain(t, src)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, docs, got)
	assert.Equal(t, []int{3, 3, 1}, sizes)

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, src.Close())
}

func TestSliceSourceHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSliceSource(fixtureDocs(t, 1), 1).Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamReaderPlain(t *testing.T) {
	docs := fixtureDocs(t, 10)
	stream := testhelpers.ConcatDocs(docs)

	src, err := NewStreamReader(io.NopCloser(bytes.NewReader(stream)), 4)
	require.NoError(t, err)
	defer func() { _ = src.Close() }()
	assert.Equal(t, CompressionNone, src.Compression())

	got, sizes, err := drain(t, src)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, docs, got)
	assert.Equal(t, []int{4, 4, 2}, sizes)
	assert.Equal(t, int64(len(stream)), src.Offset())
}

func TestStreamReaderEmpty(t *testing.T) {
	src, err := NewStreamReader(io.NopCloser(bytes.NewReader(nil)), 4)
	require.NoError(t, err)
	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamReaderCompressed(t *testing.T) {
	docs := fixtureDocs(t, 25)
	plain := testhelpers.ConcatDocs(docs)

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, err := gw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	var zs bytes.Buffer
	zw, err := zstd.NewWriter(&zs)
	require.NoError(t, err)
	_, err = zw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	for _, tc := range []struct {
		name string
		data []byte
		want Compression
	}{
		{"gzip", gz.Bytes(), CompressionGzip},
		{"zstd", zs.Bytes(), CompressionZstd},
	} {
		t.Run(tc.name, func(t *testing.T) {
			src, err := NewStreamReader(io.NopCloser(bytes.NewReader(tc.data)), 10)
			require.NoError(t, err)
			defer func() { _ = src.Close() }()
			assert.Equal(t, tc.want, src.Compression())

			got, _, err := drain(t, src)
			assert.ErrorIs(t, err, io.EOF)
			assert.Equal(t, docs, got)
		})
	}
}

func TestStreamReaderTruncatedTrailingDocument(t *testing.T) {
	docs := fixtureDocs(t, 3)
	stream := testhelpers.ConcatDocs(docs)
	stream = stream[:len(stream)-3]

	src, err := NewStreamReader(io.NopCloser(bytes.NewReader(stream)), 10)
	require.NoError(t, err)

	b, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, b.Len(), "complete documents are delivered before the error")
	pipeline.ReturnBatch(b)

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, ErrTruncatedStream)

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamReaderTruncatedHeader(t *testing.T) {
	stream := append(testhelpers.ConcatDocs(fixtureDocs(t, 1)), 0x10, 0x00)
	src, err := NewStreamReader(io.NopCloser(bytes.NewReader(stream)), 1)
	require.NoError(t, err)

	b, err := src.Next(context.Background())
	require.NoError(t, err)
	pipeline.ReturnBatch(b)

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, ErrTruncatedStream)
}

func TestStreamReaderInvalidFrame(t *testing.T) {
	for _, size := range []int32{0, 4, -1, 1 << 30} {
		stream := testhelpers.WithDeclaredLength(testhelpers.MarshalDoc(t, bson.D{{"a", int32(1)}}), size)
		src, err := NewStreamReader(io.NopCloser(bytes.NewReader(stream)), 10)
		require.NoError(t, err)

		_, err = src.Next(context.Background())
		assert.ErrorIs(t, err, ErrInvalidFrame, "size %d", size)
	}
}

func TestStreamReaderMaxDocumentSize(t *testing.T) {
	big := testhelpers.MarshalDoc(t, bson.D{{"s", strings.Repeat("x", 200)}})
	src, err := NewStreamReader(io.NopCloser(bytes.NewReader(big)), 10, WithMaxDocumentSize(100))
	require.NoError(t, err)
	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

// Contents are not validated while framing; a corrupt body still arrives
// as a document span.
func TestStreamReaderDeliversMalformedBodies(t *testing.T) {
	doc := testhelpers.MarshalDoc(t, bson.D{{"a", "text"}})
	doc[len(doc)-1] = 0x7
	src, err := NewStreamReader(io.NopCloser(bytes.NewReader(doc)), 10)
	require.NoError(t, err)

	b, err := src.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, b.Len())
	assert.Equal(t, doc, b.Get(0))
	pipeline.ReturnBatch(b)
}

func TestStreamReaderForcedCompression(t *testing.T) {
	// A 0x8b1f byte document starts with the gzip magic.
	doc := testhelpers.MarshalDoc(t, bson.D{{"s", strings.Repeat("x", 0x8b1f-13)}})
	require.Equal(t, []byte{0x1f, 0x8b}, doc[:2])

	src, err := NewStreamReader(io.NopCloser(bytes.NewReader(doc)), 1, WithCompression(CompressionNone))
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, src.Compression())

	got, _, err := drain(t, src)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, [][]byte{doc}, got)
}

func TestOpenFile(t *testing.T) {
	docs := fixtureDocs(t, 5)
	path := filepath.Join(t.TempDir(), "dump.bson")
	require.NoError(t, os.WriteFile(path, testhelpers.ConcatDocs(docs), 0o644))

	src, err := OpenFile(path, 2)
	require.NoError(t, err)
	got, _, err := drain(t, src)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, docs, got)
	assert.NoError(t, src.Close())

	_, err = OpenFile(filepath.Join(t.TempDir(), "missing.bson"), 2)
	assert.Error(t, err)
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("")
	require.NoError(t, err)
	assert.Empty(t, f)

	f, err = ParseFilter(`{"status": "ok", "n": {"$gt": 5}}`)
	require.NoError(t, err)
	require.Len(t, f, 2)
	assert.Equal(t, "status", f[0].Key)
	assert.Equal(t, "ok", f[0].Value)
	assert.Equal(t, "n", f[1].Key)

	_, err = ParseFilter(`{"status": `)
	assert.Error(t, err)
}

func TestBuildProjection(t *testing.T) {
	assert.Nil(t, BuildProjection(nil))

	assert.Equal(t, bson.D{{"a", 1}, {"b.c", 1}, {"_id", 0}}, BuildProjection([]string{"a", "b.c"}))
	assert.Equal(t, bson.D{{"_id", 1}, {"x", 1}}, BuildProjection([]string{"_id", "x"}))
	assert.Equal(t, bson.D{{"_id.t", 1}}, BuildProjection([]string{"_id.t"}))
}

func TestFindOptions(t *testing.T) {
	cfg := DefaultMongoConfig()
	cfg.Skip = 10
	cfg.Limit = 5

	fo := FindOptions(cfg, []string{"a"})
	require.NotNil(t, fo.Skip)
	assert.Equal(t, int64(10), *fo.Skip)
	require.NotNil(t, fo.Limit)
	assert.Equal(t, int64(5), *fo.Limit)
	require.NotNil(t, fo.BatchSize)
	assert.Equal(t, int32(1000), *fo.BatchSize)
	assert.Equal(t, bson.D{{"a", 1}, {"_id", 0}}, fo.Projection)

	fo = FindOptions(MongoConfig{}, nil)
	assert.Nil(t, fo.Skip)
	assert.Nil(t, fo.Limit)
	assert.Nil(t, fo.Projection)
}

func TestMongoConfigValidate(t *testing.T) {
	cfg := DefaultMongoConfig()
	assert.ErrorContains(t, cfg.Validate(), "database, collection")

	cfg.Database, cfg.Collection = "db", "coll"
	assert.NoError(t, cfg.Validate())

	cfg.Limit = -1
	assert.Error(t, cfg.Validate())
}

func TestStreamConfigOptions(t *testing.T) {
	opts, err := StreamConfig{Compression: "zstd", MaxDocumentSize: 64}.Options()
	require.NoError(t, err)
	s := &StreamReader{}
	for _, o := range opts {
		o(s)
	}
	assert.Equal(t, CompressionZstd, s.compression)
	assert.Equal(t, 64, s.maxDocSize)

	opts, err = StreamConfig{}.Options()
	require.NoError(t, err)
	assert.Len(t, opts, 1)

	_, err = StreamConfig{Compression: "lz4"}.Options()
	assert.Error(t, err)
}
