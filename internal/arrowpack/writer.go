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

package arrowpack

import (
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/cardinalhq/bsoncolumns/internal/decode"
)

// WriterConfig tunes the Parquet output.
type WriterConfig struct {
	// RowGroupSize caps the rows per row group; zero keeps the library default.
	RowGroupSize int64 `mapstructure:"row_group_size"`
	// Compression is one of zstd, snappy, gzip or none.
	Compression string `mapstructure:"compression"`
}

// DefaultWriterConfig returns zstd compressed output with default row groups.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{Compression: "zstd"}
}

func (c WriterConfig) codec() (compress.Compression, error) {
	switch c.Compression {
	case "", "zstd":
		return compress.Codecs.Zstd, nil
	case "snappy":
		return compress.Codecs.Snappy, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "none":
		return compress.Codecs.Uncompressed, nil
	}
	return compress.Codecs.Uncompressed, fmt.Errorf("unknown parquet compression %q", c.Compression)
}

// Writer appends decoded batches to one Parquet file. Invalid slots are
// written as nulls.
type Writer struct {
	fw     *pqarrow.FileWriter
	schema *decode.Schema
	mem    memory.Allocator
	rows   int64
}

// NewWriter starts a Parquet file on w for batches of the given schema.
// The Arrow schema is stored in the file so readers recover field metadata.
func NewWriter(w io.Writer, schema *decode.Schema, cfg WriterConfig) (*Writer, error) {
	codec, err := cfg.codec()
	if err != nil {
		return nil, err
	}
	opts := []parquet.WriterProperty{
		parquet.WithCompression(codec),
		parquet.WithDictionaryDefault(true),
	}
	if cfg.RowGroupSize > 0 {
		opts = append(opts, parquet.WithMaxRowGroupLength(cfg.RowGroupSize))
	}

	fw, err := pqarrow.NewFileWriter(Schema(schema), w,
		parquet.NewWriterProperties(opts...),
		pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	return &Writer{fw: fw, schema: schema, mem: memory.DefaultAllocator}, nil
}

// Write appends every row of b.
func (w *Writer) Write(b *decode.Batch) error {
	if b.Schema.Fingerprint() != w.schema.Fingerprint() {
		return fmt.Errorf("batch schema %x does not match writer schema %x",
			b.Schema.Fingerprint(), w.schema.Fingerprint())
	}
	if b.Rows() == 0 {
		return nil
	}
	rec, err := NewRecord(w.mem, b)
	if err != nil {
		return err
	}
	defer rec.Release()
	return w.WriteRecord(rec)
}

// WriteRecord appends an already packaged record.
func (w *Writer) WriteRecord(rec arrow.Record) error {
	if err := w.fw.Write(rec); err != nil {
		return fmt.Errorf("failed to write record batch: %w", err)
	}
	w.rows += rec.NumRows()
	return nil
}

// Rows is the number of rows written so far.
func (w *Writer) Rows() int64 {
	return w.rows
}

// Close writes the footer. The underlying writer is closed too when it
// implements io.Closer.
func (w *Writer) Close() error {
	if err := w.fw.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}
