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
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/cardinalhq/bsoncolumns/internal/bsonscan"
	"github.com/cardinalhq/bsoncolumns/internal/pipeline"
)

// Compression identifies how a document stream is encoded.
type Compression string

const (
	CompressionAuto Compression = ""
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// StreamReader frames concatenated BSON documents, the layout written by
// mongodump. Gzip and zstd input is detected from its magic bytes.
type StreamReader struct {
	src         io.ReadCloser
	decomp      io.ReadCloser
	r           *bufio.Reader
	compression Compression
	batchSize   int
	maxDocSize  int

	offset  int64
	pending error
	done    bool
}

var _ Source = (*StreamReader)(nil)

// StreamOption configures a StreamReader.
type StreamOption func(*StreamReader)

// WithMaxDocumentSize overrides the largest accepted document.
func WithMaxDocumentSize(n int) StreamOption {
	return func(s *StreamReader) {
		s.maxDocSize = n
	}
}

// WithCompression skips detection. A plain stream holding a document whose
// length prefix happens to begin with the gzip magic needs CompressionNone.
func WithCompression(c Compression) StreamOption {
	return func(s *StreamReader) {
		s.compression = c
	}
}

// StreamConfig holds dump file settings loaded by the config package.
type StreamConfig struct {
	// Compression is auto, none, gzip or zstd.
	Compression string `mapstructure:"compression"`
	// MaxDocumentSize overrides the largest accepted document; zero keeps 16 MiB.
	MaxDocumentSize int `mapstructure:"max_document_size"`
}

// Options converts the settings into StreamReader options.
func (c StreamConfig) Options() ([]StreamOption, error) {
	comp, err := ParseCompression(c.Compression)
	if err != nil {
		return nil, err
	}
	opts := []StreamOption{WithCompression(comp)}
	if c.MaxDocumentSize > 0 {
		opts = append(opts, WithMaxDocumentSize(c.MaxDocumentSize))
	}
	return opts, nil
}

// ParseCompression accepts "", "auto", "none", "gzip" and "zstd".
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case CompressionAuto, "auto":
		return CompressionAuto, nil
	case CompressionNone, CompressionGzip, CompressionZstd:
		return Compression(s), nil
	}
	return "", fmt.Errorf("unknown compression %q", s)
}

// NewStreamReader wraps r, which is closed by Close.
func NewStreamReader(r io.ReadCloser, batchSize int, opts ...StreamOption) (*StreamReader, error) {
	if batchSize <= 0 {
		batchSize = pipeline.DefaultBatchSize
	}
	s := &StreamReader{
		src:         r,
		batchSize:   batchSize,
		maxDocSize:  bsonscan.MaxDocumentSize,
		compression: CompressionAuto,
	}
	for _, opt := range opts {
		opt(s)
	}

	br := bufio.NewReaderSize(r, 256*1024)
	if s.compression == CompressionAuto {
		s.compression = detectCompression(br)
	}
	switch s.compression {
	case CompressionGzip:
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		s.decomp = gz
	case CompressionZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		s.decomp = zr.IOReadCloser()
	case CompressionNone:
	default:
		return nil, fmt.Errorf("unknown compression %q", s.compression)
	}

	if s.decomp != nil {
		s.r = bufio.NewReaderSize(s.decomp, 256*1024)
	} else {
		s.r = br
	}
	return s, nil
}

func detectCompression(br *bufio.Reader) Compression {
	magic, _ := br.Peek(len(zstdMagic))
	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		return CompressionGzip
	case bytes.HasPrefix(magic, zstdMagic):
		return CompressionZstd
	default:
		return CompressionNone
	}
}

// OpenFile opens a dump file, or standard input for "-".
func OpenFile(path string, batchSize int, opts ...StreamOption) (*StreamReader, error) {
	if path == "-" {
		return NewStreamReader(io.NopCloser(os.Stdin), batchSize, opts...)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	s, err := NewStreamReader(f, batchSize, opts...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// Compression reports the detected stream encoding.
func (s *StreamReader) Compression() Compression {
	return s.compression
}

// Offset is the number of decompressed bytes framed so far.
func (s *StreamReader) Offset() int64 {
	return s.offset
}

// Next reads up to batchSize documents. A framing error ends the stream;
// documents framed before it are still returned, and the error is
// reported by the following call.
func (s *StreamReader) Next(ctx context.Context) (*pipeline.Batch, error) {
	if s.pending != nil {
		err := s.pending
		s.pending = nil
		s.done = true
		return nil, err
	}
	if s.done {
		return nil, io.EOF
	}

	b := pipeline.GetBatch()
	for b.Len() < s.batchSize {
		if err := ctx.Err(); err != nil {
			pipeline.ReturnBatch(b)
			return nil, err
		}
		err := s.readDocument(b)
		if err == io.EOF {
			s.done = true
			break
		}
		if err != nil {
			if b.Len() == 0 {
				pipeline.ReturnBatch(b)
				s.done = true
				return nil, err
			}
			s.pending = err
			break
		}
	}

	if b.Len() == 0 {
		pipeline.ReturnBatch(b)
		return nil, io.EOF
	}
	recordDocuments(ctx, "stream", b.Len())
	return b, nil
}

func (s *StreamReader) readDocument(b *pipeline.Batch) error {
	var hdr [4]byte
	n, err := io.ReadFull(s.r, hdr[:])
	switch {
	case err == io.EOF:
		return io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %d trailing bytes at offset %d", ErrTruncatedStream, n, s.offset)
	case err != nil:
		return fmt.Errorf("failed to read document header at offset %d: %w", s.offset, err)
	}

	size := int64(int32(binary.LittleEndian.Uint32(hdr[:])))
	if size < bsonscan.MinDocumentSize || size > int64(s.maxDocSize) {
		return fmt.Errorf("%w: length %d at offset %d", ErrInvalidFrame, size, s.offset)
	}

	err = b.AddDocFunc(int(size), func(dst []byte) error {
		copy(dst, hdr[:])
		_, err := io.ReadFull(s.r, dst[4:])
		return err
	})
	switch {
	case err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: document of %d bytes at offset %d", ErrTruncatedStream, size, s.offset)
	case err != nil:
		return fmt.Errorf("failed to read document at offset %d: %w", s.offset, err)
	}
	s.offset += size
	return nil
}

// Close releases the decompressor and the underlying reader.
func (s *StreamReader) Close() error {
	var errs []error
	if s.decomp != nil {
		errs = append(errs, s.decomp.Close())
	}
	errs = append(errs, s.src.Close())
	return errors.Join(errs...)
}
