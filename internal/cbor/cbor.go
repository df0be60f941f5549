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

// Package cbor encodes decoded column batches as compact CBOR snapshots.
//
// A snapshot carries the column declarations, the raw fixed-width buffers
// with their validity bytes, and the batch counters, so a batch can be
// stored and decoded again without the source documents.
package cbor

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/cardinalhq/bsoncolumns/internal/colbuf"
	"github.com/cardinalhq/bsoncolumns/internal/decode"
)

// ErrSnapshotMismatch is returned when a snapshot's buffers disagree with
// its declared schema.
var ErrSnapshotMismatch = errors.New("snapshot does not match its schema")

// ColumnSnapshot is one column of a snapshot.
type ColumnSnapshot struct {
	Name     string `cbor:"1,keyasint"`
	Path     string `cbor:"2,keyasint"`
	Type     string `cbor:"3,keyasint"`
	Width    int    `cbor:"4,keyasint"`
	Data     []byte `cbor:"5,keyasint"`
	Validity []byte `cbor:"6,keyasint"`
}

// Snapshot is the serialized form of a decode.Batch.
type Snapshot struct {
	Fingerprint uint64           `cbor:"1,keyasint"`
	Rows        int              `cbor:"2,keyasint"`
	Complete    bool             `cbor:"3,keyasint"`
	Columns     []ColumnSnapshot `cbor:"4,keyasint"`
	Result      decode.Result    `cbor:"5,keyasint"`
}

// SnapshotOf captures b. The buffers are shared, not copied.
func SnapshotOf(b *decode.Batch) Snapshot {
	s := Snapshot{
		Fingerprint: b.Schema.Fingerprint(),
		Rows:        b.Rows(),
		Complete:    b.Complete,
		Columns:     make([]ColumnSnapshot, len(b.Columns)),
		Result:      b.Result,
	}
	for i, spec := range b.Schema.Specs() {
		col := b.Columns[i]
		s.Columns[i] = ColumnSnapshot{
			Name:     spec.Name,
			Path:     spec.Path,
			Type:     spec.Type,
			Width:    col.Width,
			Data:     col.Data,
			Validity: col.Validity,
		}
	}
	return s
}

// Batch recompiles the schema and wraps the snapshot buffers as columns.
func (s Snapshot) Batch() (*decode.Batch, error) {
	specs := make([]decode.ColumnSpec, len(s.Columns))
	for i, c := range s.Columns {
		specs[i] = decode.ColumnSpec{Name: c.Name, Path: c.Path, Type: c.Type}
	}
	schema, err := decode.Compile(specs)
	if err != nil {
		return nil, fmt.Errorf("snapshot schema: %w", err)
	}
	if schema.Fingerprint() != s.Fingerprint {
		return nil, fmt.Errorf("%w: fingerprint %x, recompiled %x", ErrSnapshotMismatch, s.Fingerprint, schema.Fingerprint())
	}

	cols := make([]*colbuf.Column, len(s.Columns))
	for i, c := range s.Columns {
		if c.Width != schema.Column(i).Width() || len(c.Validity) != s.Rows {
			return nil, fmt.Errorf("%w: column %q is %dx%d", ErrSnapshotMismatch, c.Name, len(c.Validity), c.Width)
		}
		col, err := colbuf.NewColumnFrom(orEmpty(c.Data), orEmpty(c.Validity), c.Width)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q: %v", ErrSnapshotMismatch, c.Name, err)
		}
		cols[i] = col
	}
	if len(s.Result.Columns) != len(cols) {
		return nil, fmt.Errorf("%w: %d counter sets for %d columns", ErrSnapshotMismatch, len(s.Result.Columns), len(cols))
	}

	return &decode.Batch{
		Schema:   schema,
		Columns:  cols,
		Result:   s.Result,
		Complete: s.Complete,
	}, nil
}

func orEmpty(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// Config holds the CBOR encoder and decoder modes for snapshots.
type Config struct {
	encMode cbor.EncMode
	decMode cbor.DecMode
}

// NewConfig creates the snapshot codec configuration.
func NewConfig() (*Config, error) {
	encMode, err := cbor.EncOptions{
		Sort:          cbor.SortNone,
		ShortestFloat: cbor.ShortestFloatNone,
		BigIntConvert: cbor.BigIntConvertNone,
	}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR encoder: %w", err)
	}

	decMode, err := cbor.DecOptions{
		MaxArrayElements:  1 << 20,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR decoder: %w", err)
	}

	return &Config{encMode: encMode, decMode: decMode}, nil
}

// NewEncoder writes a stream of snapshots to w.
func (c *Config) NewEncoder(w io.Writer) *cbor.Encoder {
	return c.encMode.NewEncoder(w)
}

// NewDecoder reads a stream of snapshots from r.
func (c *Config) NewDecoder(r io.Reader) *cbor.Decoder {
	return c.decMode.NewDecoder(r)
}

// Marshal encodes one batch.
func (c *Config) Marshal(b *decode.Batch) ([]byte, error) {
	return c.encMode.Marshal(SnapshotOf(b))
}

// Unmarshal decodes one batch.
func (c *Config) Unmarshal(data []byte) (*decode.Batch, error) {
	var s Snapshot
	if err := c.decMode.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return s.Batch()
}

// EncodeSnapshot appends one batch to a snapshot stream.
func (c *Config) EncodeSnapshot(enc *cbor.Encoder, b *decode.Batch) error {
	if err := enc.Encode(SnapshotOf(b)); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

// DecodeSnapshot reads the next batch from a snapshot stream, returning
// io.EOF at its end.
func (c *Config) DecodeSnapshot(dec *cbor.Decoder) (*decode.Batch, error) {
	var s Snapshot
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return s.Batch()
}
