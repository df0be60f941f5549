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

// Package decode drives the columnar decode of BSON documents: each
// document is scanned once, every schema column is resolved against the
// scanned fields, and the converted values are written at the document's
// row index in pre-allocated column buffers.
//
// Per-document and per-field problems never fail a batch. They are counted
// in Result, and the affected slots are left invalid. Only schema errors,
// cancellation and internal buffer violations are returned as errors.
package decode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/bsoncolumns/internal/bsonscan"
	"github.com/cardinalhq/bsoncolumns/internal/colbuf"
	"github.com/cardinalhq/bsoncolumns/internal/coltype"
	"github.com/cardinalhq/bsoncolumns/internal/fieldpath"
	"github.com/cardinalhq/bsoncolumns/internal/logctx"
)

// cancelCheckInterval is how many rows a worker decodes between context checks.
const cancelCheckInterval = 256

type options struct {
	workers int
	deep    bool
	logger  *slog.Logger
}

// Option configures a decode call.
type Option func(*options)

// WithWorkers decodes disjoint row ranges on n goroutines. Values below 2
// decode on the calling goroutine.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithDeepValidation bounds-checks every nested document before matching,
// so a corrupt sub-document rejects the whole row even when no column
// reaches into it.
func WithDeepValidation(enabled bool) Option {
	return func(o *options) {
		o.deep = enabled
	}
}

// WithLogger overrides the logger taken from the context.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithConfig applies the worker and validation settings of cfg.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.workers = cfg.Workers
		o.deep = cfg.DeepValidation
	}
}

func buildOptions(ctx context.Context, opts []Option) options {
	o := options{workers: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logctx.FromContext(ctx)
	}
	return o
}

// DecodeBatch decodes docs into freshly allocated columns, one row per
// document in order. On cancellation the partially filled batch is
// returned together with the context error.
func DecodeBatch(ctx context.Context, schema *Schema, docs [][]byte, opts ...Option) (*Batch, error) {
	w := colbuf.NewWriter(schema.Widths(), len(docs))
	return run(ctx, schema, docs, w, buildOptions(ctx, opts))
}

// DecodeInto decodes docs into caller-owned columns. There must be one
// column per schema entry with a matching width, and every column must
// have exactly len(docs) rows.
func DecodeInto(ctx context.Context, schema *Schema, docs [][]byte, cols []*colbuf.Column, opts ...Option) (*Batch, error) {
	if len(cols) != schema.Len() {
		return nil, fmt.Errorf("%w: %d columns for a schema of %d", colbuf.ErrWidthMismatch, len(cols), schema.Len())
	}
	for i, c := range cols {
		if c.Width != schema.columns[i].Width() || c.Rows != len(docs) {
			return nil, fmt.Errorf("%w: column %q is %dx%d, want %dx%d",
				colbuf.ErrWidthMismatch, schema.columns[i].Name, c.Rows, c.Width, len(docs), schema.columns[i].Width())
		}
	}
	w, err := colbuf.NewWriterWithColumns(cols)
	if err != nil {
		return nil, err
	}
	return run(ctx, schema, docs, w, buildOptions(ctx, opts))
}

func run(ctx context.Context, schema *Schema, docs [][]byte, w *colbuf.Writer, o options) (*Batch, error) {
	ranges := w.Partition(o.workers)
	results := make([]Result, len(ranges))
	for i := range results {
		results[i] = newResult(schema.Len())
	}

	var err error
	switch len(ranges) {
	case 0:
	case 1:
		err = decodeRange(ctx, newRowDecoder(schema, w, &results[0], o), docs, ranges[0])
	default:
		g, gctx := errgroup.WithContext(ctx)
		for i, r := range ranges {
			d := newRowDecoder(schema, w, &results[i], o)
			g.Go(func() error {
				return decodeRange(gctx, d, docs, r)
			})
		}
		err = g.Wait()
	}

	merged := newResult(schema.Len())
	for _, r := range results {
		merged.Merge(r)
	}

	b := &Batch{
		Schema:   schema,
		Columns:  w.Columns(),
		Result:   merged,
		Complete: err == nil,
	}
	recordBatch(ctx, schema, merged, b.Complete)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			o.logger.Debug("Decode cancelled",
				slog.Int64("documents", merged.Documents),
				slog.Int("rows", w.Rows()),
				slog.Any("error", ctxErr))
			return b, ctxErr
		}
		return b, err
	}
	return b, nil
}

func decodeRange(ctx context.Context, d *rowDecoder, docs [][]byte, r colbuf.RowRange) error {
	for row := r.Start; row < r.End; row++ {
		if (row-r.Start)%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := d.decodeRow(row, docs[row]); err != nil {
			return err
		}
	}
	return nil
}

type outcome uint8

const (
	outcomeAbsent outcome = iota
	outcomeDecoded
	outcomeTruncated
	outcomeMismatched
)

type cell struct {
	outcome outcome
	value   coltype.Scalar
}

// rowDecoder holds the reusable per-worker state. Nothing in it is shared
// with other workers.
type rowDecoder struct {
	schema *Schema
	w      *colbuf.Writer
	res    *Result
	deep   bool
	logger *slog.Logger

	tokens []bsonscan.Token
	cells  []cell
}

func newRowDecoder(schema *Schema, w *colbuf.Writer, res *Result, o options) *rowDecoder {
	return &rowDecoder{
		schema: schema,
		w:      w,
		res:    res,
		deep:   o.deep,
		logger: o.logger,
		tokens: make([]bsonscan.Token, 0, 32),
		cells:  make([]cell, schema.Len()),
	}
}

// decodeRow resolves every column before writing any, so a document found
// to be malformed part way through never leaves a half-written row.
func (d *rowDecoder) decodeRow(row int, doc []byte) error {
	d.res.Documents++

	toks, err := bsonscan.ScanAll(doc, d.tokens[:0])
	d.tokens = toks
	if err == nil && d.deep {
		err = bsonscan.Validate(doc)
	}
	if err == nil {
		err = d.resolve(toks)
	}
	if err != nil {
		if !errors.Is(err, bsonscan.ErrMalformedDocument) {
			return fmt.Errorf("row %d: %w", row, err)
		}
		return d.rejectRow(row, err)
	}

	for i := range d.cells {
		c := &d.cells[i]
		st := &d.res.Columns[i]
		st.Processed++

		var werr error
		switch c.outcome {
		case outcomeDecoded:
			st.Decoded++
			werr = d.w.Write(i, row, c.value)
		case outcomeTruncated:
			st.Mismatched++
			werr = d.w.WritePartial(i, row, c.value)
		case outcomeMismatched:
			st.Mismatched++
			werr = d.w.MarkInvalid(i, row)
		default:
			st.Absent++
			werr = d.w.MarkInvalid(i, row)
		}
		if werr != nil {
			return fmt.Errorf("row %d column %q: %w", row, d.schema.columns[i].Name, werr)
		}
	}
	return nil
}

func (d *rowDecoder) resolve(toks []bsonscan.Token) error {
	for i := range d.schema.columns {
		col := &d.schema.columns[i]
		c := &d.cells[i]
		*c = cell{}

		tok, err := col.matcher.Match(toks)
		if err == fieldpath.ErrNotFound {
			continue
		}
		if err != nil {
			return err
		}
		if isNull(tok.Type) && col.Type.Kind != coltype.KindTypeTag {
			continue
		}

		v, err := col.desc.Decode(tok)
		switch err {
		case nil:
			c.outcome, c.value = outcomeDecoded, v
		case coltype.ErrValueTooLarge:
			c.outcome, c.value = outcomeTruncated, v
		case coltype.ErrTypeMismatch:
			c.outcome = outcomeMismatched
		default:
			return err
		}
	}
	return nil
}

// rejectRow invalidates every column of a malformed document. Each column
// counts the row as mismatched so the per-column counters stay balanced.
func (d *rowDecoder) rejectRow(row int, cause error) error {
	d.res.Malformed++
	for i := range d.res.Columns {
		d.res.Columns[i].Processed++
		d.res.Columns[i].Mismatched++
	}
	if err := d.w.MarkRowInvalid(row); err != nil {
		return fmt.Errorf("row %d: %w", row, err)
	}
	d.logger.Debug("Skipping malformed document",
		slog.Int("row", row),
		slog.Any("error", cause))
	return nil
}

func isNull(t bsonscan.Type) bool {
	return t == bsonscan.TypeNull || t == bsonscan.TypeUndefined
}
