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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cardinalhq/bsoncolumns/internal/docsource"
	"github.com/cardinalhq/bsoncolumns/internal/logctx"
	"github.com/cardinalhq/bsoncolumns/internal/pipeline"
)

// BatchFunc receives each decoded batch. The columns belong to the
// callback once it is called.
type BatchFunc func(ctx context.Context, b *Batch) error

// Extract pulls document batches from src until it is exhausted and
// decodes each one, handing the result to fn. Errors from the source, from
// fn and from decoding end the extraction. The source is not closed.
func Extract(ctx context.Context, src docsource.Source, schema *Schema, fn BatchFunc, opts ...Option) (Totals, error) {
	totals := Totals{Result: newResult(schema.Len())}
	logger := logctx.FromContext(ctx)
	start := time.Now()

	for {
		docs, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return totals, fmt.Errorf("failed to read documents: %w", err)
		}

		b, err := DecodeBatch(ctx, schema, docs.Docs(), opts...)
		pipeline.ReturnBatch(docs)
		if err != nil {
			if b != nil {
				totals.Result.Merge(b.Result)
			}
			return totals, err
		}

		totals.Batches++
		totals.Result.Merge(b.Result)
		if err := fn(ctx, b); err != nil {
			return totals, err
		}
	}

	logger.Debug("Extraction finished",
		slog.Int64("batches", totals.Batches),
		slog.Int64("documents", totals.Result.Documents),
		slog.Int64("malformed", totals.Result.Malformed),
		slog.Duration("elapsed", time.Since(start)))
	return totals, nil
}
