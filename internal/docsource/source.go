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

// Package docsource provides sources of raw BSON documents: dump files
// (optionally compressed), in-memory slices and MongoDB cursors. Sources
// only frame documents. Validating their contents is left to the decoder.
package docsource

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/bsoncolumns/internal/pipeline"
)

// Source yields batches of documents.
// Next returns (nil, io.EOF) when the source is exhausted. Returned
// batches belong to the caller, who hands them back with
// pipeline.ReturnBatch when done.
type Source interface {
	Next(ctx context.Context) (*pipeline.Batch, error)
	Close() error
}

var (
	// ErrTruncatedStream means the stream ended inside a document.
	ErrTruncatedStream = errors.New("truncated document stream")

	// ErrInvalidFrame means a document length prefix is out of range.
	ErrInvalidFrame = errors.New("invalid document frame")
)

var documentsReadCounter otelmetric.Int64Counter

func init() {
	meter := otel.Meter("github.com/cardinalhq/bsoncolumns/internal/docsource")

	var err error
	documentsReadCounter, err = meter.Int64Counter(
		"bsoncolumns.source.documents.read",
		otelmetric.WithDescription("Number of documents read from document sources"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create source.documents.read counter: %w", err))
	}
}

func recordDocuments(ctx context.Context, source string, n int) {
	if n > 0 {
		documentsReadCounter.Add(ctx, int64(n), otelmetric.WithAttributes(attribute.String("source", source)))
	}
}
