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
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	documentsCounter otelmetric.Int64Counter
	malformedCounter otelmetric.Int64Counter
	valuesCounter    otelmetric.Int64Counter
	batchesCounter   otelmetric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/bsoncolumns/internal/decode")

	var err error
	documentsCounter, err = meter.Int64Counter(
		"bsoncolumns.decode.documents",
		otelmetric.WithDescription("Number of documents run through the columnar decoder"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create decode.documents counter: %w", err))
	}

	malformedCounter, err = meter.Int64Counter(
		"bsoncolumns.decode.documents.malformed",
		otelmetric.WithDescription("Number of documents rejected by the scanner as malformed"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create decode.documents.malformed counter: %w", err))
	}

	valuesCounter, err = meter.Int64Counter(
		"bsoncolumns.decode.values",
		otelmetric.WithDescription("Number of column values by outcome and column type"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create decode.values counter: %w", err))
	}

	batchesCounter, err = meter.Int64Counter(
		"bsoncolumns.decode.batches",
		otelmetric.WithDescription("Number of batches decoded, by completion"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create decode.batches counter: %w", err))
	}
}

func recordBatch(ctx context.Context, s *Schema, r Result, complete bool) {
	documentsCounter.Add(ctx, r.Documents)
	if r.Malformed > 0 {
		malformedCounter.Add(ctx, r.Malformed)
	}
	for i, c := range r.Columns {
		typ := attribute.String("column_type", s.columns[i].Type.Kind.String())
		if c.Decoded > 0 {
			valuesCounter.Add(ctx, c.Decoded, otelmetric.WithAttributes(typ, attribute.String("outcome", "decoded")))
		}
		if c.Absent > 0 {
			valuesCounter.Add(ctx, c.Absent, otelmetric.WithAttributes(typ, attribute.String("outcome", "absent")))
		}
		if c.Mismatched > 0 {
			valuesCounter.Add(ctx, c.Mismatched, otelmetric.WithAttributes(typ, attribute.String("outcome", "mismatched")))
		}
	}
	batchesCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.Bool("complete", complete)))
}
