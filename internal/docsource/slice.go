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
	"context"
	"io"

	"github.com/cardinalhq/bsoncolumns/internal/pipeline"
)

// SliceSource serves documents already in memory.
type SliceSource struct {
	docs      [][]byte
	pos       int
	batchSize int
	closed    bool
}

var _ Source = (*SliceSource)(nil)

// NewSliceSource returns a source yielding docs in batches of batchSize.
func NewSliceSource(docs [][]byte, batchSize int) *SliceSource {
	if batchSize <= 0 {
		batchSize = pipeline.DefaultBatchSize
	}
	return &SliceSource{docs: docs, batchSize: batchSize}
}

func (s *SliceSource) Next(ctx context.Context) (*pipeline.Batch, error) {
	if s.closed || s.pos >= len(s.docs) {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	upper := min(s.pos+s.batchSize, len(s.docs))
	b := pipeline.GetBatch()
	for _, d := range s.docs[s.pos:upper] {
		b.AddDoc(d)
	}
	s.pos = upper
	recordDocuments(ctx, "slice", b.Len())
	return b, nil
}

func (s *SliceSource) Close() error {
	s.closed = true
	return nil
}
