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

// Package pipeline provides pooled batches of raw documents passed from
// document sources to the decoder.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	meter = otel.Meter("github.com/cardinalhq/bsoncolumns/internal/pipeline")

	bufferpoolGetsCounter metric.Int64Counter
	bufferpoolPutsCounter metric.Int64Counter
)

func init() {
	var err error

	bufferpoolGetsCounter, err = meter.Int64Counter(
		"bsoncolumns.pipeline.bufferpool.gets",
		metric.WithDescription("Total number of gets from the batch pool"),
	)
	if err != nil {
		panic(err)
	}

	bufferpoolPutsCounter, err = meter.Int64Counter(
		"bsoncolumns.pipeline.bufferpool.puts",
		metric.WithDescription("Total number of puts back to the batch pool"),
	)
	if err != nil {
		panic(err)
	}
}

// DefaultBatchSize is the document capacity of pooled batches.
const DefaultBatchSize = 4096

// defaultArenaSize is the initial byte capacity of a pooled batch arena.
const defaultArenaSize = 1 << 20

type span struct {
	off, end int
}

// Batch is a group of documents held back to back in one arena.
// A Batch is owned by the source that returns it; consumers must not keep
// references to document bytes after returning the batch to the pool.
type Batch struct {
	arena []byte
	spans []span
	// docs caches the per-document slices handed out by Docs.
	docs [][]byte
}

// batchPool provides memory-efficient batch reuse.
type batchPool struct {
	pool  sync.Pool
	sz    int
	alloc atomic.Uint64
	gets  atomic.Uint64
	puts  atomic.Uint64
}

func newBatchPool(batchSize int) *batchPool {
	p := &batchPool{sz: batchSize}
	p.pool = sync.Pool{
		New: func() any {
			p.alloc.Add(1)
			return &Batch{
				arena: make([]byte, 0, defaultArenaSize),
				spans: make([]span, 0, batchSize),
			}
		},
	}
	return p
}

// Get returns an empty batch from the pool.
func (p *batchPool) Get() *Batch {
	p.gets.Add(1)
	bufferpoolGetsCounter.Add(context.Background(), 1)
	b := p.pool.Get().(*Batch)
	b.Reset()
	return b
}

// Put returns a batch to the pool for reuse.
func (p *batchPool) Put(b *Batch) {
	p.puts.Add(1)
	bufferpoolPutsCounter.Add(context.Background(), 1)
	// Drop oversized batches to avoid unbounded growth
	if cap(b.spans) > p.sz*4 || cap(b.arena) > defaultArenaSize*64 {
		return
	}
	b.Reset()
	p.pool.Put(b)
}

// BatchPoolStats contains counters for batch pool usage.
type BatchPoolStats struct {
	Allocations uint64
	Gets        uint64
	Puts        uint64
}

// LeakedBatches returns the number of batches that were gotten but never returned.
func (s BatchPoolStats) LeakedBatches() uint64 {
	return s.Gets - s.Puts
}

func (p *batchPool) stats() BatchPoolStats {
	return BatchPoolStats{
		Allocations: p.alloc.Load(),
		Gets:        p.gets.Load(),
		Puts:        p.puts.Load(),
	}
}

var globalBatchPool = newBatchPool(DefaultBatchSize)

// GetBatch returns an empty batch from the global pool.
func GetBatch() *Batch {
	return globalBatchPool.Get()
}

// ReturnBatch returns a batch to the global pool.
// The batch must not be used after calling this function.
func ReturnBatch(batch *Batch) {
	if batch != nil {
		globalBatchPool.Put(batch)
	}
}

// GlobalBatchPoolStats returns usage counters for the global batch pool.
func GlobalBatchPoolStats() BatchPoolStats {
	return globalBatchPool.stats()
}

// CopyBatch returns a pooled deep copy of in.
func CopyBatch(in *Batch) *Batch {
	out := globalBatchPool.Get()
	out.arena = append(out.arena, in.arena...)
	out.spans = append(out.spans, in.spans...)
	return out
}

// Reset empties the batch, keeping its memory.
func (b *Batch) Reset() {
	b.arena = b.arena[:0]
	b.spans = b.spans[:0]
	clear(b.docs)
	b.docs = b.docs[:0]
}

// Len returns the number of documents in the batch.
func (b *Batch) Len() int {
	return len(b.spans)
}

// Bytes is the total size of the documents in the batch.
func (b *Batch) Bytes() int {
	return len(b.arena)
}

// Get returns document i, or nil for an invalid index. The slice aliases
// the batch arena.
func (b *Batch) Get(i int) []byte {
	if i < 0 || i >= len(b.spans) {
		return nil
	}
	s := b.spans[i]
	return b.arena[s.off:s.end:s.end]
}

// AddDoc copies doc into the batch.
func (b *Batch) AddDoc(doc []byte) {
	off := len(b.arena)
	b.arena = append(b.arena, doc...)
	b.spans = append(b.spans, span{off: off, end: len(b.arena)})
}

// AddDocFunc appends a document of n bytes filled in by fill, which can
// read straight into the arena. If fill fails the document is discarded.
func (b *Batch) AddDocFunc(n int, fill func(dst []byte) error) error {
	off := len(b.arena)
	b.arena = grow(b.arena, n)
	if err := fill(b.arena[off : off+n]); err != nil {
		b.arena = b.arena[:off]
		return err
	}
	b.spans = append(b.spans, span{off: off, end: off + n})
	return nil
}

// Docs returns every document in order. The outer slice is reused by the
// batch and the documents alias its arena.
func (b *Batch) Docs() [][]byte {
	b.docs = b.docs[:0]
	for i := range b.spans {
		b.docs = append(b.docs, b.Get(i))
	}
	return b.docs
}

func grow(buf []byte, n int) []byte {
	need := len(buf) + n
	if need <= cap(buf) {
		return buf[:need]
	}
	newCap := 2 * cap(buf)
	if newCap < need {
		newCap = need
	}
	out := make([]byte, need, newCap)
	copy(out, buf)
	return out
}
