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
	"io"
	"sync"

	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/klauspost/compress/zstd"
)

// zstdCodec replaces the stock Parquet zstd codec. Encoders are pooled per
// level, since the stock codec allocates a fresh encoder for every page.
type zstdCodec struct {
	pools sync.Map // zstd.EncoderLevel -> *sync.Pool

	decOnce sync.Once
	dec     *zstd.Decoder

	encOnce sync.Once
	enc     *zstd.Encoder
}

var _ compress.Codec = (*zstdCodec)(nil)

var sharedZstd = &zstdCodec{}

func init() {
	compress.RegisterCodec(compress.Codecs.Zstd, sharedZstd)
}

func encoderLevel(level int) zstd.EncoderLevel {
	if level == compress.DefaultCompressionLevel {
		return zstd.SpeedDefault
	}
	return zstd.EncoderLevelFromZstd(level)
}

func (z *zstdCodec) pool(level zstd.EncoderLevel) *sync.Pool {
	if p, ok := z.pools.Load(level); ok {
		return p.(*sync.Pool)
	}
	p, _ := z.pools.LoadOrStore(level, &sync.Pool{
		New: func() any {
			enc, _ := zstd.NewWriter(nil, zstd.WithZeroFrames(true), zstd.WithEncoderLevel(level))
			return enc
		},
	})
	return p.(*sync.Pool)
}

func (z *zstdCodec) decoder() *zstd.Decoder {
	z.decOnce.Do(func() {
		z.dec, _ = zstd.NewReader(nil)
	})
	return z.dec
}

func (z *zstdCodec) Decode(dst, src []byte) []byte {
	out, err := z.decoder().DecodeAll(src, dst[:0])
	if err != nil {
		panic(err)
	}
	return out
}

func (z *zstdCodec) Encode(dst, src []byte) []byte {
	z.encOnce.Do(func() {
		z.enc, _ = zstd.NewWriter(nil, zstd.WithZeroFrames(true))
	})
	return z.enc.EncodeAll(src, dst[:0])
}

func (z *zstdCodec) EncodeLevel(dst, src []byte, level int) []byte {
	lvl := encoderLevel(level)
	p := z.pool(lvl)
	enc := p.Get().(*zstd.Encoder)
	defer p.Put(enc)
	return enc.EncodeAll(src, dst[:0])
}

// CompressBound follows ZSTD_COMPRESSBOUND.
func (z *zstdCodec) CompressBound(n int64) int64 {
	var extra int64
	if n < 128<<10 {
		extra = ((128 << 10) - n) >> 11
	}
	return n + (n >> 8) + extra
}

func (z *zstdCodec) NewReader(r io.Reader) io.ReadCloser {
	dec, _ := zstd.NewReader(r)
	return dec.IOReadCloser()
}

func (z *zstdCodec) NewWriter(w io.Writer) io.WriteCloser {
	wc, _ := z.NewWriterLevel(w, compress.DefaultCompressionLevel)
	return wc
}

func (z *zstdCodec) NewWriterLevel(w io.Writer, level int) (io.WriteCloser, error) {
	lvl := encoderLevel(level)
	enc := z.pool(lvl).Get().(*zstd.Encoder)
	enc.Reset(w)
	return &pooledWriter{Encoder: enc, pool: z.pool(lvl)}, nil
}

// pooledWriter hands its encoder back to the pool on Close.
type pooledWriter struct {
	*zstd.Encoder
	pool *sync.Pool
}

func (w *pooledWriter) Close() error {
	err := w.Encoder.Close()
	w.Encoder.Reset(nil)
	w.pool.Put(w.Encoder)
	return err
}
