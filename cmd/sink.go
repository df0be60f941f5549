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

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fxamacker/cbor/v2"
	"github.com/olekukonko/tablewriter"

	"github.com/cardinalhq/bsoncolumns/config"
	"github.com/cardinalhq/bsoncolumns/internal/arrowpack"
	cborsnap "github.com/cardinalhq/bsoncolumns/internal/cbor"
	"github.com/cardinalhq/bsoncolumns/internal/coltype"
	"github.com/cardinalhq/bsoncolumns/internal/decode"
	"github.com/cardinalhq/bsoncolumns/internal/docsource"
)

// Output formats accepted by --format.
const (
	formatTable   = "table"
	formatParquet = "parquet"
	formatCBOR    = "cbor"
)

// sink consumes decoded batches.
type sink interface {
	write(ctx context.Context, b *decode.Batch) error
	close() error
}

// tableSink prints rows as tab-aligned text, stopping after head rows
// when head is positive. Each batch is flushed before the next arrives.
type tableSink struct {
	tw      *tabwriter.Writer
	head    int
	printed int
	header  bool
}

func newTableSink(w io.Writer, head int) *tableSink {
	return &tableSink{tw: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0), head: head}
}

func (s *tableSink) write(_ context.Context, b *decode.Batch) error {
	if !s.header {
		names := make([]string, b.Schema.Len())
		for i, c := range b.Schema.Columns() {
			names[i] = strings.ToUpper(c.Name)
		}
		if _, err := fmt.Fprintln(s.tw, strings.Join(names, "\t")); err != nil {
			return err
		}
		s.header = true
	}
	for r := 0; r < b.Rows(); r++ {
		if s.head > 0 && s.printed >= s.head {
			return nil
		}
		if _, err := fmt.Fprintln(s.tw, strings.Join(formatRow(b, r), "\t")); err != nil {
			return err
		}
		s.printed++
	}
	return s.tw.Flush()
}

func (s *tableSink) close() error {
	return s.tw.Flush()
}

// formatRow renders one row, printing invalid slots as null.
func formatRow(b *decode.Batch, row int) []string {
	out := make([]string, len(b.Columns))
	for i, col := range b.Columns {
		if !col.Valid(row) {
			out[i] = "null"
			continue
		}
		out[i] = coltype.Format(b.Schema.Column(i).Type, col.Value(row))
	}
	return out
}

type parquetSink struct {
	f *os.File
	w *arrowpack.Writer
}

func newParquetSink(path string, schema *decode.Schema, cfg arrowpack.WriterConfig) (*parquetSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	w, err := arrowpack.NewWriter(f, schema, cfg)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &parquetSink{f: f, w: w}, nil
}

func (s *parquetSink) write(_ context.Context, b *decode.Batch) error {
	return s.w.Write(b)
}

// close finishes the footer, which also closes the file.
func (s *parquetSink) close() error {
	if err := s.w.Close(); err != nil {
		_ = s.f.Close()
		return err
	}
	return nil
}

type cborSink struct {
	f     *os.File
	codec *cborsnap.Config
	enc   *cbor.Encoder
}

func newCBORSink(path string) (*cborSink, error) {
	codec, err := cborsnap.NewConfig()
	if err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return &cborSink{f: f, codec: codec, enc: codec.NewEncoder(f)}, nil
}

func (s *cborSink) write(_ context.Context, b *decode.Batch) error {
	return s.codec.EncodeSnapshot(s.enc, b)
}

func (s *cborSink) close() error {
	return s.f.Close()
}

// openSink picks the sink for format. Table output goes to w; the file
// formats require outPath.
func openSink(format, outPath string, w io.Writer, head int, schema *decode.Schema, cfg *config.Config) (sink, error) {
	switch format {
	case "", formatTable:
		return newTableSink(w, head), nil
	case formatParquet, formatCBOR:
		if outPath == "" {
			return nil, fmt.Errorf("--out is required for %s output", format)
		}
		if format == formatParquet {
			return newParquetSink(outPath, schema, cfg.Export)
		}
		return newCBORSink(outPath)
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// runExtract decodes every batch from src into out and closes both.
func runExtract(ctx context.Context, src docsource.Source, schema *decode.Schema, cfg decode.Config, out sink) (decode.Totals, error) {
	totals, err := decode.Extract(ctx, src, schema, out.write, decode.WithConfig(cfg))
	return totals, errors.Join(err, out.close(), src.Close())
}

// renderTable draws a bordered table. Cells are passed variadically so
// single-column rows are not mistaken for a row slice.
func renderTable(w io.Writer, header []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	table.Header(cells(header)...)
	for _, r := range rows {
		if err := table.Append(cells(r)...); err != nil {
			return err
		}
	}
	return table.Render()
}

func cells(row []string) []any {
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}

// renderStats prints per-column counters followed by a summary line.
func renderStats(w io.Writer, schema *decode.Schema, totals decode.Totals) error {
	rows := make([][]string, 0, len(totals.Result.Columns))
	for i, st := range totals.Result.Columns {
		c := schema.Column(i)
		rows = append(rows, []string{
			c.Name, c.Path, c.Type.String(),
			strconv.FormatInt(st.Processed, 10),
			strconv.FormatInt(st.Decoded, 10),
			strconv.FormatInt(st.Absent, 10),
			strconv.FormatInt(st.Mismatched, 10),
		})
	}
	if err := renderTable(w, []string{"column", "path", "type", "processed", "decoded", "absent", "mismatched"}, rows); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d documents in %d batches, %d malformed\n",
		totals.Result.Documents, totals.Batches, totals.Result.Malformed)
	return err
}
