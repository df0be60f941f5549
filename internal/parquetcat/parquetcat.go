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

// Package parquetcat prints the rows of exported Parquet files.
package parquetcat

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
)

const readChunk = 1000

// Open opens a Parquet file from disk. The returned closer releases the
// underlying file.
func Open(path string) (*parquet.File, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	return pf, f, nil
}

// ReadRows returns up to limit rows keyed by column name, or every row
// when limit is not positive.
func ReadRows(r io.ReaderAt, size int64, limit int) ([]map[string]any, error) {
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	var out []map[string]any
	err = eachRow(pf, limit, func(row map[string]any) error {
		out = append(out, row)
		return nil
	})
	return out, err
}

// Cat writes up to limit rows to w as JSON lines. Byte values are hex
// encoded unless rawBytes is set, in which case only their length is shown.
func Cat(w io.Writer, pf *parquet.File, limit int, rawBytes bool) (int, error) {
	enc := json.NewEncoder(w)
	n := 0
	err := eachRow(pf, limit, func(row map[string]any) error {
		if err := enc.Encode(displayRow(row, rawBytes)); err != nil {
			return fmt.Errorf("error marshaling row to JSON: %w", err)
		}
		n++
		return nil
	})
	return n, err
}

// NumRows reports the row count recorded in the footer.
func NumRows(pf *parquet.File) int64 {
	return pf.NumRows()
}

// SchemaString renders the Parquet schema of the file.
func SchemaString(pf *parquet.File) string {
	return pf.Schema().String()
}

func eachRow(pf *parquet.File, limit int, fn func(map[string]any) error) error {
	reader := parquet.NewGenericReader[map[string]any](pf, pf.Schema())
	defer func() { _ = reader.Close() }()

	seen := 0
	for limit <= 0 || seen < limit {
		want := readChunk
		if limit > 0 && limit-seen < want {
			want = limit - seen
		}
		rows := make([]map[string]any, want)
		for i := range rows {
			rows[i] = make(map[string]any)
		}

		n, err := reader.Read(rows)
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("error reading parquet rows: %w", err)
		}
		for _, row := range rows[:n] {
			if ferr := fn(row); ferr != nil {
				return ferr
			}
		}
		seen += n
		if n == 0 || errors.Is(err, io.EOF) {
			break
		}
	}
	return nil
}

func displayRow(row map[string]any, rawBytes bool) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		b, ok := v.([]byte)
		switch {
		case !ok:
			out[k] = v
		case rawBytes:
			out[k] = fmt.Sprintf("[%d]byte", len(b))
		default:
			out[k] = hex.EncodeToString(b)
		}
	}
	return out
}
