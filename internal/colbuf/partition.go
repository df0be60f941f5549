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

package colbuf

// RowRange is the half-open row interval [Start, End).
type RowRange struct {
	Start int
	End   int
}

// Len is the number of rows in the range.
func (r RowRange) Len() int {
	return r.End - r.Start
}

// Partition splits rows into at most parts contiguous, disjoint, non-empty
// ranges covering every row. Earlier ranges get the remainder rows.
func Partition(rows, parts int) []RowRange {
	if rows <= 0 {
		return nil
	}
	if parts < 1 {
		parts = 1
	}
	if parts > rows {
		parts = rows
	}

	out := make([]RowRange, parts)
	size, rem := rows/parts, rows%parts
	start := 0
	for i := range out {
		n := size
		if i < rem {
			n++
		}
		out[i] = RowRange{Start: start, End: start + n}
		start += n
	}
	return out
}

// Partition splits the writer's rows, see the package function.
func (w *Writer) Partition(parts int) []RowRange {
	return Partition(w.rows, parts)
}
