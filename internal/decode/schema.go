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
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/go-multierror"

	"github.com/cardinalhq/bsoncolumns/internal/coltype"
	"github.com/cardinalhq/bsoncolumns/internal/fieldpath"
)

// Column is one compiled schema entry.
type Column struct {
	Name string
	Path string
	Type coltype.Type

	matcher *fieldpath.Matcher
	desc    coltype.Descriptor
}

// Width is the slot size of the column buffer.
func (c Column) Width() int {
	return c.Type.Width
}

// Schema is an ordered, immutable list of compiled columns.
// It is safe to share between goroutines.
type Schema struct {
	columns     []Column
	index       map[string]int
	fingerprint uint64
}

// Compile validates and compiles every spec. All problems are reported
// together; the returned error matches ErrInvalidSchema, and
// fieldpath.ErrInvalidPath when a path is to blame.
func Compile(specs []ColumnSpec) (*Schema, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no columns", ErrInvalidSchema)
	}

	s := &Schema{
		columns: make([]Column, 0, len(specs)),
		index:   make(map[string]int, len(specs)),
	}

	var errs *multierror.Error
	for _, spec := range specs {
		col, err := compileColumn(spec)
		if err == nil {
			if _, dup := s.index[spec.Name]; dup {
				err = errors.New("duplicate column name")
			}
		}
		if err != nil {
			errs = multierror.Append(errs, &ColumnError{Column: spec.Name, Err: err})
			continue
		}
		s.index[col.Name] = len(s.columns)
		s.columns = append(s.columns, col)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	s.fingerprint = fingerprint(s.columns)
	return s, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(specs ...ColumnSpec) *Schema {
	s, err := Compile(specs)
	if err != nil {
		panic(err)
	}
	return s
}

func compileColumn(spec ColumnSpec) (Column, error) {
	if spec.Name == "" {
		return Column{}, errors.New("empty column name")
	}
	m, err := fieldpath.Compile(spec.Path)
	if err != nil {
		return Column{}, err
	}
	t, err := coltype.ParseType(spec.Type)
	if err != nil {
		return Column{}, err
	}
	desc, ok := coltype.Lookup(t)
	if !ok {
		return Column{}, fmt.Errorf("%w: %s", coltype.ErrUnknownType, t)
	}
	return Column{Name: spec.Name, Path: spec.Path, Type: t, matcher: m, desc: desc}, nil
}

func fingerprint(cols []Column) uint64 {
	d := xxhash.New()
	for _, c := range cols {
		_, _ = d.WriteString(c.Name)
		_, _ = d.Write([]byte{0})
		_, _ = d.WriteString(c.Path)
		_, _ = d.Write([]byte{0})
		_, _ = d.WriteString(c.Type.String())
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}

// Len is the number of columns.
func (s *Schema) Len() int {
	return len(s.columns)
}

// Column returns the i'th column.
func (s *Schema) Column(i int) Column {
	return s.columns[i]
}

// Columns returns a copy of the compiled columns.
func (s *Schema) Columns() []Column {
	return append([]Column(nil), s.columns...)
}

// Index returns the position of the named column.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Widths returns the slot width of every column, in order.
func (s *Schema) Widths() []int {
	out := make([]int, len(s.columns))
	for i, c := range s.columns {
		out[i] = c.Width()
	}
	return out
}

// Specs returns the normalized declarations the schema was compiled from.
func (s *Schema) Specs() []ColumnSpec {
	out := make([]ColumnSpec, len(s.columns))
	for i, c := range s.columns {
		out[i] = ColumnSpec{Name: c.Name, Path: c.Path, Type: c.Type.String()}
	}
	return out
}

// Fingerprint identifies the column layout. Two schemas with the same
// names, paths and types in the same order share a fingerprint.
func (s *Schema) Fingerprint() uint64 {
	return s.fingerprint
}

// Projection lists the field paths a server needs to return for this
// schema, in column order. Duplicates and paths nested under another listed
// path are dropped, since servers reject overlapping projections.
func (s *Schema) Projection() []string {
	paths := make([]string, 0, len(s.columns))
	for _, c := range s.columns {
		paths = append(paths, c.matcher.Projection())
	}

	out := make([]string, 0, len(paths))
	for i, p := range paths {
		covered := false
		for j, q := range paths {
			if (p == q && j < i) || strings.HasPrefix(p, q+".") {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, p)
		}
	}
	return out
}
