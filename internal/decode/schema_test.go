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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/bsoncolumns/internal/coltype"
	"github.com/cardinalhq/bsoncolumns/internal/fieldpath"
)

func TestParseColumnSpec(t *testing.T) {
	tests := []struct {
		decl string
		want ColumnSpec
	}{
		{"cpu=stats.cpu:float64", ColumnSpec{Name: "cpu", Path: "stats.cpu", Type: "float64"}},
		{"stats.cpu:float64", ColumnSpec{Name: "stats.cpu", Path: "stats.cpu", Type: "float64"}},
		{" host=meta.host:string:32 ", ColumnSpec{Name: "host", Path: "meta.host", Type: "string:32"}},
		{"first=items.*.id:objectid", ColumnSpec{Name: "first", Path: "items.*.id", Type: "objectid"}},
	}
	for _, tt := range tests {
		t.Run(tt.decl, func(t *testing.T) {
			got, err := ParseColumnSpec(tt.decl)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "cpu", "cpu=", "=x:int32", "x:", ":int32"} {
		_, err := ParseColumnSpec(bad)
		assert.ErrorIs(t, err, ErrInvalidSchema, "decl %q", bad)
	}
}

func TestColumnSpecStringRoundTrip(t *testing.T) {
	spec := ColumnSpec{Name: "n", Path: "a.b", Type: "string:4"}
	got, err := ParseColumnSpec(spec.String())
	require.NoError(t, err)
	assert.Equal(t, spec, got)
}

func TestCompile(t *testing.T) {
	s := schemaOf(t, "a=x:int32", "b=y.z:string:16", "c=x:type")
	require.Equal(t, 3, s.Len())
	assert.Equal(t, []int{4, 16, 1}, s.Widths())

	i, ok := s.Index("b")
	require.True(t, ok)
	assert.Equal(t, 1, i)
	assert.Equal(t, coltype.Sized(coltype.KindString, 16), s.Column(i).Type)

	_, ok = s.Index("missing")
	assert.False(t, ok)

	assert.Equal(t, []ColumnSpec{
		{Name: "a", Path: "x", Type: "int32"},
		{Name: "b", Path: "y.z", Type: "string:16"},
		{Name: "c", Path: "x", Type: "type"},
	}, s.Specs())
}

func TestCompileReportsEveryProblem(t *testing.T) {
	specs := []ColumnSpec{
		{Name: "ok", Path: "a", Type: "int32"},
		{Name: "badpath", Path: "a..b", Type: "int32"},
		{Name: "badtype", Path: "a", Type: "complex128"},
		{Name: "nowidth", Path: "a", Type: "string"},
		{Name: "ok", Path: "b", Type: "int64"},
	}
	_, err := Compile(specs)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSchema)
	assert.ErrorIs(t, err, fieldpath.ErrInvalidPath)
	assert.ErrorIs(t, err, coltype.ErrUnknownType)

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	require.Len(t, merr.Errors, 4)

	var names []string
	for _, e := range merr.Errors {
		var ce *ColumnError
		require.True(t, errors.As(e, &ce))
		names = append(names, ce.Column)
	}
	assert.Equal(t, []string{"badpath", "badtype", "nowidth", "ok"}, names)
	assert.Contains(t, err.Error(), "duplicate column name")
}

func TestCompileEmpty(t *testing.T) {
	_, err := Compile(nil)
	assert.ErrorIs(t, err, ErrInvalidSchema)
	assert.Panics(t, func() { MustCompile() })
}

func TestFingerprint(t *testing.T) {
	a := schemaOf(t, "a=x:int32", "b=y:string:8")
	b := schemaOf(t, "a=x:int32", "b=y:string:8")
	c := schemaOf(t, "a=x:int32", "b=y:string:9")
	d := schemaOf(t, "b=y:string:8", "a=x:int32")

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), d.Fingerprint())
}

func TestProjection(t *testing.T) {
	s := schemaOf(t,
		"a=meta.host:string:8",
		"b=meta:bson:64",
		"c=meta.host:type",
		"d=readings.*.v:int32",
		"e=metadata:length",
		"f=_id:objectid",
	)
	assert.Equal(t, []string{"meta", "readings", "metadata", "_id"}, s.Projection())
}

func TestProjectionStopsAtArrayIndex(t *testing.T) {
	s := schemaOf(t,
		"a=samples.2:int32",
		"b=samples.0.v:int32",
		"c=stats.cpu:float64",
	)
	assert.Equal(t, []string{"samples", "stats.cpu"}, s.Projection())
}

func TestReadSchemaYAML(t *testing.T) {
	doc := `
columns:
  - name: cpu
    path: stats.cpu
    type: float64
  - path: host
    type: string:32
`
	specs, err := ReadSchemaYAML(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, []ColumnSpec{
		{Name: "cpu", Path: "stats.cpu", Type: "float64"},
		{Name: "host", Path: "host", Type: "string:32"},
	}, specs)

	out, err := MarshalSchemaYAML(specs)
	require.NoError(t, err)
	again, err := ReadSchemaYAML(strings.NewReader(string(out)))
	require.NoError(t, err)
	assert.Equal(t, specs, again)

	_, err = ReadSchemaYAML(strings.NewReader("columns:\n  - nmae: x\n"))
	assert.Error(t, err, "unknown keys are rejected")

	_, err = ReadSchemaYAML(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrInvalidSchema)
}

func TestConfigColumnSpecs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte("columns:\n  - {name: n, path: a.b, type: int64}\n"), 0o644))

	cfg := DefaultConfig()
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
	assert.Positive(t, cfg.Workers)

	cfg.SchemaFile = path
	specs, err := cfg.ColumnSpecs()
	require.NoError(t, err)
	assert.Equal(t, []ColumnSpec{{Name: "n", Path: "a.b", Type: "int64"}}, specs)

	cfg.Columns = []string{"x=y:bool"}
	specs, err = cfg.ColumnSpecs()
	require.NoError(t, err)
	assert.Equal(t, []ColumnSpec{{Name: "x", Path: "y", Type: "bool"}}, specs)
}

func TestResultCheck(t *testing.T) {
	r := newResult(2)
	r.Documents = 2
	r.Columns[0] = ColumnStats{Processed: 2, Decoded: 1, Absent: 1}
	r.Columns[1] = ColumnStats{Processed: 2, Mismatched: 2}
	assert.NoError(t, r.Check())

	var total Result
	total.Merge(r)
	total.Merge(r)
	assert.Equal(t, int64(4), total.Documents)
	assert.Equal(t, ColumnStats{Processed: 4, Decoded: 2, Absent: 2}, total.Columns[0])
	assert.NoError(t, total.Check())

	r.Columns[1].Mismatched = 1
	assert.ErrorContains(t, r.Check(), "unbalanced")

	r.Columns[1] = ColumnStats{Processed: 1, Decoded: 1}
	assert.ErrorContains(t, r.Check(), "processed 1 of 2")
}
