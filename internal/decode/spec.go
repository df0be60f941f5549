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
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ColumnSpec is the uncompiled declaration of one output column.
// Type uses the declaration language of coltype.ParseType, e.g. "string:16".
type ColumnSpec struct {
	Name string `yaml:"name" mapstructure:"name"`
	Path string `yaml:"path" mapstructure:"path"`
	Type string `yaml:"type" mapstructure:"type"`
}

func (s ColumnSpec) String() string {
	return s.Name + "=" + s.Path + ":" + s.Type
}

// ParseColumnSpec parses "name=path:type[:width]". The "name=" prefix is
// optional and defaults to the path.
func ParseColumnSpec(decl string) (ColumnSpec, error) {
	decl = strings.TrimSpace(decl)
	name, rest, named := strings.Cut(decl, "=")
	if !named {
		rest = decl
	}

	path, typ, ok := strings.Cut(rest, ":")
	if !ok || path == "" || typ == "" {
		return ColumnSpec{}, fmt.Errorf("%w: %q is not of the form name=path:type", ErrInvalidSchema, decl)
	}
	if !named {
		name = path
	}
	if name == "" {
		return ColumnSpec{}, fmt.Errorf("%w: %q has an empty column name", ErrInvalidSchema, decl)
	}
	return ColumnSpec{Name: name, Path: path, Type: typ}, nil
}

// ParseColumnSpecs parses each declaration in order.
func ParseColumnSpecs(decls []string) ([]ColumnSpec, error) {
	out := make([]ColumnSpec, 0, len(decls))
	for _, d := range decls {
		spec, err := ParseColumnSpec(d)
		if err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	return out, nil
}

type schemaFile struct {
	Columns []ColumnSpec `yaml:"columns"`
}

// ReadSchemaYAML reads column specs from a YAML document of the form
//
//	columns:
//	  - name: cpu
//	    path: stats.cpu
//	    type: float64
func ReadSchemaYAML(r io.Reader) ([]ColumnSpec, error) {
	var f schemaFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty schema file", ErrInvalidSchema)
		}
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	for i := range f.Columns {
		if f.Columns[i].Name == "" {
			f.Columns[i].Name = f.Columns[i].Path
		}
	}
	return f.Columns, nil
}

// LoadSchemaFile reads a YAML schema file from disk.
func LoadSchemaFile(path string) ([]ColumnSpec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	return ReadSchemaYAML(bytes.NewReader(b))
}

// MarshalSchemaYAML renders specs in the format ReadSchemaYAML accepts.
func MarshalSchemaYAML(specs []ColumnSpec) ([]byte, error) {
	return yaml.Marshal(schemaFile{Columns: specs})
}
