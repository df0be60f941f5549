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
	"runtime"
)

// Config holds decode settings loaded by the config package.
type Config struct {
	// Workers is the number of goroutines decoding one batch.
	Workers int `mapstructure:"workers"`
	// BatchSize is the number of documents sources group into one batch.
	BatchSize int `mapstructure:"batch_size"`
	// DeepValidation bounds-checks nested documents before matching.
	DeepValidation bool `mapstructure:"deep_validation"`
	// Columns are column declarations in name=path:type form.
	Columns []string `mapstructure:"columns"`
	// SchemaFile is a YAML schema, used when Columns is empty.
	SchemaFile string `mapstructure:"schema_file"`
}

// DefaultBatchSize is the number of documents per batch when unset.
const DefaultBatchSize = 4096

// DefaultConfig returns the default decode configuration.
func DefaultConfig() Config {
	return Config{
		Workers:   runtime.GOMAXPROCS(0),
		BatchSize: DefaultBatchSize,
	}
}

// ColumnSpecs resolves the configured columns, reading SchemaFile when no
// inline declarations are present.
func (c Config) ColumnSpecs() ([]ColumnSpec, error) {
	if len(c.Columns) > 0 || c.SchemaFile == "" {
		return ParseColumnSpecs(c.Columns)
	}
	return LoadSchemaFile(c.SchemaFile)
}
