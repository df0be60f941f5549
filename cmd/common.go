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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/bsoncolumns/config"
	"github.com/cardinalhq/bsoncolumns/internal/decode"
	"github.com/cardinalhq/bsoncolumns/internal/docsource"
)

func addSchemaFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayP("column", "c", nil, "Column declaration name=path:type[:width]; repeatable")
	cmd.Flags().String("schema", "", "YAML schema file listing the columns")
}

func addDecodeFlags(cmd *cobra.Command) {
	cmd.Flags().Int("workers", 0, "Goroutines per batch (default from config, GOMAXPROCS)")
	cmd.Flags().Int("batch-size", 0, "Documents per batch (default from config)")
	cmd.Flags().Bool("deep-validation", false, "Bounds-check nested documents before matching")
}

func addStreamFlags(cmd *cobra.Command) {
	cmd.Flags().String("compression", "", "Dump compression: auto, none, gzip or zstd")
}

// loadConfig reads the config file and applies any decode flags the user set.
func loadConfig(c *cobra.Command) (*config.Config, error) {
	path, err := c.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if c.Flags().Changed("workers") {
		if cfg.Decode.Workers, err = c.Flags().GetInt("workers"); err != nil {
			return nil, fmt.Errorf("failed to get workers flag: %w", err)
		}
	}
	if c.Flags().Changed("batch-size") {
		if cfg.Decode.BatchSize, err = c.Flags().GetInt("batch-size"); err != nil {
			return nil, fmt.Errorf("failed to get batch-size flag: %w", err)
		}
	}
	if c.Flags().Changed("deep-validation") {
		if cfg.Decode.DeepValidation, err = c.Flags().GetBool("deep-validation"); err != nil {
			return nil, fmt.Errorf("failed to get deep-validation flag: %w", err)
		}
	}
	if c.Flags().Changed("compression") {
		if cfg.Stream.Compression, err = c.Flags().GetString("compression"); err != nil {
			return nil, fmt.Errorf("failed to get compression flag: %w", err)
		}
	}
	return cfg, nil
}

// resolveSchema compiles the columns given by --column, then --schema,
// then the config file.
func resolveSchema(c *cobra.Command, cfg *config.Config) (*decode.Schema, error) {
	columns, err := c.Flags().GetStringArray("column")
	if err != nil {
		return nil, fmt.Errorf("failed to get column flag: %w", err)
	}
	schemaFile, err := c.Flags().GetString("schema")
	if err != nil {
		return nil, fmt.Errorf("failed to get schema flag: %w", err)
	}

	dc := cfg.Decode
	switch {
	case len(columns) > 0:
		dc.Columns = columns
	case schemaFile != "":
		dc.Columns, dc.SchemaFile = nil, schemaFile
	}

	specs, err := dc.ColumnSpecs()
	if err != nil {
		return nil, err
	}
	return decode.Compile(specs)
}

func openDump(path string, cfg *config.Config) (*docsource.StreamReader, error) {
	opts, err := cfg.Stream.Options()
	if err != nil {
		return nil, err
	}
	return docsource.OpenFile(path, cfg.Decode.BatchSize, opts...)
}
