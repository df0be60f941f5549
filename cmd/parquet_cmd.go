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
	"io"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/bsoncolumns/internal/parquetcat"
)

func init() {
	rootCmd.AddCommand(newParquetCmd())
}

func newParquetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parquet",
		Short: "Inspect exported Parquet files",
	}
	cmd.AddCommand(newParquetCatCmd())
	cmd.AddCommand(newParquetSchemaCmd())
	return cmd
}

func newParquetCatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat",
		Short: "Output parquet file contents as JSON lines",
		RunE: func(c *cobra.Command, _ []string) error {
			filename, err := c.Flags().GetString("file")
			if err != nil {
				return fmt.Errorf("failed to get file flag: %w", err)
			}
			limit, err := c.Flags().GetInt("limit")
			if err != nil {
				return fmt.Errorf("failed to get limit flag: %w", err)
			}
			rawBytes, err := c.Flags().GetBool("raw-bytes")
			if err != nil {
				return fmt.Errorf("failed to get raw-bytes flag: %w", err)
			}
			return runParquetCat(c.OutOrStdout(), filename, limit, rawBytes)
		},
	}

	cmd.Flags().String("file", "", "Parquet file to read")
	if err := cmd.MarkFlagRequired("file"); err != nil {
		panic(fmt.Errorf("failed to mark file flag as required: %w", err))
	}
	cmd.Flags().Int("limit", 0, "Maximum number of rows to output (0 for unlimited)")
	cmd.Flags().Bool("raw-bytes", false, "Show byte columns as '[size]byte' instead of hex")
	return cmd
}

func newParquetSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the parquet schema and row count",
		RunE: func(c *cobra.Command, _ []string) error {
			filename, err := c.Flags().GetString("file")
			if err != nil {
				return fmt.Errorf("failed to get file flag: %w", err)
			}
			return runParquetSchema(c.OutOrStdout(), filename)
		},
	}

	cmd.Flags().String("file", "", "Parquet file to read")
	if err := cmd.MarkFlagRequired("file"); err != nil {
		panic(fmt.Errorf("failed to mark file flag as required: %w", err))
	}
	return cmd
}

func runParquetCat(w io.Writer, filename string, limit int, rawBytes bool) error {
	pf, closer, err := parquetcat.Open(filename)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	_, err = parquetcat.Cat(w, pf, limit, rawBytes)
	return err
}

func runParquetSchema(w io.Writer, filename string) error {
	pf, closer, err := parquetcat.Open(filename)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	_, err = fmt.Fprintf(w, "%s\nrows: %d\n", parquetcat.SchemaString(pf), parquetcat.NumRows(pf))
	return err
}
