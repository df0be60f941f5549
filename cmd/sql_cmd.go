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
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/bsoncolumns/internal/duckdbx"
)

func init() {
	rootCmd.AddCommand(newSQLCmd())
}

func newSQLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sql <query>",
		Short: "Query exported Parquet files with DuckDB",
		Long: `Creates a view over the given Parquet files and runs one SQL query
against it, e.g.

  bsoncolumns sql -f out.parquet "SELECT host, count(*) FROM docs GROUP BY host"`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			files, err := c.Flags().GetStringArray("file")
			if err != nil {
				return fmt.Errorf("failed to get file flag: %w", err)
			}
			view, err := c.Flags().GetString("view")
			if err != nil {
				return fmt.Errorf("failed to get view flag: %w", err)
			}

			return runCommand("sql", func(ctx context.Context) error {
				return runSQL(ctx, cfg.DuckDB, view, files, args[0], c.OutOrStdout())
			})
		},
	}

	cmd.Flags().StringArrayP("file", "f", nil, "Parquet file to query; repeatable")
	if err := cmd.MarkFlagRequired("file"); err != nil {
		panic(fmt.Errorf("failed to mark file flag as required: %w", err))
	}
	cmd.Flags().String("view", "docs", "View name the query selects from")
	return cmd
}

func runSQL(ctx context.Context, cfg duckdbx.Config, view string, files []string, query string, w io.Writer) error {
	db, err := duckdbx.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := db.AttachParquet(ctx, view, files...); err != nil {
		return err
	}
	res, err := db.Query(ctx, query)
	if err != nil {
		return err
	}

	rows := make([][]string, len(res.Rows))
	for i, r := range res.Rows {
		rows[i] = make([]string, len(r))
		for j, v := range r {
			rows[i][j] = sqlValue(v)
		}
	}
	if err := renderTable(w, res.Columns, rows); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%d rows\n", len(rows))
	return err
}

func sqlValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case []byte:
		return hex.EncodeToString(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}
