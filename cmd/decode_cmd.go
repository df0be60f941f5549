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
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/bsoncolumns/config"
	"github.com/cardinalhq/bsoncolumns/internal/decode"
	"github.com/cardinalhq/bsoncolumns/internal/docsource"
	"github.com/cardinalhq/bsoncolumns/internal/logctx"
)

func init() {
	rootCmd.AddCommand(newDecodeCmd())
}

func newDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode <dump.bson>",
		Short: "Decode a BSON dump into typed columns",
		Long: `Reads concatenated BSON documents (as written by mongodump, optionally
gzip or zstd compressed) and decodes the declared columns. Rows are printed
as a table, or written to Parquet or a CBOR snapshot stream with --format.`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			schema, err := resolveSchema(c, cfg)
			if err != nil {
				return err
			}
			o, err := outputFlags(c)
			if err != nil {
				return err
			}

			return runCommand("decode", func(ctx context.Context) error {
				src, err := openDump(args[0], cfg)
				if err != nil {
					return err
				}
				totals, err := runDecode(ctx, src, schema, cfg, o, c.OutOrStdout())
				if o.stats {
					if serr := renderStats(c.ErrOrStderr(), schema, totals); serr != nil {
						logctx.FromContext(ctx).Warn("Failed to print stats", slog.Any("error", serr))
					}
				}
				return err
			})
		},
	}

	addSchemaFlags(cmd)
	addDecodeFlags(cmd)
	addStreamFlags(cmd)
	addOutputFlags(cmd)
	return cmd
}

type outputOptions struct {
	format string
	out    string
	head   int
	stats  bool
}

func (o outputOptions) writesFile() bool {
	return o.format == formatParquet || o.format == formatCBOR
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("format", formatTable, "Output format: table, parquet or cbor")
	cmd.Flags().StringP("out", "o", "", "Output file for parquet and cbor formats")
	cmd.Flags().Int("head", 0, "Print at most this many rows in table format (0 for all)")
	cmd.Flags().Bool("stats", true, "Print per-column counters to stderr")
}

func outputFlags(c *cobra.Command) (outputOptions, error) {
	var o outputOptions
	var err error
	if o.format, err = c.Flags().GetString("format"); err != nil {
		return o, fmt.Errorf("failed to get format flag: %w", err)
	}
	if o.out, err = c.Flags().GetString("out"); err != nil {
		return o, fmt.Errorf("failed to get out flag: %w", err)
	}
	if o.head, err = c.Flags().GetInt("head"); err != nil {
		return o, fmt.Errorf("failed to get head flag: %w", err)
	}
	if o.stats, err = c.Flags().GetBool("stats"); err != nil {
		return o, fmt.Errorf("failed to get stats flag: %w", err)
	}
	return o, nil
}

// runDecode extracts src into the sink chosen by o. Table output is
// written to w.
func runDecode(ctx context.Context, src docsource.Source, schema *decode.Schema, cfg *config.Config, o outputOptions, w io.Writer) (decode.Totals, error) {
	out, err := openSink(o.format, o.out, w, o.head, schema, cfg)
	if err != nil {
		_ = src.Close()
		return decode.Totals{}, err
	}

	totals, err := runExtract(ctx, src, schema, cfg.Decode, out)
	logctx.FromContext(ctx).Info("Decode finished",
		slog.Int64("documents", totals.Result.Documents),
		slog.Int64("malformed", totals.Result.Malformed),
		slog.Int64("batches", totals.Batches))
	if err != nil && o.writesFile() {
		if rerr := os.Remove(o.out); rerr != nil && !os.IsNotExist(rerr) {
			logctx.FromContext(ctx).Warn("Failed to remove partial output", slog.String("path", o.out), slog.Any("error", rerr))
		}
	}
	return totals, err
}
