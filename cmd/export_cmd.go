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
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/bsoncolumns/config"
	"github.com/cardinalhq/bsoncolumns/internal/decode"
	"github.com/cardinalhq/bsoncolumns/internal/logctx"
)

func init() {
	rootCmd.AddCommand(newExportCmd())
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <dump.bson>...",
		Short: "Decode one or more BSON dumps into a single Parquet or CBOR file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			schema, err := resolveSchema(c, cfg)
			if err != nil {
				return err
			}
			format, err := c.Flags().GetString("format")
			if err != nil {
				return fmt.Errorf("failed to get format flag: %w", err)
			}
			outPath, err := c.Flags().GetString("out")
			if err != nil {
				return fmt.Errorf("failed to get out flag: %w", err)
			}

			return runCommand("export", func(ctx context.Context) error {
				totals, err := runExport(ctx, args, schema, cfg, format, outPath)
				if serr := renderStats(c.ErrOrStderr(), schema, totals); serr != nil {
					logctx.FromContext(ctx).Warn("Failed to print stats", slog.Any("error", serr))
				}
				return err
			})
		},
	}

	addSchemaFlags(cmd)
	addDecodeFlags(cmd)
	addStreamFlags(cmd)
	cmd.Flags().String("format", formatParquet, "Output format: parquet or cbor")
	cmd.Flags().StringP("out", "o", "", "Output file")
	if err := cmd.MarkFlagRequired("out"); err != nil {
		panic(fmt.Errorf("failed to mark out flag as required: %w", err))
	}
	return cmd
}

// runExport decodes every dump in order into one output file. The file is
// removed if any dump fails.
func runExport(ctx context.Context, paths []string, schema *decode.Schema, cfg *config.Config, format, outPath string) (decode.Totals, error) {
	if format != formatParquet && format != formatCBOR {
		return decode.Totals{}, fmt.Errorf("export format must be %s or %s, got %q", formatParquet, formatCBOR, format)
	}
	out, err := openSink(format, outPath, nil, 0, schema, cfg)
	if err != nil {
		return decode.Totals{}, err
	}

	logger := logctx.FromContext(ctx)
	var all decode.Totals
	err = func() error {
		for _, path := range paths {
			src, err := openDump(path, cfg)
			if err != nil {
				return err
			}
			dctx := logctx.With(ctx, slog.String("path", path))
			totals, err := decode.Extract(dctx, src, schema, out.write, decode.WithConfig(cfg.Decode))
			err = errors.Join(err, src.Close())
			all.Batches += totals.Batches
			all.Result.Merge(totals.Result)
			logctx.FromContext(dctx).Info("Exported dump",
				slog.Int64("documents", totals.Result.Documents),
				slog.Int64("malformed", totals.Result.Malformed))
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
		return nil
	}()

	err = errors.Join(err, out.close())
	if err != nil {
		if rerr := os.Remove(outPath); rerr != nil && !os.IsNotExist(rerr) {
			logger.Warn("Failed to remove partial output", slog.String("path", outPath), slog.Any("error", rerr))
		}
	}
	return all, err
}
