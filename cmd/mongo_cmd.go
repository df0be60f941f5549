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
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/bsoncolumns/config"
	"github.com/cardinalhq/bsoncolumns/internal/docsource"
	"github.com/cardinalhq/bsoncolumns/internal/logctx"
)

func init() {
	rootCmd.AddCommand(newMongoCmd())
}

func newMongoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mongo",
		Short: "Decode documents straight from a MongoDB collection",
		Long: `Runs a find against a collection, projecting only the top-level fields
the schema reads, and decodes the raw documents from the cursor.`,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if err := mongoFlags(c, cfg); err != nil {
				return err
			}
			if err := cfg.Mongo.Validate(); err != nil {
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

			return runCommand("mongo", func(ctx context.Context) error {
				src, err := docsource.NewMongoSource(ctx, docsource.MongoQuery{
					Config:     cfg.Mongo,
					Projection: schema.Projection(),
					BatchSize:  cfg.Decode.BatchSize,
				})
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
	addOutputFlags(cmd)
	cmd.Flags().String("uri", "", "MongoDB connection string")
	cmd.Flags().String("db", "", "Database name")
	cmd.Flags().String("collection", "", "Collection name")
	cmd.Flags().String("filter", "", `Query filter in extended JSON, e.g. '{"status": "ok"}'`)
	cmd.Flags().Int64("skip", 0, "Documents to skip")
	cmd.Flags().Int64("limit", 0, "Maximum documents to read (0 for all)")
	return cmd
}

// mongoFlags overrides the configured query with any flags the user set.
func mongoFlags(c *cobra.Command, cfg *config.Config) error {
	for flag, dst := range map[string]*string{
		"uri":        &cfg.Mongo.URI,
		"db":         &cfg.Mongo.Database,
		"collection": &cfg.Mongo.Collection,
		"filter":     &cfg.Mongo.Filter,
	} {
		if !c.Flags().Changed(flag) {
			continue
		}
		v, err := c.Flags().GetString(flag)
		if err != nil {
			return fmt.Errorf("failed to get %s flag: %w", flag, err)
		}
		*dst = v
	}
	for flag, dst := range map[string]*int64{
		"skip":  &cfg.Mongo.Skip,
		"limit": &cfg.Mongo.Limit,
	} {
		if !c.Flags().Changed(flag) {
			continue
		}
		v, err := c.Flags().GetInt64(flag)
		if err != nil {
			return fmt.Errorf("failed to get %s flag: %w", flag, err)
		}
		*dst = v
	}
	return nil
}
