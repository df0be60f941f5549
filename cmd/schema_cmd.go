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
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/bsoncolumns/internal/decode"
)

func init() {
	rootCmd.AddCommand(newSchemaCmd())
}

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Validate and describe a column schema",
		Long: `Compiles the columns from --column, --schema or the config file and
prints their widths, the schema fingerprint and the top-level fields a
MongoDB query would project. --yaml prints the schema as a schema file.`,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			schema, err := resolveSchema(c, cfg)
			if err != nil {
				return err
			}
			asYAML, err := c.Flags().GetBool("yaml")
			if err != nil {
				return fmt.Errorf("failed to get yaml flag: %w", err)
			}
			if asYAML {
				return writeSchemaYAML(c.OutOrStdout(), schema)
			}
			return describeSchema(c.OutOrStdout(), schema)
		},
	}

	addSchemaFlags(cmd)
	cmd.Flags().Bool("yaml", false, "Print the schema as YAML")
	return cmd
}

func describeSchema(w io.Writer, schema *decode.Schema) error {
	rows := make([][]string, 0, schema.Len())
	for _, c := range schema.Columns() {
		rows = append(rows, []string{c.Name, c.Path, c.Type.String(), strconv.Itoa(c.Width())})
	}
	if err := renderTable(w, []string{"column", "path", "type", "width"}, rows); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "fingerprint: %016x\nprojection: %s\n",
		schema.Fingerprint(), strings.Join(schema.Projection(), ", "))
	return err
}

func writeSchemaYAML(w io.Writer, schema *decode.Schema) error {
	out, err := decode.MarshalSchemaYAML(schema.Specs())
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
