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

package config

import (
	"reflect"
	"strings"

	"github.com/spf13/viper"

	"github.com/cardinalhq/bsoncolumns/internal/arrowpack"
	"github.com/cardinalhq/bsoncolumns/internal/decode"
	"github.com/cardinalhq/bsoncolumns/internal/docsource"
	"github.com/cardinalhq/bsoncolumns/internal/duckdbx"
)

// Config aggregates configuration for the application.
// Each field is owned by its respective package.
type Config struct {
	Decode decode.Config          `mapstructure:"decode"`
	Stream docsource.StreamConfig `mapstructure:"stream"`
	Mongo  docsource.MongoConfig  `mapstructure:"mongo"`
	Export arrowpack.WriterConfig `mapstructure:"export"`
	DuckDB duckdbx.Config         `mapstructure:"duckdb"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Decode: decode.DefaultConfig(),
		Mongo:  docsource.DefaultMongoConfig(),
		Export: arrowpack.DefaultWriterConfig(),
	}
}

// Load reads bsoncolumns.yaml from the working directory, if present, and
// environment variables. See LoadFile.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path, or from bsoncolumns.yaml in the
// working directory when path is empty, and then from environment
// variables. Environment variables use the prefix "BSONCOLUMNS" and the dot
// character in keys is replaced by an underscore. For example,
// "decode.workers" becomes "BSONCOLUMNS_DECODE_WORKERS".
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("bsoncolumns")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("BSONCOLUMNS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, missing := err.(viper.ConfigFileNotFoundError); path != "" || !missing {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if c := v.GetString("decode.columns"); c != "" {
		cfg.Decode.Columns = strings.Split(c, ",")
	}
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
