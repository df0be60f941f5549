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

package docsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cardinalhq/bsoncolumns/internal/logctx"
	"github.com/cardinalhq/bsoncolumns/internal/pipeline"
)

// MongoConfig holds connection and query settings for the MongoDB source.
type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
	// Filter is a query in MongoDB extended JSON, e.g. {"status": "ok"}.
	Filter          string        `mapstructure:"filter"`
	Skip            int64         `mapstructure:"skip"`
	Limit           int64         `mapstructure:"limit"`
	CursorBatchSize int32         `mapstructure:"cursor_batch_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// DefaultMongoConfig returns defaults for a local server.
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:             "mongodb://localhost:27017",
		CursorBatchSize: 1000,
		ConnectTimeout:  10 * time.Second,
	}
}

// Validate checks the settings needed to run a query.
func (c MongoConfig) Validate() error {
	var missing []string
	if c.URI == "" {
		missing = append(missing, "uri")
	}
	if c.Database == "" {
		missing = append(missing, "database")
	}
	if c.Collection == "" {
		missing = append(missing, "collection")
	}
	if len(missing) > 0 {
		return fmt.Errorf("mongo config missing %s", strings.Join(missing, ", "))
	}
	if c.Skip < 0 || c.Limit < 0 {
		return errors.New("mongo skip and limit must not be negative")
	}
	return nil
}

// MongoQuery describes one extraction from a collection.
type MongoQuery struct {
	Config MongoConfig
	// Projection lists the field paths to fetch; empty fetches whole documents.
	Projection []string
	// BatchSize is the number of documents per returned batch.
	BatchSize int
}

// MongoSource streams raw documents from a find cursor.
type MongoSource struct {
	client    *mongo.Client
	cursor    *mongo.Cursor
	batchSize int
	logger    *slog.Logger
	pending   error
	done      bool
}

var _ Source = (*MongoSource)(nil)

// NewMongoSource connects and opens the cursor.
func NewMongoSource(ctx context.Context, q MongoQuery) (*MongoSource, error) {
	cfg := q.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	filter, err := ParseFilter(cfg.Filter)
	if err != nil {
		return nil, err
	}

	clientOpts := options.Client().ApplyURI(cfg.URI)
	if cfg.ConnectTimeout > 0 {
		clientOpts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	findOpts := FindOptions(cfg, q.Projection)
	cursor, err := client.Database(cfg.Database).Collection(cfg.Collection).Find(ctx, filter, findOpts)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to query %s.%s: %w", cfg.Database, cfg.Collection, err)
	}

	batchSize := q.BatchSize
	if batchSize <= 0 {
		batchSize = pipeline.DefaultBatchSize
	}
	logger := logctx.FromContext(ctx)
	logger.Debug("Opened mongo cursor",
		slog.String("database", cfg.Database),
		slog.String("collection", cfg.Collection),
		slog.Any("projection", q.Projection),
		slog.Int64("skip", cfg.Skip),
		slog.Int64("limit", cfg.Limit))

	return &MongoSource{client: client, cursor: cursor, batchSize: batchSize, logger: logger}, nil
}

// FindOptions builds the find options for a query.
func FindOptions(cfg MongoConfig, projection []string) *options.FindOptions {
	fo := options.Find()
	if p := BuildProjection(projection); p != nil {
		fo.SetProjection(p)
	}
	if cfg.Skip > 0 {
		fo.SetSkip(cfg.Skip)
	}
	if cfg.Limit > 0 {
		fo.SetLimit(cfg.Limit)
	}
	if cfg.CursorBatchSize > 0 {
		fo.SetBatchSize(cfg.CursorBatchSize)
	}
	return fo
}

// ParseFilter parses an extended JSON query. An empty string matches everything.
func ParseFilter(s string) (bson.D, error) {
	if strings.TrimSpace(s) == "" {
		return bson.D{}, nil
	}
	var filter bson.D
	if err := bson.UnmarshalExtJSON([]byte(s), false, &filter); err != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", s, err)
	}
	return filter, nil
}

// BuildProjection returns an inclusion projection for paths. The _id
// field is excluded unless requested. A nil result means no projection.
func BuildProjection(paths []string) bson.D {
	if len(paths) == 0 {
		return nil
	}
	proj := make(bson.D, 0, len(paths)+1)
	wantID := false
	for _, p := range paths {
		if p == "_id" || strings.HasPrefix(p, "_id.") {
			wantID = true
		}
		proj = append(proj, bson.E{Key: p, Value: 1})
	}
	if !wantID {
		proj = append(proj, bson.E{Key: "_id", Value: 0})
	}
	return proj
}

func (m *MongoSource) Next(ctx context.Context) (*pipeline.Batch, error) {
	if m.pending != nil {
		err := m.pending
		m.pending = nil
		m.done = true
		return nil, err
	}
	if m.done {
		return nil, io.EOF
	}

	b := pipeline.GetBatch()
	for b.Len() < m.batchSize {
		if !m.cursor.Next(ctx) {
			m.done = true
			break
		}
		b.AddDoc(m.cursor.Current)
	}

	if err := m.cursor.Err(); err != nil {
		err = fmt.Errorf("mongo cursor: %w", err)
		m.logger.Warn("Mongo cursor failed", slog.Int("buffered", b.Len()), slog.Any("error", err))
		if b.Len() == 0 {
			pipeline.ReturnBatch(b)
			return nil, err
		}
		m.pending = err
	}

	if b.Len() == 0 {
		pipeline.ReturnBatch(b)
		return nil, io.EOF
	}
	recordDocuments(ctx, "mongo", b.Len())
	return b, nil
}

// Close closes the cursor and disconnects.
func (m *MongoSource) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return errors.Join(m.cursor.Close(ctx), m.client.Disconnect(ctx))
}
