package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// maxIncrementAttempts bounds the compare-and-set loop of Increment.
const maxIncrementAttempts = 16

// MongoColumnStore implements ColumnStore on a MongoDB collection. Every row
// is one document holding its cells in a sub-document.
type MongoColumnStore struct {
	client     *mongo.Client
	db         *mongo.Database
	collection *mongo.Collection
	now        func() time.Time
	log        zerolog.Logger
}

// rowDocument is the stored form of one row.
type rowDocument struct {
	ID        string            `bson:"_id"`
	Table     string            `bson:"tbl"`
	RowKey    string            `bson:"row_key"`
	Cells     map[string][]byte `bson:"cells"`
	UpdatedAt time.Time         `bson:"updated_at"`
}

// NewMongoColumnStore connects to uri and prepares the row collection.
func NewMongoColumnStore(uri, database, collection string, log zerolog.Logger) (*MongoColumnStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(database)
	coll := db.Collection(collection)

	// Scans are per table ordered by row key.
	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "tbl", Value: 1}, {Key: "row_key", Value: 1}},
	}
	if _, err := coll.Indexes().CreateOne(ctx, indexModel); err != nil {
		log.Warn().Err(err).Msg("failed to create row index")
	}

	log.Info().Str("database", database).Str("collection", collection).Msg("column store initialized")
	return &MongoColumnStore{
		client:     client,
		db:         db,
		collection: coll,
		now:        time.Now,
		log:        log,
	}, nil
}

func mongoRowID(table, rowKey string) string {
	return table + "/" + rowKey
}

func cellPath(column string) (string, error) {
	if column == "" || strings.ContainsAny(column, ".$") {
		return "", fmt.Errorf("invalid column name %q", column)
	}
	return "cells." + column, nil
}

// Put writes the given cells of a row, creating the row if needed.
func (s *MongoColumnStore) Put(ctx context.Context, table, rowKey string, cells Cells) error {
	if len(cells) == 0 {
		return nil
	}

	set := bson.M{
		"tbl":        table,
		"row_key":    rowKey,
		"updated_at": s.now().UTC(),
	}
	for col, val := range cells {
		path, err := cellPath(col)
		if err != nil {
			return err
		}
		set[path] = val
	}

	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": mongoRowID(table, rowKey)},
		bson.M{"$set": set},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", table, rowKey, err)
	}
	return nil
}

// Get returns all cells of a row or ErrNotFound.
func (s *MongoColumnStore) Get(ctx context.Context, table, rowKey string) (Cells, error) {
	var doc rowDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": mongoRowID(table, rowKey)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", table, rowKey, err)
	}
	if len(doc.Cells) == 0 {
		return nil, ErrNotFound
	}
	return Cells(doc.Cells), nil
}

// Delete removes a row.
func (s *MongoColumnStore) Delete(ctx context.Context, table, rowKey string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": mongoRowID(table, rowKey)}); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", table, rowKey, err)
	}
	return nil
}

// Increment adds delta to a decimal counter cell with a compare-and-set on
// the previous value. A missing cell counts as 0.
func (s *MongoColumnStore) Increment(ctx context.Context, table, rowKey, column string, delta int64) (int64, error) {
	path, err := cellPath(column)
	if err != nil {
		return 0, err
	}
	id := mongoRowID(table, rowKey)

	for attempt := 0; attempt < maxIncrementAttempts; attempt++ {
		var doc rowDocument
		err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
		if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
			return 0, fmt.Errorf("failed to read counter %s/%s %s: %w", table, rowKey, column, err)
		}

		raw, exists := doc.Cells[column]
		var current int64
		if len(raw) > 0 {
			current, err = strconv.ParseInt(string(raw), 10, 64)
			if err != nil {
				return 0, fmt.Errorf("counter %s/%s %s is not an integer: %w", table, rowKey, column, err)
			}
		}

		filter := bson.M{"_id": id}
		if exists {
			filter[path] = raw
		} else {
			filter[path] = bson.M{"$exists": false}
		}
		next := current + delta
		update := bson.M{"$set": bson.M{
			"tbl":        table,
			"row_key":    rowKey,
			path:         []byte(strconv.FormatInt(next, 10)),
			"updated_at": s.now().UTC(),
		}}

		res, err := s.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
		if mongo.IsDuplicateKeyError(err) {
			// The row appeared or the cell changed between read and write.
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to write counter %s/%s %s: %w", table, rowKey, column, err)
		}
		if res.MatchedCount > 0 || res.UpsertedCount > 0 {
			return next, nil
		}
	}
	return 0, fmt.Errorf("counter %s/%s %s: too much contention", table, rowKey, column)
}

// Scan returns rows of table ordered by row key.
func (s *MongoColumnStore) Scan(ctx context.Context, table string, opts ScanOptions) ([]Row, error) {
	filter := bson.M{"tbl": table}
	if opts.Filter != nil {
		path, err := cellPath(opts.Filter.Column)
		if err != nil {
			return nil, err
		}
		filter[path] = opts.Filter.Value
	}

	order := 1
	if opts.Reverse {
		order = -1
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "row_key", Value: order}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cursor, err := s.collection.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", table, err)
	}
	defer cursor.Close(ctx)

	var rows []Row
	for cursor.Next(ctx) {
		var doc rowDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode row of %s: %w", table, err)
		}
		if len(doc.Cells) == 0 {
			continue
		}
		rows = append(rows, Row{Key: doc.RowKey, Cells: Cells(doc.Cells)})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", table, err)
	}
	return rows, nil
}

// Stats returns row counts per table, the last write time and the collection size.
func (s *MongoColumnStore) Stats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})
	stats["driver"] = "mongodb"

	cursor, err := s.collection.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$tbl"}, {Key: "n", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	tables := make(map[string]int64)
	for cursor.Next(ctx) {
		var group struct {
			Table string `bson:"_id"`
			N     int64  `bson:"n"`
		}
		if err := cursor.Decode(&group); err != nil {
			return nil, err
		}
		tables[group.Table] = group.N
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	stats["rows"] = tables

	var last rowDocument
	opts := options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	if err := s.collection.FindOne(ctx, bson.M{}, opts).Decode(&last); err == nil {
		stats["last_write"] = last.UpdatedAt
	}

	result := s.db.RunCommand(ctx, bson.D{{Key: "collStats", Value: s.collection.Name()}})
	var collStats bson.M
	if err := result.Decode(&collStats); err == nil {
		switch size := collStats["size"].(type) {
		case int64:
			stats["db_size_bytes"] = size
		case int32:
			stats["db_size_bytes"] = int64(size)
		}
	}

	return stats, nil
}

// Ping checks the MongoDB connection.
func (s *MongoColumnStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close closes the MongoDB connection.
func (s *MongoColumnStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

var _ ColumnStore = (*MongoColumnStore)(nil)
