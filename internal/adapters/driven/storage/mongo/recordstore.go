// Package mongo implements the record store on MongoDB, whose unordered
// BulkWrite is the native form of the engine's bulk primitive.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/custodia-labs/eventvault/internal/core/domain"
	"github.com/custodia-labs/eventvault/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.RecordStore = (*Store)(nil)

const collectionName = "records"

// Store is a MongoDB-backed record store.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewStore connects to MongoDB and ensures the unique identifier index that
// arbitrates concurrent inserts racing on the same identity.
func NewStore(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	coll := client.Database(database).Collection(collectionName)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: domain.FieldIdentifier, Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ensuring identifier index: %w", err)
	}

	return &Store{client: client, coll: coll}, nil
}

// Close disconnects from MongoDB.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// FindOne returns at most one record matching the identifying filter.
func (s *Store) FindOne(ctx context.Context, filter domain.Filter) (*domain.Record, error) {
	var doc bson.M
	err := s.coll.FindOne(ctx, filterQuery(filter)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying record: %w", err)
	}
	rec := fromDocument(doc)
	return &rec, nil
}

// BulkWrite submits all intents as one unordered bulk operation. Per-index
// write errors from the server are mapped into the result; any other error
// is an infrastructure failure for the whole batch.
//
// The Go driver reports no inserted-id list on BulkWrite, so ids are
// assigned client-side before submit and reported as authoritative.
func (s *Store) BulkWrite(ctx context.Context, intents []domain.WriteIntent) (*domain.BulkResult, error) {
	models := make([]mongo.WriteModel, 0, len(intents))
	insertedIDs := make(map[int]string, len(intents))

	for i, intent := range intents {
		switch intent.Op {
		case domain.OpInsert:
			oid := primitive.NewObjectID()
			insertedIDs[i] = oid.Hex()
			doc := toDocument(intent.Record)
			doc["_id"] = oid
			models = append(models, mongo.NewInsertOneModel().SetDocument(doc))
		case domain.OpReplace:
			doc := toDocument(intent.Record)
			// _id is immutable; the server keeps the matched document's id.
			delete(doc, "_id")
			models = append(models, mongo.NewReplaceOneModel().
				SetFilter(filterQuery(intent.Filter)).
				SetReplacement(doc).
				SetUpsert(true))
		default:
			return nil, fmt.Errorf("unknown op %q at intent %d", intent.Op, i)
		}
	}

	raw, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	var bwe mongo.BulkWriteException
	if err != nil && !errors.As(err, &bwe) {
		return nil, fmt.Errorf("bulk write: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("bulk write: no result")
	}

	res := &domain.BulkResult{
		InsertedCount: int(raw.InsertedCount),
		ReplacedCount: int(raw.ModifiedCount),
		MatchedCount:  int(raw.MatchedCount),
		UpsertedCount: int(raw.UpsertedCount),
		InsertedIDs:   make(map[int]string),
		UpsertedIDs:   make(map[int]string),
	}

	for _, we := range bwe.WriteErrors {
		res.WriteErrors = append(res.WriteErrors, domain.WriteError{
			Index:   we.Index,
			Code:    we.Code,
			Message: we.Message,
		})
	}

	failed := res.FailedIndexSet()
	for i, id := range insertedIDs {
		if !failed[i] {
			res.InsertedIDs[i] = id
		}
	}
	for i, id := range raw.UpsertedIDs {
		res.UpsertedIDs[int(i)] = idToString(id)
	}
	return res, nil
}

// filterQuery builds the identifying query: identifier match primary, the
// near-duplicate fields as fallback.
func filterQuery(f domain.Filter) bson.M {
	fallback := bson.M{
		domain.FieldDevice:    f.Device,
		domain.FieldDate:      f.Date,
		domain.FieldEventType: f.EventType,
	}
	if f.Identifier == "" {
		return fallback
	}
	return bson.M{"$or": bson.A{
		bson.M{domain.FieldIdentifier: f.Identifier},
		fallback,
	}}
}

func toDocument(rec domain.Record) bson.M {
	m := rec.ToMap()
	doc := make(bson.M, len(m))
	for k, v := range m {
		doc[k] = v
	}
	if rec.ID != "" {
		if oid, err := primitive.ObjectIDFromHex(rec.ID); err == nil {
			doc["_id"] = oid
		}
	}
	return doc
}

func fromDocument(doc bson.M) domain.Record {
	m := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "_id" {
			m[k] = idToString(v)
			continue
		}
		m[k] = v
	}
	return domain.RecordFromMap(m)
}

func idToString(id any) string {
	switch v := id.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
