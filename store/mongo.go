// Package store provides the document store clients behind livesync: a
// MongoDB implementation backed by change streams, and an in-memory one used
// by tests.
package store

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"talad/livesync"
)

// Mongo implements livesync.Store and livesync.Remote over a mongo database.
type Mongo struct {
	db *mongo.Database
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{db: db}
}

func (m *Mongo) Load(ctx context.Context, collection string) ([]livesync.Document, error) {
	cursor, err := m.db.Collection(collection).Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, err
	}

	docs := make([]livesync.Document, len(raw))
	for i, r := range raw {
		docs[i] = toDocument(r)
	}
	return docs, nil
}

// Watch opens a change stream with full-document update lookup so every
// insert/update event carries the complete document. A broken stream is
// reported as one terminal error event; livesync owns the re-subscribe
// decision.
func (m *Mongo) Watch(ctx context.Context, collection string) (<-chan livesync.ChangeEvent, error) {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := m.db.Collection(collection).Watch(ctx, mongo.Pipeline{}, opts)
	if err != nil {
		return nil, err
	}

	events := make(chan livesync.ChangeEvent)
	go func() {
		defer close(events)
		defer stream.Close(context.Background())

		for stream.Next(ctx) {
			var change struct {
				OperationType string `bson:"operationType"`
				FullDocument  bson.M `bson:"fullDocument"`
				DocumentKey   struct {
					ID any `bson:"_id"`
				} `bson:"documentKey"`
			}
			if err := stream.Decode(&change); err != nil {
				log.Printf("change stream decode error on %s: %v", collection, err)
				continue
			}

			var ev livesync.ChangeEvent
			switch change.OperationType {
			case "insert":
				ev = livesync.ChangeEvent{Op: livesync.OpInsert, Doc: toDocument(change.FullDocument)}
			case "update", "replace":
				if change.FullDocument == nil {
					continue
				}
				ev = livesync.ChangeEvent{Op: livesync.OpUpdate, Doc: toDocument(change.FullDocument)}
			case "delete":
				ev = livesync.ChangeEvent{Op: livesync.OpDelete, ID: idString(change.DocumentKey.ID)}
			default:
				continue
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil && ctx.Err() == nil {
			select {
			case events <- livesync.ChangeEvent{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return events, nil
}

func (m *Mongo) AddToSet(ctx context.Context, collection, id, field string, value any) error {
	return m.updateByHexID(ctx, collection, id, bson.M{"$addToSet": bson.M{field: value}})
}

func (m *Mongo) PullFromSet(ctx context.Context, collection, id, field string, value any) error {
	return m.updateByHexID(ctx, collection, id, bson.M{"$pull": bson.M{field: value}})
}

func (m *Mongo) Push(ctx context.Context, collection, id, field string, value any) error {
	return m.updateByHexID(ctx, collection, id, bson.M{"$push": bson.M{field: value}})
}

func (m *Mongo) updateByHexID(ctx context.Context, collection, id string, update bson.M) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}
	result, err := m.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// Create inserts a document and returns the generated id as hex.
func (m *Mongo) Create(ctx context.Context, collection string, doc livesync.Document) (string, error) {
	result, err := m.db.Collection(collection).InsertOne(ctx, doc)
	if err != nil {
		return "", err
	}
	return idString(result.InsertedID), nil
}

// toDocument flattens driver types into plain livesync values: object ids
// become hex strings, DateTime becomes unix millis, bson containers become
// plain maps and slices.
func toDocument(raw bson.M) livesync.Document {
	doc := make(livesync.Document, len(raw))
	for k, v := range raw {
		doc[k] = plainValue(v)
	}
	return doc
}

func plainValue(v any) any {
	switch val := v.(type) {
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time().UnixMilli()
	case primitive.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = plainValue(item)
		}
		return out
	case bson.M:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = plainValue(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = plainValue(e.Value)
		}
		return out
	case time.Time:
		return val.UnixMilli()
	default:
		return v
	}
}

func idString(v any) string {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	default:
		return ""
	}
}
