package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pulsoweb/pulso-gateway/internal/record"
)

// Mongo implements Store on a single MongoDB database. Each logical
// collection maps to a Mongo collection of the same name.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

func ConnectMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &Mongo{client: client, db: client.Database(database)}, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *Mongo) InsertOne(ctx context.Context, collection string, doc record.Document) (string, error) {
	res, err := m.db.Collection(collection).InsertOne(ctx, bson.M(doc))
	if err != nil {
		return "", err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		return oid.Hex(), nil
	}
	return fmt.Sprint(res.InsertedID), nil
}

func (m *Mongo) Find(ctx context.Context, collection string, filter Filter, sort Sort) ([]record.Document, error) {
	opts := options.Find()
	if sort.Field != "" {
		dir := -1
		if sort.Ascending {
			dir = 1
		}
		opts.SetSort(bson.D{{Key: sort.Field, Value: dir}})
	}
	cursor, err := m.db.Collection(collection).Find(ctx, bson.M(filter), opts)
	if err != nil {
		return nil, err
	}
	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, err
	}
	docs := make([]record.Document, 0, len(raw))
	for _, r := range raw {
		docs = append(docs, toDocument(r))
	}
	return docs, nil
}

func (m *Mongo) FindOne(ctx context.Context, collection string, filter Filter) (record.Document, error) {
	var raw bson.M
	err := m.db.Collection(collection).FindOne(ctx, bson.M(filter)).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toDocument(raw), nil
}

func (m *Mongo) UpdateOne(ctx context.Context, collection string, filter Filter, update record.Document) (int64, error) {
	res, err := m.db.Collection(collection).UpdateOne(ctx, bson.M(filter), bson.M{"$set": bson.M(update)})
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

// toDocument rewrites driver-specific container types so callers only ever
// see plain maps, slices, and time.Time values.
func toDocument(m bson.M) record.Document {
	doc := make(record.Document, len(m))
	for k, v := range m {
		doc[k] = toValue(v)
	}
	return doc
}

func toValue(v any) any {
	switch t := v.(type) {
	case bson.M:
		return toDocument(t)
	case map[string]any:
		return toDocument(t)
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = toValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = toValue(e)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.ObjectID:
		return t.Hex()
	default:
		return v
	}
}
