package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/i474232898/air-quality-features/internal/features"
)

// featureGroupDocument is the schema of one feature group.
type featureGroupDocument struct {
	Name               string    `bson:"_id"`
	FeatureDefinitions []string  `bson:"feature_definitions"`
	CreatedAt          time.Time `bson:"created_at"`
}

// recordDocument is one stored feature record.
type recordDocument struct {
	FeatureGroup string                  `bson:"feature_group"`
	RecordID     string                  `bson:"record_id"`
	EventTime    float64                 `bson:"event_time"`
	Features     []features.FeatureValue `bson:"features"`
	WrittenAt    time.Time               `bson:"written_at"`
}

// MongoStore keeps feature group schemas and records in two collections.
type MongoStore struct {
	groups  *mongo.Collection
	records *mongo.Collection
}

// NewMongoStore creates a MongoStore on the given database.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		groups:  db.Collection("feature_groups"),
		records: db.Collection("feature_records"),
	}
}

// EnsureIndexes creates the unique record index and the event_time index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.records.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "feature_group", Value: 1}, {Key: "record_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("feature_group_record_id_unique"),
		},
		{
			Keys:    bson.D{{Key: "feature_group", Value: 1}, {Key: "event_time", Value: -1}},
			Options: options.Index().SetName("feature_group_event_time"),
		},
	})
	if err != nil {
		return err
	}
	log.Printf("store: mongo indexes ensured collection=%s", s.records.Name())
	return nil
}

// EnsureFeatureGroup inserts the group definitions once; existing groups are left untouched.
func (s *MongoStore) EnsureFeatureGroup(ctx context.Context, group string, definitions []string) error {
	if len(definitions) == 0 {
		return fmt.Errorf("feature group %s: no feature definitions", group)
	}
	doc := featureGroupDocument{Name: group, FeatureDefinitions: definitions, CreatedAt: time.Now().UTC()}
	res, err := s.groups.UpdateOne(
		ctx,
		bson.M{"_id": group},
		bson.M{"$setOnInsert": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongo ensure feature group %s: %w", group, err)
	}
	if res.UpsertedCount > 0 {
		log.Printf("store: mongo feature group created group=%s features=%d", group, len(definitions))
	}
	return nil
}

func (s *MongoStore) definitions(ctx context.Context, group string) ([]string, error) {
	var doc featureGroupDocument
	err := s.groups.FindOne(ctx, bson.M{"_id": group}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", ErrFeatureGroupNotFound, group)
	}
	if err != nil {
		return nil, fmt.Errorf("mongo describe feature group %s: %w", group, err)
	}
	return doc.FeatureDefinitions, nil
}

// AllowedFields returns the group's feature names.
func (s *MongoStore) AllowedFields(ctx context.Context, group string) (map[string]struct{}, error) {
	defs, err := s.definitions(ctx, group)
	if err != nil {
		return nil, err
	}
	return toSet(defs), nil
}

// PutRecord upserts the record keyed by (feature_group, record_id).
func (s *MongoStore) PutRecord(ctx context.Context, group string, record []features.FeatureValue) error {
	doc, err := newRecordDocument(group, record, time.Now().UTC())
	if err != nil {
		return err
	}
	defs, err := s.definitions(ctx, group)
	if err != nil {
		return err
	}
	if err := checkFeatures(group, toSet(defs), record); err != nil {
		return err
	}

	_, err = s.records.ReplaceOne(
		ctx,
		bson.M{"feature_group": group, "record_id": doc.RecordID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongo put record %s: %w", doc.RecordID, err)
	}
	return nil
}

func newRecordDocument(group string, record []features.FeatureValue, writtenAt time.Time) (recordDocument, error) {
	id, eventTime, err := recordIdentity(record)
	if err != nil {
		return recordDocument{}, err
	}
	return recordDocument{
		FeatureGroup: group,
		RecordID:     id,
		EventTime:    eventTime,
		Features:     append([]features.FeatureValue(nil), record...),
		WrittenAt:    writtenAt,
	}, nil
}

// GetRecord returns a stored record by id.
func (s *MongoStore) GetRecord(ctx context.Context, group, recordID string) ([]features.FeatureValue, error) {
	var doc recordDocument
	err := s.records.FindOne(ctx, bson.M{"feature_group": group, "record_id": recordID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo get record %s: %w", recordID, err)
	}
	return doc.Features, nil
}

// RecentRecordIDs returns up to n record ids, newest event_time first.
func (s *MongoStore) RecentRecordIDs(ctx context.Context, group string, n int64) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	cur, err := s.records.Find(
		ctx,
		bson.M{"feature_group": group},
		options.Find().
			SetSort(bson.D{{Key: "event_time", Value: -1}}).
			SetLimit(n).
			SetProjection(bson.M{"record_id": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("mongo list records: %w", err)
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var doc struct {
			RecordID string `bson:"record_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.RecordID)
	}
	return ids, cur.Err()
}
