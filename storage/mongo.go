package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"argus/core"
)

const (
	rulesCollection   = "correlation_rules"
	matchesCollection = "rule_matches"
	alertsCollection  = "alerts"
)

// MongoStore provides MongoDB-backed implementations of the repository
// interfaces, all sharing one client.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoStore{
		client: client,
		db:     client.Database(database),
	}, nil
}

// Close disconnects the underlying client
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the repositories rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(rulesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "enabled", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create rule index: %w", err)
	}

	_, err = s.db.Collection(matchesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "correlation_rule_id", Value: 1}, {Key: "matched_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create match index: %w", err)
	}

	_, err = s.db.Collection(alertsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "fingerprint", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create alert index: %w", err)
	}
	return nil
}

// Rules returns the rule repository view of the store
func (s *MongoStore) Rules() RuleRepository { return &mongoRuleRepository{db: s.db} }

// Matches returns the match repository view of the store
func (s *MongoStore) Matches() MatchRepository { return &mongoMatchRepository{db: s.db} }

// Alerts returns the alert repository view of the store
func (s *MongoStore) Alerts() AlertRepository { return &mongoAlertRepository{db: s.db} }

type mongoRuleRepository struct {
	db *mongo.Database
}

func (r *mongoRuleRepository) FindActive(ctx context.Context) ([]*core.CorrelationRule, error) {
	return r.find(ctx, bson.M{"enabled": true})
}

func (r *mongoRuleRepository) FindAll(ctx context.Context) ([]*core.CorrelationRule, error) {
	return r.find(ctx, bson.M{})
}

func (r *mongoRuleRepository) find(ctx context.Context, filter bson.M) ([]*core.CorrelationRule, error) {
	cursor, err := r.db.Collection(rulesCollection).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query correlation rules: %w", err)
	}
	defer cursor.Close(ctx)

	var rules []*core.CorrelationRule
	if err := cursor.All(ctx, &rules); err != nil {
		return nil, fmt.Errorf("failed to decode correlation rules: %w", err)
	}

	// Conditions arrive uncompiled from storage; reject anything that no
	// longer validates rather than letting it silently never match.
	valid := rules[:0]
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("stored rule failed validation: %w", err)
		}
		valid = append(valid, rule)
	}
	return valid, nil
}

func (r *mongoRuleRepository) Save(ctx context.Context, rule *core.CorrelationRule) error {
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	rule.UpdatedAt = time.Now().UTC()

	_, err := r.db.Collection(rulesCollection).ReplaceOne(
		ctx,
		bson.M{"_id": rule.ID},
		rule,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save correlation rule %s: %w", rule.ID, err)
	}
	return nil
}

func (r *mongoRuleRepository) IncrementTriggerCount(ctx context.Context, id string) error {
	result, err := r.db.Collection(rulesCollection).UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"trigger_count": 1}},
	)
	if err != nil {
		return fmt.Errorf("failed to increment trigger count for rule %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return ErrRuleNotFound
	}
	return nil
}

type mongoMatchRepository struct {
	db *mongo.Database
}

func (r *mongoMatchRepository) Save(ctx context.Context, match *core.RuleMatch) error {
	_, err := r.db.Collection(matchesCollection).InsertOne(ctx, match)
	if err != nil {
		return fmt.Errorf("failed to save rule match for %s: %w", match.CorrelationRuleID, err)
	}
	return nil
}

type mongoAlertRepository struct {
	db *mongo.Database
}

func (r *mongoAlertRepository) Save(ctx context.Context, alert *core.SecurityAlert) error {
	_, err := r.db.Collection(alertsCollection).ReplaceOne(
		ctx,
		bson.M{"_id": alert.AlertID},
		alert,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save alert %s: %w", alert.AlertID, err)
	}
	return nil
}

func (r *mongoAlertRepository) Get(ctx context.Context, id string) (*core.SecurityAlert, error) {
	var alert core.SecurityAlert
	err := r.db.Collection(alertsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&alert)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert %s: %w", id, err)
	}
	return &alert, nil
}

func (r *mongoAlertRepository) UpdateStatus(ctx context.Context, id string, status core.AlertStatus) error {
	alert, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := alert.TransitionTo(status); err != nil {
		return err
	}

	_, err = r.db.Collection(alertsCollection).UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": alert.Status}},
	)
	if err != nil {
		return fmt.Errorf("failed to update status for alert %s: %w", id, err)
	}
	return nil
}
