package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"argus/config"
	"argus/storage"
)

// StorageComponents groups the repository set plus the handle that owns the
// underlying connection, if any.
type StorageComponents struct {
	Rules   storage.RuleRepository
	Matches storage.MatchRepository
	Alerts  storage.AlertRepository

	mongo *storage.MongoStore
}

// InitStorage builds the repositories: MongoDB-backed when configured,
// in-memory otherwise.
func InitStorage(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (*StorageComponents, error) {
	if !cfg.MongoDB.Enabled {
		sugar.Info("MongoDB disabled, using in-memory repositories")
		return &StorageComponents{
			Rules:   storage.NewMemoryRuleRepository(),
			Matches: storage.NewMemoryMatchRepository(),
			Alerts:  storage.NewMemoryAlertRepository(),
		}, nil
	}

	mongo, err := storage.NewMongoStore(ctx, cfg.MongoDB.URI, cfg.MongoDB.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := mongo.EnsureIndexes(ctx); err != nil {
		_ = mongo.Close(ctx)
		return nil, fmt.Errorf("failed to ensure MongoDB indexes: %w", err)
	}

	sugar.Infow("MongoDB storage initialized", "database", cfg.MongoDB.Database)
	return &StorageComponents{
		Rules:   mongo.Rules(),
		Matches: mongo.Matches(),
		Alerts:  mongo.Alerts(),
		mongo:   mongo,
	}, nil
}

// Close releases the storage connection if one exists.
func (s *StorageComponents) Close(ctx context.Context) error {
	if s.mongo != nil {
		return s.mongo.Close(ctx)
	}
	return nil
}
