package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"argus/config"
	"argus/detect"
	"argus/enrich"
	"argus/store"
)

// InitPipeline assembles the enrichment pipeline from the enabled stages.
// Stage order is fixed: reputation, geo, external validation.
func InitPipeline(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (*enrich.Pipeline, *enrich.RedisCache, error) {
	var shared *enrich.RedisCache
	if cfg.Enrichment.Redis.Enabled {
		shared = enrich.NewRedisCache(
			cfg.Enrichment.Redis.Addr,
			cfg.Enrichment.Redis.Password,
			cfg.Enrichment.Redis.DB,
			cfg.Enrichment.Redis.PoolSize,
			"argus:enrich:",
			cfg.Enrichment.CacheTTL,
			sugar,
		)
		if err := shared.Ping(ctx); err != nil {
			_ = shared.Close()
			return nil, nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Enrichment.Redis.Addr, err)
		}
		sugar.Infow("Shared enrichment cache connected", "addr", cfg.Enrichment.Redis.Addr)
	}

	var stages []enrich.Stage
	if cfg.Enrichment.Reputation.Enabled {
		provider := enrich.NewHTTPReputationProvider(cfg.Enrichment.Reputation.Endpoint, cfg.Enrichment.Reputation.APIKey)
		local := enrich.NewLRUCache(cfg.Enrichment.CacheSize, cfg.Enrichment.CacheTTL)
		var sharedCache enrich.Cache
		if shared != nil {
			sharedCache = shared
		}
		stages = append(stages, enrich.NewReputationStage(provider, local, sharedCache, sugar))
	}
	if cfg.Enrichment.Geo.Enabled {
		provider := enrich.NewHTTPGeoProvider(cfg.Enrichment.Geo.Endpoint)
		cache := enrich.NewLRUCache(cfg.Enrichment.CacheSize, cfg.Enrichment.CacheTTL)
		stages = append(stages, enrich.NewGeoStage(provider, cache, sugar))
	}
	if cfg.Enrichment.External.Enabled {
		validator := enrich.NewHTTPExternalValidator(cfg.Enrichment.External.Endpoint, cfg.Enrichment.External.APIKey)
		stages = append(stages, enrich.NewExternalStage(validator, sugar))
	}

	pipeline := enrich.NewPipeline(stages, cfg.Enrichment.StageTimeout, sugar)
	sugar.Infow("Enrichment pipeline assembled", "stages", pipeline.Stages())
	return pipeline, shared, nil
}

// InitEngine builds the window store and correlation engine, loads rule
// files from disk and activates them.
func InitEngine(
	ctx context.Context,
	cfg *config.Config,
	pipeline *enrich.Pipeline,
	repos *StorageComponents,
	sugar *zap.SugaredLogger,
) (*detect.Engine, error) {
	windowStore := store.NewWindowedEventStore(
		cfg.Window.MaxEventsInMemory,
		cfg.Window.MaxEventsPerIP,
		cfg.Window.MaxEventsPerType,
		cfg.Window.Retention,
		cfg.Window.CleanupInterval,
		sugar,
	)

	engine := detect.NewEngine(cfg, windowStore, pipeline, repos.Rules, repos.Matches, repos.Alerts, sugar)
	if err := engine.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start correlation engine: %w", err)
	}

	if cfg.Rules.Dir != "" {
		rules, err := detect.LoadRulesDir(cfg.Rules.Dir)
		if err != nil {
			engine.Stop()
			return nil, fmt.Errorf("failed to load rules: %w", err)
		}
		activated := 0
		for _, rule := range rules {
			conflicts, err := engine.ActivateRule(ctx, rule)
			if err != nil {
				sugar.Errorw("Rule rejected",
					"rule_id", rule.ID, "conflicts", len(conflicts), "error", err)
				continue
			}
			activated++
		}
		sugar.Infow("Rules loaded", "dir", cfg.Rules.Dir, "loaded", len(rules), "activated", activated)
	}
	return engine, nil
}
