package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"argus/core"
)

func reputationServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/198.51.100.7":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"score":     15,
				"malicious": true,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestReputationStageAppliesPayload(t *testing.T) {
	var hits atomic.Int32
	srv := reputationServer(t, &hits)
	defer srv.Close()

	stage := NewReputationStage(
		NewHTTPReputationProvider(srv.URL, "test-key"),
		NewLRUCache(10, time.Minute),
		nil,
		zap.NewNop().Sugar(),
	)

	event := core.NewSecurityEvent("failed_login", "198.51.100.7", core.SeverityHigh)
	require.NoError(t, stage.Enrich(context.Background(), event))

	raw, ok := event.Enrichment(core.NamespaceIPReputation, StageReputation)
	require.True(t, ok)
	payload := raw.(map[string]interface{})
	assert.Equal(t, true, payload["malicious"])
}

func TestReputationStageUnknownIPIsCleanResult(t *testing.T) {
	var hits atomic.Int32
	srv := reputationServer(t, &hits)
	defer srv.Close()

	stage := NewReputationStage(
		NewHTTPReputationProvider(srv.URL, ""),
		NewLRUCache(10, time.Minute),
		nil,
		zap.NewNop().Sugar(),
	)

	event := core.NewSecurityEvent("failed_login", "203.0.113.9", core.SeverityLow)
	require.NoError(t, stage.Enrich(context.Background(), event))

	raw, ok := event.Enrichment(core.NamespaceIPReputation, StageReputation)
	require.True(t, ok)
	payload := raw.(map[string]interface{})
	assert.Equal(t, false, payload["known"])
}

func TestReputationStageCachesPerIP(t *testing.T) {
	var hits atomic.Int32
	srv := reputationServer(t, &hits)
	defer srv.Close()

	stage := NewReputationStage(
		NewHTTPReputationProvider(srv.URL, ""),
		NewLRUCache(10, time.Minute),
		nil,
		zap.NewNop().Sugar(),
	)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		event := core.NewSecurityEvent("failed_login", "198.51.100.7", core.SeverityHigh)
		require.NoError(t, stage.Enrich(ctx, event))
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestReputationStageSharedCachePopulatesLocal(t *testing.T) {
	var hits atomic.Int32
	srv := reputationServer(t, &hits)
	defer srv.Close()

	shared := NewLRUCache(10, time.Minute)
	shared.Set(context.Background(), "198.51.100.7", map[string]interface{}{"score": 1})

	stage := NewReputationStage(
		NewHTTPReputationProvider(srv.URL, ""),
		NewLRUCache(10, time.Minute),
		shared,
		zap.NewNop().Sugar(),
	)

	event := core.NewSecurityEvent("failed_login", "198.51.100.7", core.SeverityHigh)
	require.NoError(t, stage.Enrich(context.Background(), event))

	// Served from the shared cache, never hit the provider.
	assert.Equal(t, int32(0), hits.Load())
	_, ok := event.Enrichment(core.NamespaceIPReputation, StageReputation)
	assert.True(t, ok)
}

func TestReputationStageSkipsEventsWithoutSourceIP(t *testing.T) {
	var hits atomic.Int32
	srv := reputationServer(t, &hits)
	defer srv.Close()

	stage := NewReputationStage(
		NewHTTPReputationProvider(srv.URL, ""),
		NewLRUCache(10, time.Minute),
		nil,
		zap.NewNop().Sugar(),
	)

	event := core.NewSecurityEvent("failed_login", "", core.SeverityLow)
	require.NoError(t, stage.Enrich(context.Background(), event))
	assert.Equal(t, int32(0), hits.Load())
}

func TestReputationProviderErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	stage := NewReputationStage(
		NewHTTPReputationProvider(srv.URL, ""),
		NewLRUCache(10, time.Minute),
		nil,
		zap.NewNop().Sugar(),
	)

	event := core.NewSecurityEvent("failed_login", "198.51.100.7", core.SeverityHigh)
	err := stage.Enrich(context.Background(), event)
	assert.Error(t, err)

	// Nothing cached, nothing applied.
	_, ok := event.Enrichment(core.NamespaceIPReputation, StageReputation)
	assert.False(t, ok)
}
