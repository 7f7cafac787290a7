package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"argus/core"
)

func TestExternalStagePostsSummaryAndAppliesVerdict(t *testing.T) {
	var received map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "secret", r.Header.Get("X-API-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"verdict": "suspicious"})
	}))
	defer srv.Close()

	stage := NewExternalStage(NewHTTPExternalValidator(srv.URL, "secret"), zap.NewNop().Sugar())
	event := core.NewSecurityEvent("failed_login", "10.0.0.1", core.SeverityHigh)
	event.DestinationIP = "10.0.0.2"

	require.NoError(t, stage.Enrich(context.Background(), event))

	assert.Equal(t, event.EventID, received["event_id"])
	assert.Equal(t, "failed_login", received["event_type"])
	assert.Equal(t, "10.0.0.1", received["source_ip"])
	assert.Equal(t, "10.0.0.2", received["destination_ip"])
	assert.Equal(t, "high", received["severity"])

	raw, ok := event.Enrichment(core.NamespaceExternalValidation, StageExternal)
	require.True(t, ok)
	assert.Equal(t, "suspicious", raw.(map[string]interface{})["verdict"])
}

func TestExternalStageNoContentAppliesNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	stage := NewExternalStage(NewHTTPExternalValidator(srv.URL, ""), zap.NewNop().Sugar())
	event := core.NewSecurityEvent("failed_login", "10.0.0.1", core.SeverityLow)

	require.NoError(t, stage.Enrich(context.Background(), event))
	_, ok := event.Enrichment(core.NamespaceExternalValidation, StageExternal)
	assert.False(t, ok)
}
