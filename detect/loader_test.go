package detect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"argus/core"
)

const validRuleYAML = `rules:
  - id: failed-login-burst
    name: Failed login burst
    description: Repeated failed logins from one source
    conditions:
      - field: event_type
        operator: equals
        value: failed_login
    correlation_fields: [source_ip]
    time_window_minutes: 15
    min_events: 3
    severity: high
    enabled: true
`

func writeRuleFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRulesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeRuleFile(t, dir, "rules.yaml", validRuleYAML)

	rules, err := LoadRulesFile(path)
	require.NoError(t, err)
	require.Len(t, rules, 1)

	rule := rules[0]
	assert.Equal(t, "failed-login-burst", rule.ID)
	assert.Equal(t, 3, rule.MinEvents)
	assert.Equal(t, core.SeverityHigh, rule.Severity)
	require.Len(t, rule.Conditions, 1)
	assert.Equal(t, core.OpEquals, rule.Conditions[0].Operator)
}

func TestLoadRulesFileRejectsInvalidRule(t *testing.T) {
	dir := t.TempDir()
	path := writeRuleFile(t, dir, "bad.yaml", `rules:
  - id: broken
    name: Broken
    conditions:
      - field: event_type
        operator: between
        value: x
    time_window_minutes: 15
    min_events: 1
    severity: high
`)

	_, err := LoadRulesFile(path)
	assert.Error(t, err)
}

func TestLoadRulesFileRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeRuleFile(t, dir, "garbage.yaml", "rules: [unclosed")

	_, err := LoadRulesFile(path)
	assert.Error(t, err)
}

func TestLoadRulesDir(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "a.yaml", validRuleYAML)
	writeRuleFile(t, dir, "b.yml", `rules:
  - id: privilege-burst
    name: Privilege escalation burst
    conditions:
      - field: event_type
        operator: equals
        value: privilege_escalation
    time_window_minutes: 30
    min_events: 2
    severity: critical
    enabled: true
`)
	// Non-YAML files are ignored.
	writeRuleFile(t, dir, "notes.txt", "not a rule")

	rules, err := LoadRulesDir(dir)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	// Name-ordered files give a deterministic rule order.
	assert.Equal(t, "failed-login-burst", rules[0].ID)
	assert.Equal(t, "privilege-burst", rules[1].ID)
}

func TestLoadRulesDirRejectsDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "a.yaml", validRuleYAML)
	writeRuleFile(t, dir, "b.yaml", validRuleYAML)

	_, err := LoadRulesDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate rule id")
}

func TestLoadRulesDirMissing(t *testing.T) {
	_, err := LoadRulesDir(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
