package detect

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"argus/core"
)

// ruleFile is the on-disk shape of a correlation rule file.
type ruleFile struct {
	Rules []*core.CorrelationRule `yaml:"rules"`
}

// LoadRulesDir reads every YAML rule file in dir, validates each rule and
// rejects duplicate IDs across files. Files are read in name order so load
// results are deterministic.
func LoadRulesDir(dir string) ([]*core.CorrelationRule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yml" || ext == ".yaml" {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)

	var rules []*core.CorrelationRule
	seen := make(map[string]string)
	for _, path := range files {
		loaded, err := LoadRulesFile(path)
		if err != nil {
			return nil, err
		}
		for _, rule := range loaded {
			if prev, dup := seen[rule.ID]; dup {
				return nil, fmt.Errorf("duplicate rule id %s in %s (first defined in %s)", rule.ID, path, prev)
			}
			seen[rule.ID] = path
			rules = append(rules, rule)
		}
	}
	return rules, nil
}

// LoadRulesFile parses and validates one YAML rule file.
func LoadRulesFile(path string) ([]*core.CorrelationRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file %s: %w", path, err)
	}

	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rule file %s: %w", path, err)
	}

	for _, rule := range file.Rules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule file %s: %w", path, err)
		}
	}
	return file.Rules, nil
}
