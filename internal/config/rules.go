package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/rule"
)

type ruleSeedFile struct {
	Rules []rule.CreateRuleRequest `yaml:"rules"`
}

// LoadRuleSeeds reads the attendance rule seed file. A missing file yields no seeds.
func LoadRuleSeeds(path string) ([]rule.CreateRuleRequest, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read rule seeds: %w", err)
	}
	return ParseRuleSeeds(data)
}

func ParseRuleSeeds(data []byte) ([]rule.CreateRuleRequest, error) {
	var f ruleSeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rule seeds: %w", err)
	}
	for i := range f.Rules {
		if err := f.Rules[i].Validate(); err != nil {
			return nil, fmt.Errorf("rule seed %d (%s): %w", i, f.Rules[i].RuleType, err)
		}
	}
	return f.Rules, nil
}
