package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// EvaluatorConfig represents the configuration for one external evaluator.
type EvaluatorConfig struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Script      string            `yaml:"script" json:"script"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
}

// ConfigFile represents the structure of evaluators.yaml
type ConfigFile struct {
	Interpreter string            `yaml:"interpreter" json:"interpreter"`
	Evaluators  []EvaluatorConfig `yaml:"evaluators" json:"evaluators"`
}

// LoadEvaluators reads a configuration file (YAML or JSON) and returns a map of evaluator refs to configs.
// A missing file yields an empty map: every stage then fails open.
func LoadEvaluators(path string) (map[string]EvaluatorConfig, error) {
	if path == "" {
		return map[string]EvaluatorConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]EvaluatorConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read evaluators config: %w", err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse evaluators.json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse evaluators.yaml: %w", err)
		}
	}

	base := filepath.Dir(path)
	out := make(map[string]EvaluatorConfig)
	for _, ev := range cfg.Evaluators {
		if ev.Name == "" {
			continue
		}
		if ev.Command == "" {
			ev.Command = cfg.Interpreter
		}
		if ev.Script != "" && !filepath.IsAbs(ev.Script) {
			ev.Script = filepath.Join(base, ev.Script)
		}
		out[ev.Name] = ev
	}
	return out, nil
}

// DiscoverScripts registers every "<ref>.py" file in dir under its base name,
// run through interpreter (default "python3"). This mirrors the classic layout
// of one script per stage in a single directory.
func DiscoverScripts(dir, interpreter string) (map[string]EvaluatorConfig, error) {
	if interpreter == "" {
		interpreter = "python3"
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]EvaluatorConfig{}, nil
		}
		return nil, fmt.Errorf("failed to scan evaluator dir: %w", err)
	}

	out := make(map[string]EvaluatorConfig)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".py" {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".py")
		out[name] = EvaluatorConfig{
			Name:    name,
			Command: interpreter,
			Script:  filepath.Join(dir, e.Name()),
		}
	}
	return out, nil
}

// Names returns the configured refs in sorted order.
func Names(cfg map[string]EvaluatorConfig) []string {
	names := make([]string, 0, len(cfg))
	for n := range cfg {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
