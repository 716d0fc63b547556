// Package normalize collapses dynamic values in span names (ids, uuids,
// addresses) into placeholders so that OTLP spans group into a bounded set
// of group_by values.
package normalize

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Pattern is one replacement rule as written in a patterns file.
type Pattern struct {
	Name        string `yaml:"name"`
	Regex       string `yaml:"regex"`
	Placeholder string `yaml:"placeholder"`
	Description string `yaml:"description"`
}

// PatternsConfig is the patterns file layout.
type PatternsConfig struct {
	Patterns []Pattern `yaml:"patterns"`
}

// CompiledPattern is a pattern with its regex compiled.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Placeholder string
}

// LoadPatterns reads and compiles a YAML patterns file. Patterns apply in
// file order.
func LoadPatterns(path string) ([]CompiledPattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading patterns file: %w", err)
	}

	var cfg PatternsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing patterns YAML: %w", err)
	}

	compiled := make([]CompiledPattern, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		if p.Name == "" {
			return nil, fmt.Errorf("pattern %d has no name", len(compiled))
		}
		regex, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("compiling pattern %s: %w", p.Name, err)
		}
		compiled = append(compiled, CompiledPattern{
			Name:        p.Name,
			Regex:       regex,
			Placeholder: p.Placeholder,
		})
	}
	return compiled, nil
}

// DefaultPatterns keeps route shape ("GET /users/<NUM>") while masking
// values. Order matters: wider matches come first.
func DefaultPatterns() []CompiledPattern {
	return []CompiledPattern{
		{
			Name:        "timestamp",
			Regex:       regexp.MustCompile(`\d{4}[/-]\d{2}[/-]\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?Z?`),
			Placeholder: "<TIMESTAMP>",
		},
		{
			Name:        "uuid",
			Regex:       regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`),
			Placeholder: "<UUID>",
		},
		{
			Name:        "email",
			Regex:       regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`),
			Placeholder: "<EMAIL>",
		},
		{
			Name:        "ip",
			Regex:       regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}(?::\d+)?\b`),
			Placeholder: "<IP>",
		},
		{
			Name:        "hex",
			Regex:       regexp.MustCompile(`\b[0-9a-f]{12,}\b`),
			Placeholder: "<HEX>",
		},
		{
			Name:        "number",
			Regex:       regexp.MustCompile(`\b\d+\b`),
			Placeholder: "<NUM>",
		},
	}
}
