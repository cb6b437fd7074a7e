// Package yaml provides YAML-based module manifest parsing and repository implementations.
package yaml

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ochairo/instrumentation-verifier/internal/domain/entities"
)

// yamlModule represents the raw YAML structure
type yamlModule struct {
	ID                 string     `yaml:"id"`
	InstrumentationJar string     `yaml:"instrumentation_jar"`
	Passes             []yamlRule `yaml:"passes"`
	Fails              []yamlRule `yaml:"fails"`
	PassesOnly         []yamlRule `yaml:"passes_only"`
	Exclude            []string   `yaml:"exclude"`
	ExcludeRegex       []string   `yaml:"exclude_regex"`
	// nil keeps the default policy; an explicit empty list disables it
	ExcludeQualifiers *[]string `yaml:"exclude_qualifiers"`
}

// yamlRule accepts either "group:name:range" or {spec, classpath}
type yamlRule struct {
	Spec      string   `yaml:"spec"`
	Classpath []string `yaml:"classpath"`
}

// UnmarshalYAML implements the scalar shorthand
func (r *yamlRule) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&r.Spec)
	}
	type plain yamlRule
	return node.Decode((*plain)(r))
}

// ModuleParser parses YAML module manifests
type ModuleParser struct{}

// NewModuleParser creates a new YAML parser
func NewModuleParser() *ModuleParser {
	return &ModuleParser{}
}

// ParseFile parses a YAML manifest file into an InstrumentationModule
func (p *ModuleParser) ParseFile(filePath string) (*entities.InstrumentationModule, error) {
	//nolint:gosec // G304: filePath is a manifest path from the modules directory
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}

	return p.Parse(data)
}

// Parse parses YAML bytes into a validated InstrumentationModule
func (p *ModuleParser) Parse(data []byte) (*entities.InstrumentationModule, error) {
	var raw yamlModule
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Validate required fields
	if raw.ID == "" {
		return nil, fmt.Errorf("%w: module must have an id", entities.ErrInvalidModule)
	}

	m := &entities.InstrumentationModule{
		ID:                 raw.ID,
		InstrumentationJar: raw.InstrumentationJar,
	}

	var err error
	if m.Passes, err = convertRules(raw.ID, "passes", raw.Passes); err != nil {
		return nil, err
	}
	if m.Fails, err = convertRules(raw.ID, "fails", raw.Fails); err != nil {
		return nil, err
	}
	if m.PassesOnly, err = convertRules(raw.ID, "passes_only", raw.PassesOnly); err != nil {
		return nil, err
	}

	for _, s := range raw.Exclude {
		spec, err := entities.ParseDependencySpec(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: exclude: %w", entities.ErrInvalidModule, raw.ID, err)
		}
		m.Exclude = append(m.Exclude, spec)
	}

	for _, pattern := range raw.ExcludeRegex {
		re, err := entities.CompileExcludePattern(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: exclude_regex: %w", entities.ErrInvalidModule, raw.ID, err)
		}
		m.ExcludePatterns = append(m.ExcludePatterns, re)
	}

	if raw.ExcludeQualifiers != nil {
		set, err := entities.ParseQualifierSet(*raw.ExcludeQualifiers)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: exclude_qualifiers: %w", entities.ErrInvalidModule, raw.ID, err)
		}
		m.ExcludeQualifiers = &set
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func convertRules(id, field string, raw []yamlRule) ([]entities.ModuleRule, error) {
	rules := make([]entities.ModuleRule, 0, len(raw))
	for i, r := range raw {
		spec, err := entities.ParseDependencySpec(r.Spec)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %s[%d]: %w", entities.ErrInvalidModule, id, field, i, err)
		}
		rule := entities.ModuleRule{Spec: spec}
		for _, c := range r.Classpath {
			ref, err := entities.ParseArtifactRef(c)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %s[%d] classpath: %w", entities.ErrInvalidModule, id, field, i, err)
			}
			rule.Classpath = append(rule.Classpath, ref)
		}
		rules = append(rules, rule)
	}
	if len(rules) == 0 {
		return nil, nil
	}
	return rules, nil
}
