package entities

import (
	"fmt"
	"regexp"
)

// Expectation is what a verification unit expects the instrumentation to do
type Expectation int

const (
	// ExpectApply means the module must apply to the dependency
	ExpectApply Expectation = iota
	// ExpectNoApply means the module must not apply to the dependency
	ExpectNoApply
)

// ShouldApply reports whether the instrumentation is expected to apply
func (e Expectation) ShouldApply() bool {
	return e == ExpectApply
}

func (e Expectation) String() string {
	if e == ExpectApply {
		return "apply"
	}
	return "not apply"
}

// ModuleRule is one passes/fails entry: a dependency range plus extra classpath artifacts
type ModuleRule struct {
	Spec      DependencySpec
	Classpath []ArtifactRef
}

// InstrumentationModule is the verification manifest of one instrumentation module
type InstrumentationModule struct {
	ID                 string
	InstrumentationJar string

	Passes     []ModuleRule
	Fails      []ModuleRule
	PassesOnly []ModuleRule

	// Exclude lists ranges whose resolved versions are never verified
	Exclude []DependencySpec
	// ExcludePatterns match whole "group:name:version" strings
	ExcludePatterns []*regexp.Regexp
	// ExcludeQualifiers overrides DefaultExcludedQualifiers when non-nil
	ExcludeQualifiers *QualifierSet
}

// Validate checks the manifest is usable; errors wrap ErrInvalidModule
func (m InstrumentationModule) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: module id is required", ErrInvalidModule)
	}
	if len(m.PassesOnly) > 0 && len(m.Passes) > 0 {
		return fmt.Errorf("%w: %s: passes_only cannot be combined with passes", ErrInvalidModule, m.ID)
	}
	if len(m.Passes)+len(m.Fails)+len(m.PassesOnly) == 0 {
		return fmt.Errorf("%w: %s: no passes, fails or passes_only rules", ErrInvalidModule, m.ID)
	}
	for _, rules := range [][]ModuleRule{m.Passes, m.Fails, m.PassesOnly} {
		for _, rule := range rules {
			if err := rule.Spec.Range.Validate(); err != nil {
				return fmt.Errorf("%w: %s: %s: %v", ErrInvalidModule, m.ID, rule.Spec, err)
			}
		}
	}
	return nil
}

// QualifierPolicy returns the qualifier kinds excluded for this module
func (m InstrumentationModule) QualifierPolicy() QualifierSet {
	if m.ExcludeQualifiers != nil {
		return *m.ExcludeQualifiers
	}
	return DefaultExcludedQualifiers
}
