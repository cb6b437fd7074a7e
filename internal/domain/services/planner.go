package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ochairo/instrumentation-verifier/internal/domain/entities"
	"github.com/ochairo/instrumentation-verifier/internal/domain/interfaces"
)

// ErrPassesOnlyEmpty is the plan error of a module whose passes_only rules matched nothing
var ErrPassesOnlyEmpty = errors.New("passes_only matched no versions")

// VersionResolver resolves the published versions of a coordinate
type VersionResolver interface {
	Resolve(ctx context.Context, coord entities.ArtifactCoordinate) (entities.VersionSet, error)
}

// Planner expands module manifests into verification units
type Planner struct {
	resolver          VersionResolver
	logger            interfaces.Logger
	defaultQualifiers entities.QualifierSet
}

// NewPlanner creates a planner
func NewPlanner(resolver VersionResolver, logger interfaces.Logger) *Planner {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &Planner{resolver: resolver, logger: logger, defaultQualifiers: entities.DefaultExcludedQualifiers}
}

// SetDefaultExcludedQualifiers replaces the policy of modules that declare none
func (p *Planner) SetDefaultExcludedQualifiers(s entities.QualifierSet) {
	p.defaultQualifiers = s
}

// Plan returns the units of every module, ordered by module id, then rule
// order, then version ascending. Resolution failures and empty ranges become
// pre-assigned Errored/Skipped units; only invalid manifests and cancellation
// fail the call.
func (p *Planner) Plan(ctx context.Context, modules []*entities.InstrumentationModule) ([]entities.VerificationUnit, error) {
	sorted := make([]*entities.InstrumentationModule, 0, len(modules))
	for _, m := range modules {
		if m == nil {
			continue
		}
		if err := m.Validate(); err != nil {
			return nil, err
		}
		sorted = append(sorted, m)
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var units []entities.VerificationUnit
	for _, m := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		units = append(units, p.planModule(ctx, m)...)
	}
	return units, nil
}

// modulePlan carries per-module state while expanding rules
type modulePlan struct {
	module     *entities.InstrumentationModule
	exclusions map[entities.ArtifactCoordinate][]entities.Version
	units      []entities.VerificationUnit
}

func (p *Planner) planModule(ctx context.Context, m *entities.InstrumentationModule) []entities.VerificationUnit {
	mp := &modulePlan{module: m, exclusions: make(map[entities.ArtifactCoordinate][]entities.Version)}
	log := p.logger.With(interfaces.F("module", m.ID))

	for _, ex := range m.Exclude {
		set, err := p.resolver.Resolve(ctx, ex.Coordinate)
		if err != nil {
			mp.units = append(mp.units, p.errorUnit(m, ex.Coordinate, ex.String(), err))
			continue
		}
		mp.exclusions[ex.Coordinate] = append(mp.exclusions[ex.Coordinate], Candidates(set, ex.Range).Versions...)
	}

	if len(m.PassesOnly) == 0 {
		for _, rule := range m.Passes {
			mp.units = append(mp.units, p.expand(ctx, mp, rule, entities.ExpectApply)...)
		}
		for _, rule := range m.Fails {
			mp.units = append(mp.units, p.expand(ctx, mp, rule, entities.ExpectNoApply)...)
		}
		return mp.units
	}

	// fails take precedence over passes_only
	explicitFails := make(map[string]bool)
	for _, rule := range m.Fails {
		for _, u := range p.expand(ctx, mp, rule, entities.ExpectNoApply) {
			if isVersioned(u) {
				explicitFails[u.Dependency()] = true
			}
			mp.units = append(mp.units, u)
		}
	}

	passOnly := make(map[string]bool)
	var coords []entities.ArtifactCoordinate
	planFailed := false
	for _, rule := range m.PassesOnly {
		for _, u := range p.expand(ctx, mp, rule, entities.ExpectApply) {
			if u.PlanErr != nil {
				planFailed = true
			}
			if isVersioned(u) {
				if explicitFails[u.Dependency()] {
					log.Info("fail rule takes precedence over passes_only",
						interfaces.F("dependency", u.Dependency()),
						interfaces.F("rule", rule.Spec.String()))
					continue
				}
				passOnly[u.Dependency()] = true
				if !containsCoordinate(coords, u.Coordinate) {
					coords = append(coords, u.Coordinate)
				}
			}
			mp.units = append(mp.units, u)
		}
	}

	if len(passOnly) == 0 {
		if !planFailed {
			first := m.PassesOnly[0].Spec
			mp.units = append(mp.units, p.errorUnit(m, first.Coordinate, first.String(), ErrPassesOnlyEmpty))
		}
		return mp.units
	}

	// every other version of a passes_only coordinate must not apply
	for _, coord := range coords {
		implicit := entities.ModuleRule{Spec: entities.DependencySpec{Coordinate: coord, RangeText: "[0,)"}}
		for _, u := range p.expand(ctx, mp, implicit, entities.ExpectNoApply) {
			if isVersioned(u) && (passOnly[u.Dependency()] || explicitFails[u.Dependency()]) {
				continue
			}
			if u.SkipReason != "" && u.SkipReason != entities.DetailNoVersionsInRange && hasDependency(mp.units, u.Dependency()) {
				continue
			}
			mp.units = append(mp.units, u)
		}
	}
	return mp.units
}

// expand turns one rule into units: verifiable candidates plus Skipped units
// for policy exclusions, merged in ascending version order
func (p *Planner) expand(ctx context.Context, mp *modulePlan, rule entities.ModuleRule, expect entities.Expectation) []entities.VerificationUnit {
	m := mp.module
	spec := rule.Spec
	set, err := p.resolver.Resolve(ctx, spec.Coordinate)
	if err != nil {
		return []entities.VerificationUnit{p.errorUnit(m, spec.Coordinate, spec.String(), err)}
	}

	rng := spec.Range
	rng.ExcludedQualifiers = p.defaultQualifiers
	if m.ExcludeQualifiers != nil {
		rng.ExcludedQualifiers = *m.ExcludeQualifiers
	}
	rng.Exclusions = mp.exclusions[spec.Coordinate]
	rng.ExcludePatterns = m.ExcludePatterns
	candidates := Candidates(set, rng)

	base := entities.VerificationUnit{
		ModuleID:           m.ID,
		Coordinate:         spec.Coordinate,
		Expect:             expect,
		Classpath:          rule.Classpath,
		InstrumentationJar: m.InstrumentationJar,
		SpecifiedRange:     spec.String(),
	}

	if candidates.Empty() && len(candidates.Excluded) == 0 {
		u := base
		u.SkipReason = entities.DetailNoVersionsInRange
		return []entities.VerificationUnit{u}
	}

	units := make([]entities.VerificationUnit, 0, len(candidates.Versions)+len(candidates.Excluded))
	vi, ei := 0, 0
	for vi < len(candidates.Versions) || ei < len(candidates.Excluded) {
		u := base
		if ei >= len(candidates.Excluded) ||
			(vi < len(candidates.Versions) && candidates.Versions[vi].Less(candidates.Excluded[ei].Version)) {
			u.Version = candidates.Versions[vi]
			vi++
		} else {
			u.Version = candidates.Excluded[ei].Version
			u.SkipReason = candidates.Excluded[ei].Reason
			ei++
		}
		units = append(units, u)
	}
	return units
}

func (p *Planner) errorUnit(m *entities.InstrumentationModule, coord entities.ArtifactCoordinate, specified string, err error) entities.VerificationUnit {
	p.logger.Warn("failed to plan rule",
		interfaces.F("module", m.ID),
		interfaces.F("rule", specified),
		interfaces.Err(err))
	return entities.VerificationUnit{
		ModuleID:           m.ID,
		Coordinate:         coord,
		InstrumentationJar: m.InstrumentationJar,
		SpecifiedRange:     specified,
		PlanErr:            fmt.Errorf("failed to plan %s: %w", specified, err),
	}
}

func isVersioned(u entities.VerificationUnit) bool {
	return u.SkipReason == "" && u.PlanErr == nil && !u.Version.IsZero()
}

func containsCoordinate(coords []entities.ArtifactCoordinate, c entities.ArtifactCoordinate) bool {
	for _, x := range coords {
		if x == c {
			return true
		}
	}
	return false
}

func hasDependency(units []entities.VerificationUnit, dep string) bool {
	for _, u := range units {
		if u.Dependency() == dep {
			return true
		}
	}
	return false
}
