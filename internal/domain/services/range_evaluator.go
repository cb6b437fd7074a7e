package services

import (
	"github.com/ochairo/instrumentation-verifier/internal/domain/entities"
)

// ExcludedVersion is an in-bounds version dropped by the exclusion policy
type ExcludedVersion struct {
	Version entities.Version
	Reason  string
}

// CandidateSet is the result of narrowing a version set to a range
type CandidateSet struct {
	Coordinate entities.ArtifactCoordinate
	Versions   []entities.Version
	Excluded   []ExcludedVersion
}

// Empty reports whether no version is left to verify
func (c CandidateSet) Empty() bool {
	return len(c.Versions) == 0
}

// AsVersionSet returns the candidates as a version set
func (c CandidateSet) AsVersionSet() entities.VersionSet {
	return entities.VersionSet{Coordinate: c.Coordinate, Versions: c.Versions}
}

// Candidates narrows set to the versions rng admits. It is pure: the same
// inputs always give the same ascending, deduplicated result.
func Candidates(set entities.VersionSet, rng entities.VersionRange) CandidateSet {
	normalized := entities.NewVersionSet(set.Coordinate, set.Versions)
	out := CandidateSet{
		Coordinate: set.Coordinate,
		Versions:   make([]entities.Version, 0, len(normalized.Versions)),
	}

	for _, v := range normalized.Versions {
		if !rng.InBounds(v) {
			continue
		}
		if reason := rng.ExclusionReason(set.Coordinate, v); reason != "" {
			out.Excluded = append(out.Excluded, ExcludedVersion{Version: v, Reason: reason})
			continue
		}
		out.Versions = append(out.Versions, v)
	}
	return out
}
