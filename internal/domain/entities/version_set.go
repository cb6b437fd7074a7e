package entities

import "sort"

// VersionSet is the ascending, deduplicated list of published versions of one coordinate
type VersionSet struct {
	Coordinate ArtifactCoordinate
	Versions   []Version
}

// NewVersionSet sorts versions ascending and drops duplicates, keeping the first
// occurrence in input order (so "1.0" wins over a later "1.0.0").
func NewVersionSet(coord ArtifactCoordinate, versions []Version) VersionSet {
	sorted := make([]Version, len(versions))
	copy(sorted, versions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Less(sorted[j])
	})

	out := make([]Version, 0, len(sorted))
	for _, v := range sorted {
		if len(out) > 0 && out[len(out)-1].Equal(v) {
			continue
		}
		out = append(out, v)
	}
	return VersionSet{Coordinate: coord, Versions: out}
}

// Len returns the number of versions
func (s VersionSet) Len() int {
	return len(s.Versions)
}

// Strings returns the raw text of each version in order
func (s VersionSet) Strings() []string {
	out := make([]string, len(s.Versions))
	for i, v := range s.Versions {
		out[i] = v.String()
	}
	return out
}
