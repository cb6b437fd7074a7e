package entities

import "strings"

// DependencySpec is a "group:name:range" declaration from a module manifest
type DependencySpec struct {
	Coordinate ArtifactCoordinate
	RangeText  string
	Range      VersionRange
}

// ParseDependencySpec parses "group:name:versions" where versions is Maven range notation
func ParseDependencySpec(s string) (DependencySpec, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return DependencySpec{}, &ParseError{Input: s, Reason: "dependency must be \"group:name:versions\""}
	}
	rng, err := ParseRange(parts[2])
	if err != nil {
		return DependencySpec{}, err
	}
	return DependencySpec{
		Coordinate: ArtifactCoordinate{Group: parts[0], Name: parts[1]},
		RangeText:  parts[2],
		Range:      rng,
	}, nil
}

func (d DependencySpec) String() string {
	return d.Coordinate.String() + ":" + d.RangeText
}
