package entities

import (
	"fmt"
	"regexp"
	"strings"
)

// QualifierSet is a set of qualifier kinds
type QualifierSet uint8

// DefaultExcludedQualifiers is applied to modules that do not list their own
var DefaultExcludedQualifiers = QualifierSet(0).With(QualifierSnapshot)

// Has reports whether k is in the set
func (s QualifierSet) Has(k QualifierKind) bool {
	return s&(1<<uint(k)) != 0
}

// With returns the set plus k
func (s QualifierSet) With(k QualifierKind) QualifierSet {
	return s | 1<<uint(k)
}

// Kinds returns the members in rank order
func (s QualifierSet) Kinds() []QualifierKind {
	var out []QualifierKind
	for k := QualifierSnapshot; k <= QualifierPost; k++ {
		if s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

func (s QualifierSet) String() string {
	names := make([]string, 0)
	for _, k := range s.Kinds() {
		names = append(names, k.String())
	}
	return "{" + strings.Join(names, ",") + "}"
}

// ParseQualifierSet builds a set from names such as ["snapshot", "rc"]
func ParseQualifierSet(names []string) (QualifierSet, error) {
	var s QualifierSet
	for _, name := range names {
		k, err := ParseQualifierKind(name)
		if err != nil {
			return 0, err
		}
		s = s.With(k)
	}
	return s, nil
}

// VersionRange is a declared support range plus the exclusion policy applied inside it.
// A nil bound is unbounded.
type VersionRange struct {
	Min          *Version
	Max          *Version
	MinExclusive bool
	MaxExclusive bool

	ExcludedQualifiers QualifierSet
	Exclusions         []Version
	ExcludePatterns    []*regexp.Regexp
}

// ParseRange parses Maven range notation:
//
//	[1.0,2.0)  (1.0,2.0]  [1.0,)  (,2.0]  [1.5]  1.5  +  (empty)
//
// A bare version selects exactly that version; "+" and the empty string select all.
// The result carries no exclusion policy.
func ParseRange(text string) (VersionRange, error) {
	s := strings.TrimSpace(text)
	if s == "" || s == "+" {
		return VersionRange{}, nil
	}

	opening, closing := s[0], s[len(s)-1]
	if opening != '[' && opening != '(' {
		if strings.ContainsAny(s, "[](),") {
			return VersionRange{}, &ParseError{Input: text, Reason: "malformed range"}
		}
		v, err := ParseVersion(s)
		if err != nil {
			return VersionRange{}, err
		}
		return VersionRange{Min: &v, Max: &v}, nil
	}
	if closing != ']' && closing != ')' {
		return VersionRange{}, &ParseError{Input: text, Reason: "range must end with ']' or ')'"}
	}

	body := s[1 : len(s)-1]
	if strings.ContainsAny(body, "[]()") {
		return VersionRange{}, &ParseError{Input: text, Reason: "multiple ranges are not supported"}
	}

	parts := strings.Split(body, ",")
	switch len(parts) {
	case 1:
		if opening != '[' || closing != ']' {
			return VersionRange{}, &ParseError{Input: text, Reason: "single-version range must use brackets"}
		}
		v, err := ParseVersion(parts[0])
		if err != nil {
			return VersionRange{}, err
		}
		return VersionRange{Min: &v, Max: &v}, nil
	case 2:
	default:
		return VersionRange{}, &ParseError{Input: text, Reason: "range must have at most two bounds"}
	}

	rng := VersionRange{MinExclusive: opening == '(', MaxExclusive: closing == ')'}
	if lo := strings.TrimSpace(parts[0]); lo != "" {
		v, err := ParseVersion(lo)
		if err != nil {
			return VersionRange{}, err
		}
		rng.Min = &v
	} else {
		rng.MinExclusive = false
	}
	if hi := strings.TrimSpace(parts[1]); hi != "" {
		v, err := ParseVersion(hi)
		if err != nil {
			return VersionRange{}, err
		}
		rng.Max = &v
	} else {
		rng.MaxExclusive = false
	}

	if err := rng.Validate(); err != nil {
		return VersionRange{}, err
	}
	return rng, nil
}

// Validate rejects ranges that can contain no version
func (r VersionRange) Validate() error {
	if r.Min == nil || r.Max == nil {
		return nil
	}
	c := r.Min.Compare(*r.Max)
	if c > 0 {
		return fmt.Errorf("%w: lower bound %s is above upper bound %s", ErrInvalidRange, r.Min, r.Max)
	}
	if c == 0 && (r.MinExclusive || r.MaxExclusive) {
		return fmt.Errorf("%w: %s is empty", ErrInvalidRange, r)
	}
	return nil
}

// InBounds reports whether v lies within the min/max bounds, ignoring exclusions
func (r VersionRange) InBounds(v Version) bool {
	if r.Min != nil {
		c := v.Compare(*r.Min)
		if c < 0 || (c == 0 && r.MinExclusive) {
			return false
		}
	}
	if r.Max != nil {
		c := v.Compare(*r.Max)
		if c > 0 || (c == 0 && r.MaxExclusive) {
			return false
		}
	}
	return true
}

// ExclusionReason returns why the exclusion policy drops v, or "" if it does not
func (r VersionRange) ExclusionReason(coord ArtifactCoordinate, v Version) string {
	if r.ExcludedQualifiers.Has(v.Qualifier()) {
		return fmt.Sprintf("excluded qualifier %s", v.Qualifier())
	}
	for _, ex := range r.Exclusions {
		if ex.Equal(v) {
			return "excluded version"
		}
	}
	if len(r.ExcludePatterns) > 0 {
		dep := coord.String() + ":" + v.String()
		for _, p := range r.ExcludePatterns {
			if p.MatchString(dep) {
				return fmt.Sprintf("excluded by pattern %q", unanchor(p.String()))
			}
		}
	}
	return ""
}

// String renders the bounds in Maven notation
func (r VersionRange) String() string {
	if r.Min == nil && r.Max == nil {
		return "[0,)"
	}
	if r.Min != nil && r.Max != nil && !r.MinExclusive && !r.MaxExclusive && r.Min.Equal(*r.Max) {
		return "[" + r.Min.String() + "]"
	}

	var b strings.Builder
	if r.MinExclusive {
		b.WriteByte('(')
	} else {
		b.WriteByte('[')
	}
	if r.Min != nil {
		b.WriteString(r.Min.String())
	}
	b.WriteByte(',')
	if r.Max != nil {
		b.WriteString(r.Max.String())
	}
	if r.MaxExclusive {
		b.WriteByte(')')
	} else {
		b.WriteByte(']')
	}
	return b.String()
}

// CompileExcludePattern compiles a pattern that must match a whole "group:name:version" string
func CompileExcludePattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, &ParseError{Input: pattern, Reason: err.Error()}
	}
	return re, nil
}

func unanchor(p string) string {
	return strings.TrimSuffix(strings.TrimPrefix(p, "^(?:"), ")$")
}
