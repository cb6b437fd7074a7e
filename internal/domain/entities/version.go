package entities

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// QualifierKind ranks the pre-release status of a version.
//
// Ordering, lowest first:
//
//	snapshot   any qualifier containing "snapshot", or a deployed snapshot
//	           timestamp such as 1.0.0-20230101.123456-1
//	alpha      alpha, a, dev, pre, preview, ea
//	beta       beta, b
//	milestone  milestone, m
//	rc         rc, cr
//	release    no qualifier, final, ga, release, and any unrecognised label
//	post       sp, or a purely numeric qualifier (1.0-1)
//
// Within one kind versions compare by label (lexically; canonical kinds share a
// label), then by qualifier number, then by any remaining qualifier text.
type QualifierKind int

const (
	QualifierSnapshot QualifierKind = iota
	QualifierAlpha
	QualifierBeta
	QualifierMilestone
	QualifierRC
	QualifierRelease
	QualifierPost
)

var qualifierKindNames = map[QualifierKind]string{
	QualifierSnapshot:  "snapshot",
	QualifierAlpha:     "alpha",
	QualifierBeta:      "beta",
	QualifierMilestone: "milestone",
	QualifierRC:        "rc",
	QualifierRelease:   "release",
	QualifierPost:      "post",
}

func (k QualifierKind) String() string {
	if name, ok := qualifierKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseQualifierKind maps a configuration name (e.g. "beta") to its kind
func ParseQualifierKind(s string) (QualifierKind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for kind, n := range qualifierKindNames {
		if n == name {
			return kind, nil
		}
	}
	if kind, ok := qualifierAliases[name]; ok {
		return kind, nil
	}
	return 0, &ParseError{Input: s, Reason: "unknown qualifier kind"}
}

var qualifierAliases = map[string]QualifierKind{
	"alpha":     QualifierAlpha,
	"a":         QualifierAlpha,
	"dev":       QualifierAlpha,
	"pre":       QualifierAlpha,
	"preview":   QualifierAlpha,
	"ea":        QualifierAlpha,
	"beta":      QualifierBeta,
	"b":         QualifierBeta,
	"milestone": QualifierMilestone,
	"m":         QualifierMilestone,
	"rc":        QualifierRC,
	"cr":        QualifierRC,
	"final":     QualifierRelease,
	"ga":        QualifierRelease,
	"release":   QualifierRelease,
	"sp":        QualifierPost,
}

// maxSegment bounds numeric segments so comparisons never overflow
const maxSegment = 1<<31 - 1

// Version is a parsed release string. The zero value is not a valid version.
type Version struct {
	raw      string
	segments []int
	kind     QualifierKind
	label    string
	number   int
	extra    string
}

// ParseVersion parses raw into a Version or returns a *ParseError.
//
// Strings that are valid semantic versions are parsed with Masterminds/semver;
// everything else (four segments, "1.0.Final", "2.0RC1") goes through the
// Maven-style tokenizer. Both paths feed the same qualifier rules.
func ParseVersion(raw string) (Version, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Version{}, &ParseError{Input: raw, Reason: "empty version"}
	}

	if sv, err := semver.NewVersion(s); err == nil {
		segments := []uint64{sv.Major(), sv.Minor(), sv.Patch()}
		v := Version{raw: s, segments: make([]int, 0, 3)}
		for _, seg := range segments {
			if seg > maxSegment {
				return Version{}, &ParseError{Input: raw, Reason: "numeric segment out of range"}
			}
			v.segments = append(v.segments, int(seg))
		}
		v.kind, v.label, v.number, v.extra = parseQualifier(sv.Prerelease())
		return v, nil
	}

	segments, qualifier, reason := tokenize(s)
	if reason != "" {
		return Version{}, &ParseError{Input: raw, Reason: reason}
	}
	v := Version{raw: s, segments: segments}
	v.kind, v.label, v.number, v.extra = parseQualifier(qualifier)
	return v, nil
}

// MustParseVersion is ParseVersion for literals in tests and defaults
func MustParseVersion(raw string) Version {
	v, err := ParseVersion(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// tokenize splits "1.2.3-beta1" into numeric segments and the qualifier text
func tokenize(s string) ([]int, string, string) {
	if s[0] == 'v' || s[0] == 'V' {
		s = s[1:]
	}
	if s == "" || !isDigit(s[0]) {
		return nil, "", "version must start with a digit"
	}

	var segments []int
	i := 0
	for {
		start := i
		for i < len(s) && isDigit(s[i]) {
			i++
		}
		n, err := strconv.Atoi(s[start:i])
		if err != nil || n > maxSegment {
			return nil, "", "numeric segment out of range"
		}
		segments = append(segments, n)

		if i == len(s) {
			return segments, "", ""
		}
		if s[i] == '.' && i+1 < len(s) && isDigit(s[i+1]) {
			i++
			continue
		}
		break
	}

	rest := s[i:]
	if rest[0] == '.' || rest[0] == '-' || rest[0] == '_' {
		rest = rest[1:]
	}
	if rest == "" {
		return nil, "", "empty qualifier"
	}
	for j := 0; j < len(rest); j++ {
		c := rest[j]
		if !isDigit(c) && !isLetter(c) && c != '.' && c != '-' && c != '_' && c != '+' {
			return nil, "", "invalid character " + strconv.QuoteRune(rune(c))
		}
	}
	return segments, rest, ""
}

// timestampedSnapshot matches the yyyyMMdd.HHmmss-build qualifier Maven deploys snapshots under
var timestampedSnapshot = regexp.MustCompile(`^\d{8}\.\d{6}-\d+$`)

// parseQualifier classifies qualifier text such as "beta.2", "RC1" or "SNAPSHOT"
func parseQualifier(q string) (QualifierKind, string, int, string) {
	q = strings.ToLower(q)
	if idx := strings.IndexByte(q, '+'); idx >= 0 {
		q = q[:idx]
	}
	if q == "" {
		return QualifierRelease, "", 0, ""
	}
	if timestampedSnapshot.MatchString(q) {
		return QualifierSnapshot, "", 0, q
	}
	if strings.Contains(q, "snapshot") {
		return QualifierSnapshot, "", 0, strings.TrimSuffix(strings.TrimSuffix(q, "snapshot"), "-")
	}

	i := 0
	for i < len(q) && isLetter(q[i]) {
		i++
	}
	word := q[:i]
	rest := q[i:]
	if rest != "" && (rest[0] == '.' || rest[0] == '-' || rest[0] == '_') && len(rest) > 1 && isDigit(rest[1]) {
		rest = rest[1:]
	}
	j := 0
	for j < len(rest) && isDigit(rest[j]) {
		j++
	}
	number := 0
	if j > 0 {
		if n, err := strconv.Atoi(rest[:j]); err == nil && n <= maxSegment {
			number = n
		}
	}
	extra := rest[j:]

	if word == "" {
		// purely numeric qualifier: a build or patch number after the release
		return QualifierPost, "", number, extra
	}
	if kind, ok := qualifierAliases[word]; ok {
		return kind, "", number, extra
	}
	return QualifierRelease, word, number, extra
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

// String returns the original (trimmed) text of the version
func (v Version) String() string {
	return v.raw
}

// IsZero reports whether v is the zero value rather than a parsed version
func (v Version) IsZero() bool {
	return v.raw == ""
}

// Qualifier returns the qualifier kind of the version
func (v Version) Qualifier() QualifierKind {
	return v.kind
}

// IsPrerelease reports whether the version ranks below a plain release
func (v Version) IsPrerelease() bool {
	return v.kind < QualifierRelease
}

// Segments returns a copy of the numeric segments
func (v Version) Segments() []int {
	out := make([]int, len(v.segments))
	copy(out, v.segments)
	return out
}

// Compare returns -1, 0 or 1. Trailing zero segments are insignificant.
func (v Version) Compare(o Version) int {
	n := len(v.segments)
	if len(o.segments) > n {
		n = len(o.segments)
	}
	for i := 0; i < n; i++ {
		a, b := segmentAt(v.segments, i), segmentAt(o.segments, i)
		if a != b {
			return cmpInt(a, b)
		}
	}
	if v.kind != o.kind {
		return cmpInt(int(v.kind), int(o.kind))
	}
	if c := strings.Compare(v.label, o.label); c != 0 {
		return c
	}
	if v.number != o.number {
		return cmpInt(v.number, o.number)
	}
	return strings.Compare(v.extra, o.extra)
}

// Equal reports whether v and o denote the same release
func (v Version) Equal(o Version) bool {
	return v.Compare(o) == 0
}

// Less reports whether v sorts before o
func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

func segmentAt(segments []int, i int) int {
	if i < len(segments) {
		return segments[i]
	}
	return 0
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
