// Package entities defines core domain models and data structures.
package entities

import (
	"fmt"
	"strings"
)

// ArtifactCoordinate identifies a published library independent of its version
type ArtifactCoordinate struct {
	Group string
	Name  string
}

// ParseCoordinate parses "group:name"
func ParseCoordinate(s string) (ArtifactCoordinate, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ArtifactCoordinate{}, &ParseError{Input: s, Reason: "coordinate must be \"group:name\""}
	}
	return ArtifactCoordinate{Group: parts[0], Name: parts[1]}, nil
}

func (c ArtifactCoordinate) String() string {
	return c.Group + ":" + c.Name
}

// Path returns the repository directory of the coordinate (group dots become slashes)
func (c ArtifactCoordinate) Path() string {
	return strings.ReplaceAll(c.Group, ".", "/") + "/" + c.Name
}

// ArtifactFileName returns the Maven file name of a version, with optional classifier and extension
func (c ArtifactCoordinate) ArtifactFileName(version, classifier, ext string) string {
	if ext == "" {
		ext = "jar"
	}
	if classifier != "" {
		return fmt.Sprintf("%s-%s-%s.%s", c.Name, version, classifier, ext)
	}
	return fmt.Sprintf("%s-%s.%s", c.Name, version, ext)
}

// ArtifactRef is an exact "group:name:version" reference, used for classpath entries
type ArtifactRef struct {
	Coordinate ArtifactCoordinate
	Version    string
}

// ParseArtifactRef parses "group:name:version"
func ParseArtifactRef(s string) (ArtifactRef, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return ArtifactRef{}, &ParseError{Input: s, Reason: "artifact must be \"group:name:version\""}
	}
	return ArtifactRef{
		Coordinate: ArtifactCoordinate{Group: parts[0], Name: parts[1]},
		Version:    parts[2],
	}, nil
}

func (r ArtifactRef) String() string {
	return r.Coordinate.String() + ":" + r.Version
}
