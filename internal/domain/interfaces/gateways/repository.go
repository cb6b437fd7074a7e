// Package gateways defines interfaces for external service adapters.
package gateways

import (
	"context"

	"github.com/ochairo/instrumentation-verifier/internal/domain/entities"
)

// RepositoryClient reads version listings and artifacts from the configured
// artifact repositories
type RepositoryClient interface {
	// ListVersions returns the raw version strings published for a coordinate
	ListVersions(ctx context.Context, coord entities.ArtifactCoordinate) ([]string, error)

	// Fetch downloads and verifies one artifact; classifier may be empty
	Fetch(ctx context.Context, coord entities.ArtifactCoordinate, version, classifier string) ([]byte, error)
}
