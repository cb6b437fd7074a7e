// Package gateways implements the repository client, artifact repositories and
// the command verifier.
package gateways

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/ochairo/instrumentation-verifier/internal/domain/entities"
)

const (
	mavenMetadataFile      = "maven-metadata.xml"
	mavenLocalMetadataFile = "maven-metadata-local.xml"
)

// Repository is one artifact repository backend laid out in the Maven
// directory convention. Get returns an error wrapping entities.ErrNotFound for
// missing paths and a *TransientError for failures worth retrying.
type Repository interface {
	Name() string
	// Remote reports whether requests cross the network (and so are retried)
	Remote() bool
	Get(ctx context.Context, relPath string) ([]byte, error)
}

// DirLister is implemented by repositories that can list version directories
// when no metadata file is published
type DirLister interface {
	ListDirs(ctx context.Context, relPath string) ([]string, error)
}

// TransientError marks a failure that may succeed on retry (timeouts, resets, 5xx, 429)
type TransientError struct {
	Repository string
	Err        error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Repository, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func isTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func notFound(repo, relPath string) error {
	return fmt.Errorf("%s: %s: %w", repo, relPath, entities.ErrNotFound)
}

func metadataPath(coord entities.ArtifactCoordinate, file string) string {
	return path.Join(coord.Path(), file)
}

func artifactPath(coord entities.ArtifactCoordinate, version, classifier string) string {
	return path.Join(coord.Path(), version, coord.ArtifactFileName(version, classifier, "jar"))
}

// cleanRelPath rejects paths that would escape the repository root
func cleanRelPath(relPath string) (string, error) {
	cleaned := path.Clean("/" + strings.TrimLeft(relPath, "/"))
	if strings.Contains(relPath, "..") {
		return "", fmt.Errorf("invalid repository path %q", relPath)
	}
	return strings.TrimPrefix(cleaned, "/"), nil
}
