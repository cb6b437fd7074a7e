package gateways

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ochairo/instrumentation-verifier/internal/domain/entities"
	"github.com/ochairo/instrumentation-verifier/internal/domain/interfaces"
	"github.com/ochairo/instrumentation-verifier/internal/domain/interfaces/services"
)

const defaultArtifactCacheSize = 256

// SignatureChecker verifies a detached signature over data
type SignatureChecker interface {
	VerifyDetached(data, signature []byte) error
}

// ClientConfig configures a RepositoryClient
type ClientConfig struct {
	Retry           RetryPolicy
	RequireChecksum bool
	// CacheSize is the number of verified artifacts kept in memory
	CacheSize int
	// Signatures enables .asc verification when non-nil
	Signatures SignatureChecker
	Logger     interfaces.Logger
	Metrics    services.MetricsRecorder
}

// RepositoryClient queries repositories in priority order. Not-found answers
// fall through to the next repository; transient failures of remote
// repositories are retried with exponential backoff first.
type RepositoryClient struct {
	repos           []Repository
	retry           RetryPolicy
	requireChecksum bool
	checksums       *ChecksumVerifier
	signatures      SignatureChecker
	cache           *lru.Cache[string, []byte]
	logger          interfaces.Logger
	metrics         services.MetricsRecorder
}

// NewRepositoryClient creates a client over repos, highest priority first
func NewRepositoryClient(repos []Repository, cfg ClientConfig) (*RepositoryClient, error) {
	if len(repos) == 0 {
		return nil, errors.New("at least one repository is required")
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultArtifactCacheSize
	}
	cache, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact cache: %w", err)
	}

	c := &RepositoryClient{
		repos:           repos,
		retry:           cfg.Retry,
		requireChecksum: cfg.RequireChecksum,
		checksums:       NewChecksumVerifier(),
		signatures:      cfg.Signatures,
		cache:           cache,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
	}
	if c.logger == nil {
		c.logger = &interfaces.NoOpLogger{}
	}
	if c.metrics == nil {
		c.metrics = services.NoOpMetrics{}
	}
	return c, nil
}

// ListVersions returns the versions listed by the first repository that knows the coordinate
func (c *RepositoryClient) ListVersions(ctx context.Context, coord entities.ArtifactCoordinate) ([]string, error) {
	var failures []error
	for _, repo := range c.repos {
		versions, err := c.listFrom(ctx, repo, coord)
		if err == nil {
			return versions, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, entities.ErrNotFound) {
			c.logger.Debug("metadata not found", interfaces.F("repository", repo.Name()), interfaces.F("coordinate", coord.String()))
			continue
		}
		c.logger.Warn("repository unavailable", interfaces.F("repository", repo.Name()), interfaces.Err(err))
		failures = append(failures, err)
	}
	return nil, exhausted(coord.String(), failures)
}

func (c *RepositoryClient) listFrom(ctx context.Context, repo Repository, coord entities.ArtifactCoordinate) ([]string, error) {
	data, err := c.get(ctx, repo, metadataPath(coord, mavenMetadataFile))
	if errors.Is(err, entities.ErrNotFound) && !repo.Remote() {
		data, err = c.get(ctx, repo, metadataPath(coord, mavenLocalMetadataFile))
	}
	if errors.Is(err, entities.ErrNotFound) {
		if lister, ok := repo.(DirLister); ok {
			return lister.ListDirs(ctx, coord.Path())
		}
	}
	if err != nil {
		return nil, err
	}

	versions, err := parseMavenMetadata(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", entities.ErrRepositoryUnavailable, repo.Name(), err)
	}
	return versions, nil
}

// Fetch returns the verified bytes of one artifact
func (c *RepositoryClient) Fetch(ctx context.Context, coord entities.ArtifactCoordinate, version, classifier string) ([]byte, error) {
	key := coord.String() + ":" + version
	if classifier != "" {
		key += ":" + classifier
	}
	if data, ok := c.cache.Get(key); ok {
		return data, nil
	}

	p := artifactPath(coord, version, classifier)
	var failures []error
	for _, repo := range c.repos {
		data, err := c.get(ctx, repo, p)
		if err == nil {
			err = c.verify(ctx, repo, p, data)
			if err == nil {
				c.cache.Add(key, data)
				return data, nil
			}
			if errors.Is(err, entities.ErrChecksumMismatch) || errors.Is(err, entities.ErrSignatureInvalid) {
				c.logger.Error("artifact failed verification", interfaces.F("repository", repo.Name()), interfaces.F("path", p), interfaces.Err(err))
				return nil, err
			}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, entities.ErrNotFound) {
			continue
		}
		c.logger.Warn("repository unavailable", interfaces.F("repository", repo.Name()), interfaces.Err(err))
		failures = append(failures, err)
	}
	return nil, exhausted(key, failures)
}

// verify checks the strongest published checksum and, when configured, the signature
func (c *RepositoryClient) verify(ctx context.Context, repo Repository, p string, data []byte) error {
	verified := false
	for _, algo := range c.checksums.Algorithms() {
		sidecar, err := c.get(ctx, repo, p+"."+algo)
		if errors.Is(err, entities.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to fetch %s checksum: %w", algo, err)
		}
		if err := c.checksums.VerifyChecksum(data, algo, string(sidecar)); err != nil {
			return fmt.Errorf("%s: %s: %w", repo.Name(), p, err)
		}
		verified = true
		break
	}
	if !verified {
		if c.requireChecksum {
			return fmt.Errorf("%w: %s: no checksum published for %s", entities.ErrChecksumMismatch, repo.Name(), p)
		}
		c.logger.Debug("no checksum published", interfaces.F("repository", repo.Name()), interfaces.F("path", p))
	}

	if c.signatures == nil {
		return nil
	}
	sig, err := c.get(ctx, repo, p+".asc")
	if errors.Is(err, entities.ErrNotFound) {
		return fmt.Errorf("%w: %s: no signature published for %s", entities.ErrSignatureInvalid, repo.Name(), p)
	}
	if err != nil {
		return fmt.Errorf("failed to fetch signature: %w", err)
	}
	if err := c.signatures.VerifyDetached(data, sig); err != nil {
		return fmt.Errorf("%w: %s: %s: %v", entities.ErrSignatureInvalid, repo.Name(), p, err)
	}
	return nil
}

// get reads one path, retrying transient failures of remote repositories
func (c *RepositoryClient) get(ctx context.Context, repo Repository, p string) ([]byte, error) {
	var data []byte
	fn := func() error {
		var err error
		data, err = repo.Get(ctx, p)
		return err
	}

	var err error
	if repo.Remote() {
		err = c.retry.do(ctx, fn, func(attempt int, cause error) {
			c.metrics.RepositoryRetry(repo.Name())
			c.logger.Debug("retrying repository request",
				interfaces.F("repository", repo.Name()),
				interfaces.F("path", p),
				interfaces.F("attempt", attempt),
				interfaces.Err(cause))
		})
	} else {
		err = fn()
	}

	switch {
	case err == nil:
		c.metrics.RepositoryRequest(repo.Name(), "ok")
		return data, nil
	case errors.Is(err, entities.ErrNotFound):
		c.metrics.RepositoryRequest(repo.Name(), "not_found")
		return nil, err
	case isTransient(err):
		c.metrics.RepositoryRequest(repo.Name(), "error")
		if !repo.Remote() {
			return nil, fmt.Errorf("%w: %s: %w", entities.ErrRepositoryUnavailable, repo.Name(), err)
		}
		return nil, fmt.Errorf("%w: %s after %d retries: %w", entities.ErrRepositoryUnavailable, repo.Name(), c.retry.MaxRetries, err)
	default:
		c.metrics.RepositoryRequest(repo.Name(), "error")
		return nil, err
	}
}

// exhausted builds the error of a request no repository could answer
func exhausted(what string, failures []error) error {
	if len(failures) == 0 {
		return fmt.Errorf("%s: %w in any repository", what, entities.ErrNotFound)
	}
	return fmt.Errorf("%w: %s: %w", entities.ErrRepositoryUnavailable, what, errors.Join(failures...))
}
