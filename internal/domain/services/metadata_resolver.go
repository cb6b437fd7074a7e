// Package services implements domain business logic and use cases.
package services

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ochairo/instrumentation-verifier/internal/domain/entities"
	"github.com/ochairo/instrumentation-verifier/internal/domain/interfaces"
	"github.com/ochairo/instrumentation-verifier/internal/domain/interfaces/gateways"
	"github.com/ochairo/instrumentation-verifier/internal/domain/interfaces/services"
)

// VersionSetCache stores resolved version sets. Implementations must be safe for concurrent use.
type VersionSetCache interface {
	Get(coord entities.ArtifactCoordinate) (entities.VersionSet, bool)
	Put(set entities.VersionSet)
}

// MemoryCache is a process-lifetime VersionSetCache
type MemoryCache struct {
	mu   sync.RWMutex
	sets map[entities.ArtifactCoordinate]entities.VersionSet
}

// NewMemoryCache creates an empty cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{sets: make(map[entities.ArtifactCoordinate]entities.VersionSet)}
}

// Get returns the cached set for coord
func (c *MemoryCache) Get(coord entities.ArtifactCoordinate) (entities.VersionSet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set, ok := c.sets[coord]
	return set, ok
}

// Put stores set under its coordinate
func (c *MemoryCache) Put(set entities.VersionSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets[set.Coordinate] = set
}

// MetadataResolver turns repository listings into cached, parsed version sets.
// Concurrent requests for one coordinate share a single repository query.
type MetadataResolver struct {
	client  gateways.RepositoryClient
	cache   VersionSetCache
	group   singleflight.Group
	logger  interfaces.Logger
	metrics services.MetricsRecorder
}

// ResolverOption configures a MetadataResolver
type ResolverOption func(*MetadataResolver)

// WithCache replaces the default in-memory cache
func WithCache(cache VersionSetCache) ResolverOption {
	return func(r *MetadataResolver) { r.cache = cache }
}

// WithResolverLogger sets the logger
func WithResolverLogger(logger interfaces.Logger) ResolverOption {
	return func(r *MetadataResolver) { r.logger = logger }
}

// WithResolverMetrics sets the metrics recorder
func WithResolverMetrics(metrics services.MetricsRecorder) ResolverOption {
	return func(r *MetadataResolver) { r.metrics = metrics }
}

// NewMetadataResolver creates a resolver over client
func NewMetadataResolver(client gateways.RepositoryClient, opts ...ResolverOption) *MetadataResolver {
	r := &MetadataResolver{
		client:  client,
		cache:   NewMemoryCache(),
		logger:  &interfaces.NoOpLogger{},
		metrics: services.NoOpMetrics{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the version set of coord, querying the repositories at most
// once per coordinate for the lifetime of the cache. Failures are not cached
// and wrap ErrMetadataUnavailable.
func (r *MetadataResolver) Resolve(ctx context.Context, coord entities.ArtifactCoordinate) (entities.VersionSet, error) {
	if set, ok := r.cache.Get(coord); ok {
		r.metrics.MetadataCache(true)
		return set, nil
	}

	// the flight outlives any one caller; each caller still honours its own ctx below
	flightCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(coord.String(), func() (interface{}, error) {
		// another flight may have filled the cache between Get and DoChan
		if set, ok := r.cache.Get(coord); ok {
			return set, nil
		}
		r.metrics.MetadataCache(false)
		return r.load(flightCtx, coord)
	})

	select {
	case <-ctx.Done():
		return entities.VersionSet{}, fmt.Errorf("%w: %s: %w", entities.ErrMetadataUnavailable, coord, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return entities.VersionSet{}, res.Err
		}
		return res.Val.(entities.VersionSet), nil
	}
}

func (r *MetadataResolver) load(ctx context.Context, coord entities.ArtifactCoordinate) (entities.VersionSet, error) {
	raw, err := r.client.ListVersions(ctx, coord)
	if err != nil {
		r.logger.Warn("failed to list versions", interfaces.F("coordinate", coord.String()), interfaces.Err(err))
		return entities.VersionSet{}, fmt.Errorf("%w: %s: %w", entities.ErrMetadataUnavailable, coord, err)
	}

	versions := make([]entities.Version, 0, len(raw))
	for _, s := range raw {
		v, err := entities.ParseVersion(s)
		if err != nil {
			r.logger.Warn("dropping unparseable version",
				interfaces.F("coordinate", coord.String()),
				interfaces.F("version", s),
				interfaces.Err(err))
			continue
		}
		versions = append(versions, v)
	}

	set := entities.NewVersionSet(coord, versions)
	r.cache.Put(set)
	r.logger.Debug("resolved versions",
		interfaces.F("coordinate", coord.String()),
		interfaces.F("count", set.Len()))
	return set, nil
}
