// Package services defines interfaces for domain service contracts.
package services

import (
	"context"
	"time"

	"github.com/ochairo/instrumentation-verifier/internal/domain/entities"
)

// Verifier decides whether an instrumentation module applies to one dependency
// version. How it decides is opaque to the orchestrator.
type Verifier interface {
	Verify(ctx context.Context, unit entities.VerificationUnit) (entities.VerificationResult, error)
}

// VerifierFunc adapts a function to Verifier
type VerifierFunc func(ctx context.Context, unit entities.VerificationUnit) (entities.VerificationResult, error)

// Verify calls f
func (f VerifierFunc) Verify(ctx context.Context, unit entities.VerificationUnit) (entities.VerificationResult, error) {
	return f(ctx, unit)
}

// MetricsRecorder receives run telemetry. Implementations must be safe for concurrent use.
type MetricsRecorder interface {
	UnitStarted()
	UnitFinished(status entities.Status, d time.Duration)
	RepositoryRequest(repository, result string)
	RepositoryRetry(repository string)
	MetadataCache(hit bool)
}

// NoOpMetrics discards all telemetry
type NoOpMetrics struct{}

func (NoOpMetrics) UnitStarted() {}
func (NoOpMetrics) UnitFinished(_ entities.Status, _ time.Duration) {}
func (NoOpMetrics) RepositoryRequest(_, _ string) {}
func (NoOpMetrics) RepositoryRetry(_ string) {}
func (NoOpMetrics) MetadataCache(_ bool) {}
