// Package repositories defines interfaces for data access layers.
package repositories

import (
	"context"

	"github.com/ochairo/instrumentation-verifier/internal/domain/entities"
)

// ModuleRepository gives access to instrumentation module manifests
type ModuleRepository interface {
	// GetModule retrieves a module manifest by id
	GetModule(ctx context.Context, id string) (*entities.InstrumentationModule, error)

	// ListModules returns every manifest, ordered by id
	ListModules(ctx context.Context) ([]*entities.InstrumentationModule, error)
}
