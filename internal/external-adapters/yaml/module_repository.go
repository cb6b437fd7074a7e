package yaml

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ochairo/instrumentation-verifier/internal/domain/entities"
)

var manifestExtensions = []string{".yml", ".yaml"}

// ModuleRepository implements repositories.ModuleRepository over a directory
// holding one YAML manifest per module
type ModuleRepository struct {
	modulesDir string
	parser     *ModuleParser
}

// NewModuleRepository creates a new YAML-based module repository
func NewModuleRepository(modulesDir string) *ModuleRepository {
	return &ModuleRepository{
		modulesDir: modulesDir,
		parser:     NewModuleParser(),
	}
}

// GetModule retrieves a module manifest by id. The manifest is looked up as
// <id>.yml or <id>.yaml first, then by scanning every manifest.
func (r *ModuleRepository) GetModule(ctx context.Context, id string) (*entities.InstrumentationModule, error) {
	for _, ext := range manifestExtensions {
		filePath := filepath.Join(r.modulesDir, id+ext)
		if _, err := os.Stat(filePath); err == nil {
			m, err := r.parser.ParseFile(filePath)
			if err != nil {
				return nil, err
			}
			if m.ID == id {
				return m, nil
			}
		}
	}

	modules, err := r.ListModules(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range modules {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, fmt.Errorf("module %s: %w", id, entities.ErrNotFound)
}

// ListModules returns every manifest ordered by id. An invalid manifest fails
// the whole listing.
func (r *ModuleRepository) ListModules(ctx context.Context) ([]*entities.InstrumentationModule, error) {
	entries, err := os.ReadDir(r.modulesDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("modules directory %s: %w", r.modulesDir, entities.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read modules directory: %w", err)
	}

	seen := map[string]string{}
	modules := make([]*entities.InstrumentationModule, 0)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Skip non-YAML files
		if entry.IsDir() || !isManifest(entry.Name()) {
			continue
		}

		m, err := r.parser.ParseFile(filepath.Join(r.modulesDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		}
		if prev, dup := seen[m.ID]; dup {
			return nil, fmt.Errorf("%w: id %s declared by both %s and %s", entities.ErrInvalidModule, m.ID, prev, entry.Name())
		}
		seen[m.ID] = entry.Name()
		modules = append(modules, m)
	}

	sort.Slice(modules, func(i, j int) bool { return modules[i].ID < modules[j].ID })
	return modules, nil
}

func isManifest(name string) bool {
	for _, ext := range manifestExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
