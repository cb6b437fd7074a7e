package orchestrators

import (
	"context"
	"fmt"
	"time"

	"github.com/ochairo/instrumentation-verifier/internal/domain/entities"
	"github.com/ochairo/instrumentation-verifier/internal/domain/interfaces/repositories"
)

// UnitPlanner expands module manifests into verification units
type UnitPlanner interface {
	Plan(ctx context.Context, modules []*entities.InstrumentationModule) ([]entities.VerificationUnit, error)
}

// ModuleWorkflow coordinates the complete verification of instrumentation modules:
// load manifests, plan units against published versions, run them
type ModuleWorkflow struct {
	modules      repositories.ModuleRepository
	planner      UnitPlanner
	orchestrator *VerificationOrchestrator
}

// NewModuleWorkflow creates a new module workflow
func NewModuleWorkflow(modules repositories.ModuleRepository, planner UnitPlanner, orchestrator *VerificationOrchestrator) *ModuleWorkflow {
	return &ModuleWorkflow{modules: modules, planner: planner, orchestrator: orchestrator}
}

// WorkflowResult contains the result of a workflow run
type WorkflowResult struct {
	Modules      []*entities.InstrumentationModule
	Units        int
	Report       *entities.VerificationReport
	PlanDuration time.Duration
}

// Verify runs the workflow for the given module ids, or for every module when ids is empty
func (w *ModuleWorkflow) Verify(ctx context.Context, ids []string) (*WorkflowResult, error) {
	result := &WorkflowResult{}

	// Step 1: Load manifests
	modules, err := w.load(ctx, ids)
	if err != nil {
		return result, err
	}
	result.Modules = modules

	// Step 2: Plan units against published versions
	planStart := time.Now()
	units, err := w.planner.Plan(ctx, modules)
	if err != nil {
		return result, fmt.Errorf("failed to plan verification: %w", err)
	}
	result.Units = len(units)
	result.PlanDuration = time.Since(planStart)

	// Step 3: Verify
	report, err := w.orchestrator.Run(ctx, units)
	if err != nil {
		return result, fmt.Errorf("failed to run verification: %w", err)
	}
	result.Report = report
	return result, nil
}

func (w *ModuleWorkflow) load(ctx context.Context, ids []string) ([]*entities.InstrumentationModule, error) {
	if len(ids) == 0 {
		modules, err := w.modules.ListModules(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load modules: %w", err)
		}
		return modules, nil
	}

	modules := make([]*entities.InstrumentationModule, 0, len(ids))
	for _, id := range ids {
		m, err := w.modules.GetModule(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load module %s: %w", id, err)
		}
		modules = append(modules, m)
	}
	return modules, nil
}

// Summary returns a human-readable summary of the run
func (r *WorkflowResult) Summary() string {
	if r.Report == nil {
		return fmt.Sprintf("Verification did not run (%d modules loaded)", len(r.Modules))
	}
	c := r.Report.Counts
	return fmt.Sprintf(`Verification %s
Modules: %d
Units: %d (passed %d, failed %d, skipped %d, errored %d, pending %d)
Plan: %v
Total: %v`,
		r.Report.Status,
		len(r.Modules),
		r.Units,
		c.Passed, c.Failed, c.Skipped, c.Errored, c.Pending,
		r.PlanDuration.Round(time.Millisecond),
		r.Report.Duration().Round(time.Millisecond),
	)
}
