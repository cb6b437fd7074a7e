// Package orchestrators coordinates complex workflows across multiple domain services.
package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ochairo/instrumentation-verifier/internal/domain/entities"
	"github.com/ochairo/instrumentation-verifier/internal/domain/interfaces"
	"github.com/ochairo/instrumentation-verifier/internal/domain/interfaces/services"
)

// ErrInvalidRun is returned, before any unit is dispatched, for a run that cannot start
var ErrInvalidRun = errors.New("invalid verification run")

// VerificationOrchestratorConfig holds configuration for the orchestrator
type VerificationOrchestratorConfig struct {
	// Concurrency is the number of units verified in parallel
	Concurrency int
	// UnitTimeout bounds one verification; zero means no bound
	UnitTimeout time.Duration
	Logger      interfaces.Logger
	Metrics     services.MetricsRecorder
}

// VerificationOrchestrator runs verification units on a fixed worker pool
type VerificationOrchestrator struct {
	verifier    services.Verifier
	concurrency int
	unitTimeout time.Duration
	logger      interfaces.Logger
	metrics     services.MetricsRecorder
}

// NewVerificationOrchestrator creates a new verification orchestrator
func NewVerificationOrchestrator(verifier services.Verifier, config VerificationOrchestratorConfig) *VerificationOrchestrator {
	logger := config.Logger
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = services.NoOpMetrics{}
	}
	return &VerificationOrchestrator{
		verifier:    verifier,
		concurrency: config.Concurrency,
		unitTimeout: config.UnitTimeout,
		logger:      logger,
		metrics:     metrics,
	}
}

// Run verifies every unit and returns the report. Unit failures never abort
// the run; cancelling ctx stops dispatching and yields a Cancelled report
// whose undispatched units are listed as pending. In-flight units run to
// completion or to their own timeout.
func (o *VerificationOrchestrator) Run(ctx context.Context, units []entities.VerificationUnit) (*entities.VerificationReport, error) {
	if o.verifier == nil {
		return nil, fmt.Errorf("%w: verifier is required", ErrInvalidRun)
	}
	if o.concurrency <= 0 {
		return nil, fmt.Errorf("%w: concurrency must be positive, got %d", ErrInvalidRun, o.concurrency)
	}
	for i, u := range units {
		if err := u.Validate(); err != nil {
			return nil, fmt.Errorf("%w: unit %d: %w", ErrInvalidRun, i, err)
		}
	}

	report := &entities.VerificationReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	logger := o.logger.With(interfaces.F("run_id", report.RunID))
	logger.Info("verification run started",
		interfaces.F("units", len(units)),
		interfaces.F("concurrency", o.concurrency))

	outcomes := make([]entities.VerificationOutcome, len(units))
	done := make([]bool, len(units))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < o.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = o.execute(ctx, logger, units[i])
			}
		}()
	}

	cancelled := false
dispatch:
	for i, u := range units {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if u.SkipReason != "" || u.PlanErr != nil {
			outcomes[i] = o.preassigned(u)
			done[i] = true
			continue
		}
		select {
		case <-ctx.Done():
			cancelled = true
			break dispatch
		case jobs <- i:
			done[i] = true
		}
	}
	close(jobs)
	wg.Wait()

	for i, u := range units {
		if done[i] {
			report.Outcomes = append(report.Outcomes, outcomes[i])
		} else {
			report.Pending = append(report.Pending, u)
		}
	}
	report.FinishedAt = time.Now()
	summarize(report, cancelled)

	logger.Info("verification run finished",
		interfaces.F("status", report.Status.String()),
		interfaces.F("passed", report.Counts.Passed),
		interfaces.F("failed", report.Counts.Failed),
		interfaces.F("skipped", report.Counts.Skipped),
		interfaces.F("errored", report.Counts.Errored),
		interfaces.F("pending", report.Counts.Pending),
		interfaces.F("duration", report.Duration()))
	return report, nil
}

type verifyResult struct {
	result entities.VerificationResult
	err    error
}

// execute runs one unit under its own deadline, detached from run cancellation
func (o *VerificationOrchestrator) execute(ctx context.Context, logger interfaces.Logger, u entities.VerificationUnit) entities.VerificationOutcome {
	var (
		unitCtx context.Context
		cancel  context.CancelFunc
	)
	if o.unitTimeout > 0 {
		unitCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), o.unitTimeout)
	} else {
		unitCtx, cancel = context.WithCancel(context.WithoutCancel(ctx))
	}
	defer cancel()

	o.metrics.UnitStarted()
	start := time.Now()
	outcome := entities.VerificationOutcome{Unit: u, Status: entities.StatusRunning}
	logger.Debug("unit started",
		interfaces.F("module", u.ModuleID),
		interfaces.F("dependency", u.Dependency()),
		interfaces.F("status", outcome.Status.String()),
	)

	resultCh := make(chan verifyResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- verifyResult{err: fmt.Errorf("verifier panicked: %v", r)}
			}
		}()
		res, err := o.verifier.Verify(unitCtx, u)
		resultCh <- verifyResult{result: res, err: err}
	}()

	select {
	case <-unitCtx.Done():
		outcome.Status = entities.StatusErrored
		outcome.Detail = entities.DetailTimeout
	case r := <-resultCh:
		outcome.Output = r.result.Output
		switch {
		case r.err != nil && unitCtx.Err() != nil:
			outcome.Status = entities.StatusErrored
			outcome.Detail = entities.DetailTimeout
		case r.err != nil:
			outcome.Status = entities.StatusErrored
			outcome.Detail = r.err.Error()
		case r.result.Applied == u.Expect.ShouldApply():
			outcome.Status = entities.StatusPassed
		default:
			outcome.Status = entities.StatusFailed
			outcome.Detail = failureMessage(u, r.result.Output)
		}
	}
	outcome.Duration = time.Since(start)
	o.metrics.UnitFinished(outcome.Status, outcome.Duration)

	fields := []interfaces.Field{
		interfaces.F("module", u.ModuleID),
		interfaces.F("dependency", u.Dependency()),
		interfaces.F("status", outcome.Status.String()),
		interfaces.F("duration", outcome.Duration),
	}
	switch outcome.Status {
	case entities.StatusPassed:
		logger.Debug("unit verified", fields...)
	case entities.StatusFailed:
		logger.Warn("unit failed verification", fields...)
	default:
		logger.Error("unit errored", append(fields, interfaces.F("detail", outcome.Detail))...)
	}
	return outcome
}

// preassigned resolves a unit whose outcome was decided while planning
func (o *VerificationOrchestrator) preassigned(u entities.VerificationUnit) entities.VerificationOutcome {
	outcome := entities.VerificationOutcome{Unit: u}
	if u.PlanErr != nil {
		outcome.Status = entities.StatusErrored
		outcome.Detail = u.PlanErr.Error()
	} else {
		outcome.Status = entities.StatusSkipped
		outcome.Detail = u.SkipReason
	}
	o.metrics.UnitStarted()
	o.metrics.UnitFinished(outcome.Status, 0)
	return outcome
}

func failureMessage(u entities.VerificationUnit, output string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Verification FAILED. Instrumentation module %s", u.ModuleID)
	if u.Expect.ShouldApply() {
		fmt.Fprintf(&b, " SHOULD HAVE applied to %s and did not.", u.Dependency())
	} else {
		fmt.Fprintf(&b, " SHOULD NOT HAVE applied to %s but it did.", u.Dependency())
	}
	if u.SpecifiedRange != "" {
		fmt.Fprintf(&b, " You may need to adjust the range %q.", u.SpecifiedRange)
	}
	if output != "" {
		b.WriteString("\nVerifier output:\n")
		b.WriteString(output)
	}
	return b.String()
}

// summarize fills counts, per-module summaries and the overall status
func summarize(report *entities.VerificationReport, cancelled bool) {
	index := map[string]int{}
	module := func(id string) *entities.ModuleSummary {
		i, ok := index[id]
		if !ok {
			i = len(report.Modules)
			index[id] = i
			report.Modules = append(report.Modules, entities.ModuleSummary{ModuleID: id})
		}
		return &report.Modules[i]
	}

	for _, o := range report.Outcomes {
		report.Counts.Add(o.Status)
		module(o.Unit.ModuleID).Counts.Add(o.Status)
	}
	for _, u := range report.Pending {
		report.Counts.Add(entities.StatusPending)
		module(u.ModuleID).Counts.Add(entities.StatusPending)
	}

	for i := range report.Modules {
		report.Modules[i].Status = statusOf(report.Modules[i].Counts)
	}
	report.Status = statusOf(report.Counts)
	if cancelled {
		report.Status = entities.ReportCancelled
	}
}

func statusOf(c entities.OutcomeCounts) entities.ReportStatus {
	switch {
	case c.Failed > 0 || c.Errored > 0:
		return entities.ReportFailed
	case c.Pending > 0:
		return entities.ReportCancelled
	default:
		return entities.ReportPassed
	}
}
