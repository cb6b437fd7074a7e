package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ochairo/instrumentation-verifier/internal/domain/entities"
	"github.com/ochairo/instrumentation-verifier/internal/domain/interfaces"
	"github.com/ochairo/instrumentation-verifier/internal/domain/interfaces/services"
)

var okhttp = entities.ArtifactCoordinate{Group: "com.squareup.okhttp3", Name: "okhttp"}

func unit(module, version string, expect entities.Expectation) entities.VerificationUnit {
	return entities.VerificationUnit{
		ModuleID:       module,
		Coordinate:     okhttp,
		Version:        entities.MustParseVersion(version),
		Expect:         expect,
		SpecifiedRange: "[3.0,4.0)",
	}
}

// appliesBelow returns a verifier that applies to every version below max
func appliesBelow(max string) services.VerifierFunc {
	limit := entities.MustParseVersion(max)
	return func(_ context.Context, u entities.VerificationUnit) (entities.VerificationResult, error) {
		return entities.VerificationResult{Applied: u.Version.Less(limit), Output: "checked " + u.Version.String()}, nil
	}
}

func newOrchestrator(v services.Verifier, concurrency int, timeout time.Duration) *VerificationOrchestrator {
	return NewVerificationOrchestrator(v, VerificationOrchestratorConfig{
		Concurrency: concurrency,
		UnitTimeout: timeout,
	})
}

func statuses(r *entities.VerificationReport) []entities.Status {
	out := make([]entities.Status, len(r.Outcomes))
	for i, o := range r.Outcomes {
		out[i] = o.Status
	}
	return out
}

func TestVerificationOrchestrator_Run_Expectations(t *testing.T) {
	units := []entities.VerificationUnit{
		unit("okhttp-3", "3.0.0", entities.ExpectApply),
		unit("okhttp-3", "3.14.9", entities.ExpectApply),
		unit("okhttp-3", "4.0.0", entities.ExpectNoApply),
		unit("okhttp-3", "4.1.0", entities.ExpectApply),
		unit("okhttp-3", "2.7.5", entities.ExpectNoApply),
	}

	report, err := newOrchestrator(appliesBelow("4.0.0"), 3, time.Second).Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []entities.Status{
		entities.StatusPassed, entities.StatusPassed, entities.StatusPassed,
		entities.StatusFailed, entities.StatusFailed,
	}
	got := statuses(report)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
	if report.Status != entities.ReportFailed {
		t.Errorf("report status = %v, want failed", report.Status)
	}
	if report.RunID == "" {
		t.Error("report should carry a run id")
	}

	shouldHave := report.Outcomes[3].Detail
	if !strings.Contains(shouldHave, "SHOULD HAVE applied to com.squareup.okhttp3:okhttp:4.1.0 and did not.") ||
		!strings.Contains(shouldHave, `adjust the range "[3.0,4.0)"`) ||
		!strings.Contains(shouldHave, "Verifier output:\nchecked 4.1.0") {
		t.Errorf("failure detail = %q", shouldHave)
	}
	if !strings.Contains(report.Outcomes[4].Detail, "SHOULD NOT HAVE applied to com.squareup.okhttp3:okhttp:2.7.5 but it did.") {
		t.Errorf("failure detail = %q", report.Outcomes[4].Detail)
	}
	if len(report.Failures()) != 2 {
		t.Errorf("Failures() = %d, want 2", len(report.Failures()))
	}
}

func TestVerificationOrchestrator_Run_AllPassed(t *testing.T) {
	units := []entities.VerificationUnit{
		unit("a", "3.0.0", entities.ExpectApply),
		{ModuleID: "a", Coordinate: okhttp, Version: entities.MustParseVersion("3.1.0-SNAPSHOT"), SkipReason: "excluded qualifier snapshot"},
		{ModuleID: "b", Coordinate: okhttp, SkipReason: entities.DetailNoVersionsInRange},
	}

	report, err := newOrchestrator(appliesBelow("4.0.0"), 2, 0).Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Status != entities.ReportPassed {
		t.Errorf("report status = %v, want passed", report.Status)
	}
	if report.Counts.Passed != 1 || report.Counts.Skipped != 2 {
		t.Errorf("counts = %+v", report.Counts)
	}
	if report.Outcomes[2].Detail != entities.DetailNoVersionsInRange {
		t.Errorf("skip detail = %q", report.Outcomes[2].Detail)
	}
	if len(report.Modules) != 2 || report.Modules[0].ModuleID != "a" || report.Modules[1].Status != entities.ReportPassed {
		t.Errorf("modules = %+v", report.Modules)
	}
}

// statusLogger records the status field of every entry
type statusLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *statusLogger) record(msg string, fields []interfaces.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, f := range fields {
		if f.Key == "status" {
			l.entries = append(l.entries, fmt.Sprintf("%s:%v", msg, f.Value))
		}
	}
}

func (l *statusLogger) Debug(msg string, fields ...interfaces.Field) { l.record(msg, fields) }
func (l *statusLogger) Info(msg string, fields ...interfaces.Field)  { l.record(msg, fields) }
func (l *statusLogger) Warn(msg string, fields ...interfaces.Field)  { l.record(msg, fields) }
func (l *statusLogger) Error(msg string, fields ...interfaces.Field) { l.record(msg, fields) }
func (l *statusLogger) With(_ ...interfaces.Field) interfaces.Logger { return l }

func TestVerificationOrchestrator_Run_UnitPassesThroughRunning(t *testing.T) {
	logger := &statusLogger{}
	o := NewVerificationOrchestrator(appliesBelow("4.0.0"), VerificationOrchestratorConfig{
		Concurrency: 1,
		Logger:      logger,
	})

	if _, err := o.Run(context.Background(), []entities.VerificationUnit{unit("a", "3.0.0", entities.ExpectApply)}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	started, finished := -1, -1
	for i, e := range logger.entries {
		switch e {
		case "unit started:running":
			started = i
		case "unit verified:passed":
			finished = i
		}
	}
	if started < 0 || finished < 0 || started > finished {
		t.Errorf("log entries = %v, want running before passed", logger.entries)
	}
}

func TestVerificationOrchestrator_Run_PlanErrors(t *testing.T) {
	planErr := fmt.Errorf("failed to plan com.example:missing: %w", entities.ErrMetadataUnavailable)
	units := []entities.VerificationUnit{
		{ModuleID: "broken", Coordinate: entities.ArtifactCoordinate{Group: "com.example", Name: "missing"}, PlanErr: planErr},
		unit("healthy", "3.0.0", entities.ExpectApply),
	}

	report, err := newOrchestrator(appliesBelow("4.0.0"), 1, 0).Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := statuses(report); got[0] != entities.StatusErrored || got[1] != entities.StatusPassed {
		t.Errorf("statuses = %v", got)
	}
	if !strings.Contains(report.Outcomes[0].Detail, "metadata unavailable") {
		t.Errorf("detail = %q", report.Outcomes[0].Detail)
	}
	if report.Status != entities.ReportFailed {
		t.Errorf("report status = %v, want failed", report.Status)
	}
	if report.Modules[0].Status != entities.ReportFailed || report.Modules[1].Status != entities.ReportPassed {
		t.Errorf("modules = %+v", report.Modules)
	}
}

func TestVerificationOrchestrator_Run_Timeout(t *testing.T) {
	verifier := services.VerifierFunc(func(ctx context.Context, u entities.VerificationUnit) (entities.VerificationResult, error) {
		if u.Version.String() == "3.1.0" {
			<-ctx.Done()
			return entities.VerificationResult{}, ctx.Err()
		}
		return entities.VerificationResult{Applied: true}, nil
	})
	units := []entities.VerificationUnit{
		unit("m", "3.0.0", entities.ExpectApply),
		unit("m", "3.1.0", entities.ExpectApply),
		unit("m", "3.2.0", entities.ExpectApply),
	}

	report, err := newOrchestrator(verifier, 2, 50*time.Millisecond).Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got := statuses(report)
	if got[0] != entities.StatusPassed || got[1] != entities.StatusErrored || got[2] != entities.StatusPassed {
		t.Errorf("statuses = %v", got)
	}
	if report.Outcomes[1].Detail != entities.DetailTimeout {
		t.Errorf("detail = %q, want %q", report.Outcomes[1].Detail, entities.DetailTimeout)
	}
	for _, o := range report.Outcomes {
		if !o.Status.Terminal() {
			t.Errorf("outcome %s not terminal: %v", o.Unit.Dependency(), o.Status)
		}
	}
}

func TestVerificationOrchestrator_Run_HungVerifierIgnoringContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	verifier := services.VerifierFunc(func(_ context.Context, _ entities.VerificationUnit) (entities.VerificationResult, error) {
		<-release
		return entities.VerificationResult{Applied: true}, nil
	})

	start := time.Now()
	report, err := newOrchestrator(verifier, 1, 20*time.Millisecond).Run(context.Background(),
		[]entities.VerificationUnit{unit("m", "3.0.0", entities.ExpectApply)})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Outcomes[0].Detail != entities.DetailTimeout {
		t.Errorf("detail = %q, want timeout", report.Outcomes[0].Detail)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Run() waited for a hung verifier")
	}
}

func TestVerificationOrchestrator_Run_ErrorsAndPanics(t *testing.T) {
	verifier := services.VerifierFunc(func(_ context.Context, u entities.VerificationUnit) (entities.VerificationResult, error) {
		switch u.Version.String() {
		case "3.0.0":
			panic("boom")
		case "3.1.0":
			return entities.VerificationResult{Output: "partial"}, fmt.Errorf("fetch failed: %w", entities.ErrChecksumMismatch)
		}
		return entities.VerificationResult{Applied: true}, nil
	})
	units := []entities.VerificationUnit{
		unit("m", "3.0.0", entities.ExpectApply),
		unit("m", "3.1.0", entities.ExpectApply),
		unit("m", "3.2.0", entities.ExpectApply),
	}

	report, err := newOrchestrator(verifier, 3, time.Second).Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got := statuses(report)
	if got[0] != entities.StatusErrored || got[1] != entities.StatusErrored || got[2] != entities.StatusPassed {
		t.Errorf("statuses = %v", got)
	}
	if !strings.Contains(report.Outcomes[0].Detail, "panicked") {
		t.Errorf("panic detail = %q", report.Outcomes[0].Detail)
	}
	if !strings.Contains(report.Outcomes[1].Detail, "checksum mismatch") || report.Outcomes[1].Output != "partial" {
		t.Errorf("error outcome = %+v", report.Outcomes[1])
	}
}

func TestVerificationOrchestrator_Run_PreservesInputOrder(t *testing.T) {
	var units []entities.VerificationUnit
	for i := 0; i < 40; i++ {
		units = append(units, unit("m", fmt.Sprintf("3.%d.0", i), entities.ExpectApply))
	}
	verifier := services.VerifierFunc(func(_ context.Context, u entities.VerificationUnit) (entities.VerificationResult, error) {
		// later units finish first
		time.Sleep(time.Duration(40-u.Version.Segments()[1]) * time.Millisecond / 4)
		return entities.VerificationResult{Applied: true}, nil
	})

	report, err := newOrchestrator(verifier, 8, time.Second).Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for i, o := range report.Outcomes {
		if !o.Unit.Version.Equal(units[i].Version) {
			t.Fatalf("outcome %d is %s, want %s", i, o.Unit.Version, units[i].Version)
		}
	}
}

func TestVerificationOrchestrator_Run_BoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	verifier := services.VerifierFunc(func(_ context.Context, _ entities.VerificationUnit) (entities.VerificationResult, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return entities.VerificationResult{Applied: true}, nil
	})
	var units []entities.VerificationUnit
	for i := 0; i < 20; i++ {
		units = append(units, unit("m", fmt.Sprintf("3.%d", i), entities.ExpectApply))
	}

	if _, err := newOrchestrator(verifier, 3, time.Second).Run(context.Background(), units); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if peak.Load() > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak.Load())
	}
}

func TestVerificationOrchestrator_Run_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var once sync.Once
	var inFlightCtxErr atomic.Value

	verifier := services.VerifierFunc(func(unitCtx context.Context, _ entities.VerificationUnit) (entities.VerificationResult, error) {
		once.Do(func() { close(started) })
		time.Sleep(50 * time.Millisecond)
		inFlightCtxErr.Store(fmt.Sprint(unitCtx.Err()))
		return entities.VerificationResult{Applied: true}, nil
	})

	var units []entities.VerificationUnit
	for i := 0; i < 10; i++ {
		units = append(units, unit("m", fmt.Sprintf("3.%d", i), entities.ExpectApply))
	}

	go func() {
		<-started
		cancel()
	}()

	report, err := newOrchestrator(verifier, 1, time.Second).Run(ctx, units)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Status != entities.ReportCancelled {
		t.Errorf("report status = %v, want cancelled", report.Status)
	}
	if len(report.Pending) == 0 {
		t.Error("cancelled run should list pending units")
	}
	if len(report.Outcomes)+len(report.Pending) != len(units) {
		t.Errorf("outcomes %d + pending %d != units %d", len(report.Outcomes), len(report.Pending), len(units))
	}
	if report.Outcomes[0].Status != entities.StatusPassed {
		t.Errorf("in-flight unit should finish, got %v", report.Outcomes[0].Status)
	}
	if got := inFlightCtxErr.Load(); got != "<nil>" {
		t.Errorf("in-flight unit context was cancelled: %v", got)
	}
	if report.Counts.Pending != len(report.Pending) {
		t.Errorf("pending count = %d, want %d", report.Counts.Pending, len(report.Pending))
	}
}

func TestVerificationOrchestrator_Run_ContractViolations(t *testing.T) {
	valid := []entities.VerificationUnit{unit("m", "3.0.0", entities.ExpectApply)}
	tests := []struct {
		name  string
		orch  *VerificationOrchestrator
		units []entities.VerificationUnit
	}{
		{"nil verifier", newOrchestrator(nil, 1, 0), valid},
		{"zero concurrency", newOrchestrator(appliesBelow("4.0"), 0, 0), valid},
		{"unit without version", newOrchestrator(appliesBelow("4.0"), 1, 0), []entities.VerificationUnit{{ModuleID: "m", Coordinate: okhttp}}},
		{"unit without module", newOrchestrator(appliesBelow("4.0"), 1, 0), []entities.VerificationUnit{unit("", "3.0", entities.ExpectApply)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := tt.orch.Run(context.Background(), tt.units)
			if !errors.Is(err, ErrInvalidRun) {
				t.Errorf("Run() error = %v, want ErrInvalidRun", err)
			}
			if report != nil {
				t.Error("Run() should not return a report")
			}
		})
	}
}

func TestVerificationOrchestrator_Run_Empty(t *testing.T) {
	report, err := newOrchestrator(appliesBelow("4.0"), 4, 0).Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Status != entities.ReportPassed || len(report.Outcomes) != 0 {
		t.Errorf("report = %+v", report)
	}
}
