package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ochairo/instrumentation-verifier/internal/config"
	"github.com/ochairo/instrumentation-verifier/internal/domain/entities"
)

// reportJSON is the machine-readable run report
type reportJSON struct {
	RunID      string        `json:"run_id"`
	Status     string        `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	DurationMS int64         `json:"duration_ms"`
	Counts     countsJSON    `json:"counts"`
	Modules    []moduleJSON  `json:"modules"`
	Outcomes   []outcomeJSON `json:"outcomes"`
	Pending    []unitJSON    `json:"pending,omitempty"`
}

type countsJSON struct {
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Errored int `json:"errored"`
	Pending int `json:"pending"`
}

type moduleJSON struct {
	ID     string     `json:"id"`
	Status string     `json:"status"`
	Counts countsJSON `json:"counts"`
}

type unitJSON struct {
	Module     string `json:"module"`
	Dependency string `json:"dependency"`
	Expect     string `json:"expect"`
	Range      string `json:"range,omitempty"`
}

type outcomeJSON struct {
	unitJSON
	Status     string `json:"status"`
	Detail     string `json:"detail,omitempty"`
	Output     string `json:"output,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

func toCounts(c entities.OutcomeCounts) countsJSON {
	return countsJSON{Passed: c.Passed, Failed: c.Failed, Skipped: c.Skipped, Errored: c.Errored, Pending: c.Pending}
}

func toUnit(u entities.VerificationUnit) unitJSON {
	return unitJSON{
		Module:     u.ModuleID,
		Dependency: u.Dependency(),
		Expect:     u.Expect.String(),
		Range:      u.SpecifiedRange,
	}
}

func toReportJSON(r *entities.VerificationReport) reportJSON {
	out := reportJSON{
		RunID:      r.RunID,
		Status:     r.Status.String(),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DurationMS: r.Duration().Milliseconds(),
		Counts:     toCounts(r.Counts),
		Modules:    make([]moduleJSON, 0, len(r.Modules)),
		Outcomes:   make([]outcomeJSON, 0, len(r.Outcomes)),
	}
	for _, m := range r.Modules {
		out.Modules = append(out.Modules, moduleJSON{ID: m.ModuleID, Status: m.Status.String(), Counts: toCounts(m.Counts)})
	}
	for _, o := range r.Outcomes {
		out.Outcomes = append(out.Outcomes, outcomeJSON{
			unitJSON:   toUnit(o.Unit),
			Status:     o.Status.String(),
			Detail:     o.Detail,
			Output:     o.Output,
			DurationMS: o.Duration.Milliseconds(),
		})
	}
	for _, u := range r.Pending {
		out.Pending = append(out.Pending, toUnit(u))
	}
	return out
}

// writeReports writes the pass/fail lists and the JSON report named in out.
// Every file is attempted; errors are joined.
func writeReports(out config.OutputConfig, r *entities.VerificationReport) error {
	var errs []error
	if out.PassesFile != "" {
		errs = append(errs, writeOutcomeLines(out.PassesFile, r, func(s entities.Status) bool {
			return s == entities.StatusPassed
		}))
	}
	if out.FailuresFile != "" {
		errs = append(errs, writeOutcomeLines(out.FailuresFile, r, func(s entities.Status) bool {
			return s == entities.StatusFailed || s == entities.StatusErrored
		}))
	}
	if out.JSONReport != "" {
		errs = append(errs, writeJSONReport(out.JSONReport, r))
	}
	return errors.Join(errs...)
}

// writeOutcomeLines writes "<module> <group:name:version>" per matching outcome
func writeOutcomeLines(path string, r *entities.VerificationReport, match func(entities.Status) bool) error {
	var b strings.Builder
	for _, o := range r.Outcomes {
		if match(o.Status) {
			fmt.Fprintf(&b, "%s %s\n", o.Unit.ModuleID, o.Unit.Dependency())
		}
	}
	return writeFile(path, []byte(b.String()))
}

func writeJSONReport(path string, r *entities.VerificationReport) error {
	data, err := json.MarshalIndent(toReportJSON(r), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // G306: report files are meant to be shared
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// printFailures writes the detail of every failed or errored unit
func printFailures(w io.Writer, r *entities.VerificationReport) {
	if r == nil {
		return
	}
	for _, o := range r.Failures() {
		fmt.Fprintf(w, "[%s] %s %s\n", o.Status, o.Unit.ModuleID, o.Unit.Dependency())
		if o.Detail != "" {
			fmt.Fprintln(w, o.Detail)
		}
		fmt.Fprintln(w)
	}
	if len(r.Pending) > 0 {
		fmt.Fprintf(w, "%d units were not run:\n", len(r.Pending))
		for _, u := range r.Pending {
			fmt.Fprintf(w, "  %s %s\n", u.ModuleID, u.Dependency())
		}
		fmt.Fprintln(w)
	}
}
