package entities

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a verification unit
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusPassed
	StatusFailed
	StatusSkipped
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is allowed
func (s Status) Terminal() bool {
	return s >= StatusPassed
}

// DetailTimeout is the outcome detail of a unit that exceeded its time budget
const DetailTimeout = "timeout"

// DetailNoVersionsInRange is the detail of the Skipped unit emitted for an empty candidate set
const DetailNoVersionsInRange = "no versions in range"

// VerificationUnit is one (module, coordinate, version) check. Units are values;
// nothing mutates them after planning.
type VerificationUnit struct {
	ModuleID   string
	Coordinate ArtifactCoordinate
	Version    Version

	Expect             Expectation
	Classpath          []ArtifactRef
	InstrumentationJar string
	SpecifiedRange     string

	// SkipReason pre-assigns a Skipped outcome
	SkipReason string
	// PlanErr pre-assigns an Errored outcome (e.g. metadata could not be resolved)
	PlanErr error
}

// Dependency returns "group:name:version", or "group:name" when the unit has no version
func (u VerificationUnit) Dependency() string {
	if u.Version.IsZero() {
		return u.Coordinate.String()
	}
	return u.Coordinate.String() + ":" + u.Version.String()
}

// Validate checks the unit can be dispatched
func (u VerificationUnit) Validate() error {
	if u.ModuleID == "" {
		return fmt.Errorf("unit %s has no module id", u.Dependency())
	}
	if u.Coordinate.Group == "" || u.Coordinate.Name == "" {
		return fmt.Errorf("unit of module %s has an incomplete coordinate %q", u.ModuleID, u.Coordinate)
	}
	if u.Version.IsZero() && u.SkipReason == "" && u.PlanErr == nil {
		return fmt.Errorf("unit %s of module %s has no version", u.Coordinate, u.ModuleID)
	}
	return nil
}

// VerificationResult is what a verifier reports for one unit
type VerificationResult struct {
	Applied bool
	Output  string
}

// VerificationOutcome is the terminal result of one unit
type VerificationOutcome struct {
	Unit     VerificationUnit
	Status   Status
	Detail   string
	Output   string
	Duration time.Duration
}

// ReportStatus is the overall status of a run
type ReportStatus int

const (
	ReportPassed ReportStatus = iota
	ReportFailed
	ReportCancelled
)

func (s ReportStatus) String() string {
	switch s {
	case ReportPassed:
		return "passed"
	case ReportFailed:
		return "failed"
	case ReportCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// OutcomeCounts tallies outcomes by status
type OutcomeCounts struct {
	Passed  int
	Failed  int
	Skipped int
	Errored int
	Pending int
}

// Add counts one outcome status
func (c *OutcomeCounts) Add(s Status) {
	switch s {
	case StatusPassed:
		c.Passed++
	case StatusFailed:
		c.Failed++
	case StatusSkipped:
		c.Skipped++
	case StatusErrored:
		c.Errored++
	default:
		c.Pending++
	}
}

// Total returns the number of counted units
func (c OutcomeCounts) Total() int {
	return c.Passed + c.Failed + c.Skipped + c.Errored + c.Pending
}

// ModuleSummary groups the outcomes of one module
type ModuleSummary struct {
	ModuleID string
	Status   ReportStatus
	Counts   OutcomeCounts
}

// VerificationReport is the result of one run. Outcomes are in input order;
// Pending lists units never dispatched because the run was cancelled.
type VerificationReport struct {
	RunID      string
	Status     ReportStatus
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []VerificationOutcome
	Pending    []VerificationUnit
	Modules    []ModuleSummary
	Counts     OutcomeCounts
}

// Failures returns the Failed and Errored outcomes in report order
func (r *VerificationReport) Failures() []VerificationOutcome {
	var out []VerificationOutcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed || o.Status == StatusErrored {
			out = append(out, o)
		}
	}
	return out
}

// Duration returns the wall-clock time of the run
func (r *VerificationReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
