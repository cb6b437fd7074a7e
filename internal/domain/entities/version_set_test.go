package entities

import (
	"errors"
	"reflect"
	"testing"
)

func parseAll(t *testing.T, raw ...string) []Version {
	t.Helper()
	out := make([]Version, 0, len(raw))
	for _, s := range raw {
		v, err := ParseVersion(s)
		if err != nil {
			t.Fatalf("ParseVersion(%q) error = %v", s, err)
		}
		out = append(out, v)
	}
	return out
}

func TestNewVersionSet_SortsAndDeduplicates(t *testing.T) {
	coord := ArtifactCoordinate{Group: "g", Name: "n"}
	set := NewVersionSet(coord, parseAll(t, "2.0.0", "1.0", "1.2.0-beta", "1.0.0", "1.2.0", "2.0"))

	want := []string{"1.0", "1.2.0-beta", "1.2.0", "2.0.0"}
	if got := set.Strings(); !reflect.DeepEqual(got, want) {
		t.Errorf("Strings() = %v, want %v", got, want)
	}
	if set.Coordinate != coord {
		t.Errorf("Coordinate = %v, want %v", set.Coordinate, coord)
	}
}

func TestNewVersionSet_DoesNotAliasInput(t *testing.T) {
	input := parseAll(t, "3.0", "1.0")
	NewVersionSet(ArtifactCoordinate{Group: "g", Name: "n"}, input)
	if input[0].String() != "3.0" {
		t.Errorf("input slice was reordered: %v", input)
	}
}

func TestInstrumentationModule_Validate(t *testing.T) {
	spec := func(s string) DependencySpec {
		d, err := ParseDependencySpec(s)
		if err != nil {
			t.Fatalf("ParseDependencySpec(%q) error = %v", s, err)
		}
		return d
	}

	tests := []struct {
		name    string
		module  InstrumentationModule
		wantErr bool
	}{
		{
			name:   "passes and fails",
			module: InstrumentationModule{ID: "m", Passes: []ModuleRule{{Spec: spec("g:n:[1,2)")}}, Fails: []ModuleRule{{Spec: spec("g:n:[2,)")}}},
		},
		{
			name:   "passes only",
			module: InstrumentationModule{ID: "m", PassesOnly: []ModuleRule{{Spec: spec("g:n:[1,2)")}}},
		},
		{
			name:    "missing id",
			module:  InstrumentationModule{Passes: []ModuleRule{{Spec: spec("g:n:1.0")}}},
			wantErr: true,
		},
		{
			name:    "passes with passes only",
			module:  InstrumentationModule{ID: "m", Passes: []ModuleRule{{Spec: spec("g:n:1.0")}}, PassesOnly: []ModuleRule{{Spec: spec("g:n:2.0")}}},
			wantErr: true,
		},
		{
			name:    "no rules",
			module:  InstrumentationModule{ID: "m"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.module.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidModule) {
				t.Errorf("error %v should wrap ErrInvalidModule", err)
			}
		})
	}
}

func TestInstrumentationModule_QualifierPolicy(t *testing.T) {
	m := InstrumentationModule{ID: "m"}
	if m.QualifierPolicy() != DefaultExcludedQualifiers {
		t.Errorf("default policy = %s, want %s", m.QualifierPolicy(), DefaultExcludedQualifiers)
	}

	none := QualifierSet(0)
	m.ExcludeQualifiers = &none
	if m.QualifierPolicy().Has(QualifierSnapshot) {
		t.Error("explicit empty policy should include snapshots")
	}
}

func TestVerificationUnit_Validate(t *testing.T) {
	coord := ArtifactCoordinate{Group: "g", Name: "n"}
	tests := []struct {
		name    string
		unit    VerificationUnit
		wantErr bool
	}{
		{"complete", VerificationUnit{ModuleID: "m", Coordinate: coord, Version: MustParseVersion("1.0")}, false},
		{"skip without version", VerificationUnit{ModuleID: "m", Coordinate: coord, SkipReason: DetailNoVersionsInRange}, false},
		{"plan error without version", VerificationUnit{ModuleID: "m", Coordinate: coord, PlanErr: ErrMetadataUnavailable}, false},
		{"no module", VerificationUnit{Coordinate: coord, Version: MustParseVersion("1.0")}, true},
		{"no coordinate", VerificationUnit{ModuleID: "m", Version: MustParseVersion("1.0")}, true},
		{"no version", VerificationUnit{ModuleID: "m", Coordinate: coord}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.unit.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOutcomeCounts(t *testing.T) {
	var c OutcomeCounts
	for _, s := range []Status{StatusPassed, StatusPassed, StatusFailed, StatusSkipped, StatusErrored, StatusPending} {
		c.Add(s)
	}
	if c.Passed != 2 || c.Failed != 1 || c.Skipped != 1 || c.Errored != 1 || c.Pending != 1 {
		t.Errorf("counts = %+v", c)
	}
	if c.Total() != 6 {
		t.Errorf("Total() = %d, want 6", c.Total())
	}
}
