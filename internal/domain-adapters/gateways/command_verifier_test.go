package gateways

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ochairo/instrumentation-verifier/internal/domain/entities"
)

type mockFetcher struct {
	err     error
	fetched []string
}

func (m *mockFetcher) ListVersions(_ context.Context, _ entities.ArtifactCoordinate) ([]string, error) {
	return nil, errors.New("not implemented")
}

func (m *mockFetcher) Fetch(_ context.Context, coord entities.ArtifactCoordinate, version, _ string) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.fetched = append(m.fetched, coord.String()+":"+version)
	return []byte("jar:" + coord.Name), nil
}

func shellVerifier(t *testing.T, fetcher *mockFetcher, script string) *CommandVerifier {
	t.Helper()
	v, err := NewCommandVerifier(fetcher, CommandVerifierConfig{
		Command:            "/bin/sh",
		Args:               []string{"-c", script},
		InstrumentationJar: "/opt/instrumentation.jar",
		AgentJar:           "/opt/agent.jar",
		WorkDir:            t.TempDir(),
	})
	if err != nil {
		t.Fatalf("NewCommandVerifier() error = %v", err)
	}
	return v
}

func testUnit() entities.VerificationUnit {
	return entities.VerificationUnit{
		ModuleID:   "okhttp-3.x",
		Coordinate: entities.ArtifactCoordinate{Group: "com.squareup.okhttp3", Name: "okhttp"},
		Version:    entities.MustParseVersion("3.14.9"),
		Expect:     entities.ExpectApply,
		Classpath: []entities.ArtifactRef{
			{Coordinate: entities.ArtifactCoordinate{Group: "com.squareup.okio", Name: "okio"}, Version: "1.17.5"},
		},
	}
}

func TestNewCommandVerifier_RequiresCommand(t *testing.T) {
	if _, err := NewCommandVerifier(&mockFetcher{}, CommandVerifierConfig{}); err == nil {
		t.Error("NewCommandVerifier() should fail without a command")
	}
}

func TestCommandVerifier_ExitCodes(t *testing.T) {
	tests := []struct {
		name        string
		script      string
		wantApplied bool
		wantErr     bool
	}{
		{"exit 0 applies", "echo applied; exit 0", true, false},
		{"exit 1 does not apply", "echo skipped; exit 1", false, false},
		{"other exit codes are errors", "echo boom >&2; exit 42", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := shellVerifier(t, &mockFetcher{}, tt.script)
			result, err := v.Verify(context.Background(), testUnit())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if result.Applied != tt.wantApplied {
				t.Errorf("Verify() applied = %v, want %v", result.Applied, tt.wantApplied)
			}
			if result.Output == "" {
				t.Error("Verify() should capture command output")
			}
		})
	}
}

func TestCommandVerifier_Environment(t *testing.T) {
	fetcher := &mockFetcher{}
	v := shellVerifier(t, fetcher, `echo "$MODULE_ID|$COORDINATE|$VERSION|$INSTRUMENTATION_JAR|$AGENT_JAR|$EXPECT"; cat "$TARGET_JAR"; echo; echo "$CLASSPATH"`)

	result, err := v.Verify(context.Background(), testUnit())
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(result.Output), "\n")
	if len(lines) != 3 {
		t.Fatalf("unexpected output %q", result.Output)
	}
	if lines[0] != "okhttp-3.x|com.squareup.okhttp3:okhttp|3.14.9|/opt/instrumentation.jar|/opt/agent.jar|apply" {
		t.Errorf("environment = %q", lines[0])
	}
	if lines[1] != "jar:okhttp" {
		t.Errorf("target jar content = %q", lines[1])
	}
	classpath := filepath.SplitList(lines[2])
	if len(classpath) != 2 || filepath.Base(classpath[0]) != "okhttp-3.14.9.jar" || filepath.Base(classpath[1]) != "okio-1.17.5.jar" {
		t.Errorf("classpath = %v", classpath)
	}
	if len(fetcher.fetched) != 2 {
		t.Errorf("fetched = %v, want target and classpath entry", fetcher.fetched)
	}
}

func TestCommandVerifier_ModuleJarOverridesDefault(t *testing.T) {
	v := shellVerifier(t, &mockFetcher{}, `echo "$INSTRUMENTATION_JAR"`)
	unit := testUnit()
	unit.InstrumentationJar = "/build/okhttp.jar"

	result, err := v.Verify(context.Background(), unit)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if strings.TrimSpace(result.Output) != "/build/okhttp.jar" {
		t.Errorf("INSTRUMENTATION_JAR = %q", result.Output)
	}
}

func TestCommandVerifier_FetchFailure(t *testing.T) {
	v := shellVerifier(t, &mockFetcher{err: entities.ErrRepositoryUnavailable}, "exit 0")

	_, err := v.Verify(context.Background(), testUnit())
	if !errors.Is(err, entities.ErrRepositoryUnavailable) {
		t.Errorf("Verify() error = %v, want ErrRepositoryUnavailable", err)
	}
}

func TestCommandVerifier_Timeout(t *testing.T) {
	v := shellVerifier(t, &mockFetcher{}, "exec sleep 5")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := v.Verify(ctx, testUnit())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Verify() error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 4*time.Second {
		t.Error("Verify() did not stop the command on timeout")
	}
}

func TestCommandVerifier_CleansWorkDir(t *testing.T) {
	workDir := t.TempDir()
	v, err := NewCommandVerifier(&mockFetcher{}, CommandVerifierConfig{
		Command: "/bin/sh",
		Args:    []string{"-c", "exit 0"},
		WorkDir: workDir,
	})
	if err != nil {
		t.Fatalf("NewCommandVerifier() error = %v", err)
	}

	if _, err := v.Verify(context.Background(), testUnit()); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	entries, err := os.ReadDir(workDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("work dir not cleaned: %d entries left", len(entries))
	}
}

func TestTruncateOutput(t *testing.T) {
	short := "BUILD FAILED"
	if got := truncateOutput(short); got != short {
		t.Errorf("truncateOutput() = %q, want unchanged", got)
	}

	// a three-byte rune straddles every possible cut point
	long := strings.Repeat("検", maxCapturedOutput/3+10) + "x"
	for _, in := range []string{long, long + "y", long + "yz"} {
		got := truncateOutput(in)
		if !utf8.ValidString(got) {
			t.Errorf("truncateOutput() produced invalid UTF-8 for input of %d bytes", len(in))
		}
		if !strings.HasPrefix(got, "...") || !strings.HasSuffix(got, in[len(in)-1:]) {
			t.Errorf("truncateOutput() should keep the tail, got prefix %q", got[:10])
		}
		if len(got) > maxCapturedOutput+len("...") {
			t.Errorf("len(truncateOutput()) = %d, want at most %d", len(got), maxCapturedOutput+3)
		}
	}
}
