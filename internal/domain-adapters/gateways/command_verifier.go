package gateways

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ochairo/instrumentation-verifier/internal/domain/entities"
	"github.com/ochairo/instrumentation-verifier/internal/domain/interfaces"
	"github.com/ochairo/instrumentation-verifier/internal/domain/interfaces/gateways"
)

// Exit codes of the verification command
const (
	exitApplied    = 0
	exitNotApplied = 1
)

// maxCapturedOutput bounds the command output kept for failure details
const maxCapturedOutput = 64 * 1024

// CommandVerifierConfig configures the external verification command
type CommandVerifierConfig struct {
	Command string
	Args    []string
	// InstrumentationJar is used for units whose module does not name one
	InstrumentationJar string
	AgentJar           string
	// WorkDir holds the per-unit directories; the system temp dir when empty
	WorkDir string
	Env     map[string]string
	// KeepWorkDirs leaves unit directories behind for debugging
	KeepWorkDirs bool
	Logger       interfaces.Logger
}

// CommandVerifier decides whether instrumentation applies by downloading the
// target artifact and its classpath, then running an external command.
// Exit 0 means applied, exit 1 means not applied, anything else is an error.
type CommandVerifier struct {
	cfg     CommandVerifierConfig
	fetcher gateways.RepositoryClient
	logger  interfaces.Logger
}

// NewCommandVerifier creates a command-backed verifier
func NewCommandVerifier(fetcher gateways.RepositoryClient, cfg CommandVerifierConfig) (*CommandVerifier, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, errors.New("verifier command is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &CommandVerifier{cfg: cfg, fetcher: fetcher, logger: logger}, nil
}

// Verify runs the command for one unit
func (v *CommandVerifier) Verify(ctx context.Context, unit entities.VerificationUnit) (entities.VerificationResult, error) {
	dir, err := os.MkdirTemp(v.cfg.WorkDir, "verify-*")
	if err != nil {
		return entities.VerificationResult{}, fmt.Errorf("failed to create work directory: %w", err)
	}
	if !v.cfg.KeepWorkDirs {
		//nolint:errcheck // Best-effort cleanup
		defer os.RemoveAll(dir)
	}

	target, err := v.download(ctx, dir, entities.ArtifactRef{Coordinate: unit.Coordinate, Version: unit.Version.String()})
	if err != nil {
		return entities.VerificationResult{}, err
	}

	classpath := []string{target}
	for _, ref := range unit.Classpath {
		p, err := v.download(ctx, dir, ref)
		if err != nil {
			return entities.VerificationResult{}, fmt.Errorf("failed to fetch classpath entry %s: %w", ref, err)
		}
		classpath = append(classpath, p)
	}

	instrumentationJar := unit.InstrumentationJar
	if instrumentationJar == "" {
		instrumentationJar = v.cfg.InstrumentationJar
	}

	env := map[string]string{
		"INSTRUMENTATION_JAR": instrumentationJar,
		"AGENT_JAR":           v.cfg.AgentJar,
		"TARGET_JAR":          target,
		"CLASSPATH":           strings.Join(classpath, string(os.PathListSeparator)),
		"MODULE_ID":           unit.ModuleID,
		"COORDINATE":          unit.Coordinate.String(),
		"VERSION":             unit.Version.String(),
		"EXPECT":              unit.Expect.String(),
	}
	for k, val := range v.cfg.Env {
		env[k] = val
	}

	return v.run(ctx, dir, env, unit)
}

func (v *CommandVerifier) download(ctx context.Context, dir string, ref entities.ArtifactRef) (string, error) {
	data, err := v.fetcher.Fetch(ctx, ref.Coordinate, ref.Version, "")
	if err != nil {
		return "", err
	}
	p := filepath.Join(dir, ref.Coordinate.ArtifactFileName(ref.Version, "", "jar"))
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", ref, err)
	}
	return p, nil
}

func (v *CommandVerifier) run(ctx context.Context, dir string, env map[string]string, unit entities.VerificationUnit) (entities.VerificationResult, error) {
	//nolint:gosec // G204: the command comes from operator configuration
	cmd := exec.CommandContext(ctx, v.cfg.Command, v.cfg.Args...)
	cmd.Dir = dir
	cmd.WaitDelay = 5 * time.Second

	cmdEnv := os.Environ()
	for key, value := range env {
		cmdEnv = append(cmdEnv, fmt.Sprintf("%s=%s", key, value))
	}
	cmd.Env = cmdEnv

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	err := cmd.Run()
	out := truncateOutput(output.String())

	v.logger.Debug("verification command finished",
		interfaces.F("module", unit.ModuleID),
		interfaces.F("dependency", unit.Dependency()),
		interfaces.F("duration", time.Since(start)),
		interfaces.F("exit_code", cmd.ProcessState.ExitCode()))

	if ctx.Err() != nil {
		return entities.VerificationResult{Output: out}, ctx.Err()
	}
	if err == nil {
		return entities.VerificationResult{Applied: true, Output: out}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case exitApplied:
			return entities.VerificationResult{Applied: true, Output: out}, nil
		case exitNotApplied:
			return entities.VerificationResult{Applied: false, Output: out}, nil
		default:
			return entities.VerificationResult{Output: out}, fmt.Errorf("verification command exited with code %d", exitErr.ExitCode())
		}
	}
	return entities.VerificationResult{Output: out}, fmt.Errorf("failed to run verification command: %w", err)
}

func truncateOutput(s string) string {
	if len(s) <= maxCapturedOutput {
		return s
	}
	cut := len(s) - maxCapturedOutput
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return "..." + s[cut:]
}
