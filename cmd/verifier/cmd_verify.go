package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ochairo/instrumentation-verifier/internal/config"
	"github.com/ochairo/instrumentation-verifier/internal/domain-adapters/gateways"
	orchestrators "github.com/ochairo/instrumentation-verifier/internal/domain-orchestrators"
	"github.com/ochairo/instrumentation-verifier/internal/domain/entities"
	"github.com/ochairo/instrumentation-verifier/internal/domain/interfaces"
	"github.com/ochairo/instrumentation-verifier/internal/external-adapters/yaml"
)

// stringList collects a repeatable flag
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func runVerify(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configFile      = fs.String("config", "", "Path to config file (default ./verifier.yml when present)")
		modulesDir      = fs.String("modules-dir", "", "Directory of module manifests (overrides config)")
		concurrency     = fs.Int("concurrency", 0, "Number of units verified in parallel (overrides config)")
		timeout         = fs.Duration("timeout", 0, "Time budget of one unit (overrides config)")
		jsonOutput      = fs.String("json-output", "", "Write the JSON report to this file")
		passesFile      = fs.String("passes-file", "", "Write passing units to this file (overrides config)")
		failuresFile    = fs.String("failures-file", "", "Write failing units to this file (overrides config)")
		metricsTextfile = fs.String("metrics-textfile", "", "Export Prometheus metrics to this file")
		keepWorkDirs    = fs.Bool("keep-work-dirs", false, "Keep per-unit work directories for debugging")
		quiet           = fs.Bool("quiet", false, "Only print the summary")
		modules         stringList
	)
	fs.Var(&modules, "module", "Module id to verify (repeatable; default all)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: verifier verify [options] [module-id...]

Expand every module manifest into (module, dependency, version) units against
the published versions of each dependency, then run the verifier command on
each unit.

Exit codes: 0 passed, 1 failed, 2 usage or configuration error, 130 cancelled.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(stderr, `
Examples:
  verifier verify
  verifier verify --module okhttp-3.x --concurrency 8
  verifier verify --config ci.yml --json-output report.json
`)
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitPassed
		}
		return exitUsage
	}
	modules = append(modules, fs.Args()...)

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	applyVerifyFlags(cfg, *modulesDir, *concurrency, *timeout, *jsonOutput, *passesFile, *failuresFile, *metricsTextfile, *keepWorkDirs)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	result, code := executeVerify(ctx, cfg, modules, stderr)
	if result == nil {
		return code
	}
	if !*quiet {
		printFailures(stdout, result.Report)
	}
	fmt.Fprintln(stdout, result.Summary())
	return code
}

func applyVerifyFlags(cfg *config.Config, modulesDir string, concurrency int, timeout time.Duration,
	jsonOutput, passesFile, failuresFile, metricsTextfile string, keepWorkDirs bool) {
	if modulesDir != "" {
		cfg.ModulesDir = modulesDir
	}
	if concurrency > 0 {
		cfg.Concurrency = concurrency
	}
	if timeout > 0 {
		cfg.UnitTimeout = timeout
	}
	if jsonOutput != "" {
		cfg.Output.JSONReport = jsonOutput
	}
	if passesFile != "" {
		cfg.Output.PassesFile = passesFile
	}
	if failuresFile != "" {
		cfg.Output.FailuresFile = failuresFile
	}
	if metricsTextfile != "" {
		cfg.Metrics.Textfile = metricsTextfile
	}
	if keepWorkDirs {
		cfg.Verifier.KeepWorkDirs = true
	}
}

// executeVerify wires the workflow, runs it and writes the report files.
// A nil result means the run never started.
func executeVerify(ctx context.Context, cfg *config.Config, ids []string, stderr io.Writer) (*orchestrators.WorkflowResult, int) {
	a, err := newApp(ctx, cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, exitUsage
	}
	defer a.writeMetrics()

	planner, err := a.planner()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, exitUsage
	}

	verifier, err := gateways.NewCommandVerifier(a.client, gateways.CommandVerifierConfig{
		Command:            cfg.Verifier.Command,
		Args:               cfg.Verifier.Args,
		InstrumentationJar: cfg.Verifier.InstrumentationJar,
		AgentJar:           cfg.Verifier.AgentJar,
		WorkDir:            cfg.Verifier.WorkDir,
		Env:                cfg.Verifier.Env,
		KeepWorkDirs:       cfg.Verifier.KeepWorkDirs,
		Logger:             a.logger,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, exitUsage
	}

	orchestrator := orchestrators.NewVerificationOrchestrator(verifier, orchestrators.VerificationOrchestratorConfig{
		Concurrency: cfg.Concurrency,
		UnitTimeout: cfg.UnitTimeout,
		Logger:      a.logger,
		Metrics:     a.metrics,
	})
	workflow := orchestrators.NewModuleWorkflow(yaml.NewModuleRepository(cfg.ModulesDir), planner, orchestrator)

	result, err := workflow.Verify(ctx, ids)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintf(stderr, "Verification cancelled: %v\n", err)
			return nil, exitCancelled
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, exitUsage
	}

	if err := writeReports(cfg.Output, result.Report); err != nil {
		a.logger.Error("failed to write reports", interfaces.Err(err))
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return result, exitFailed
	}
	return result, exitCode(result.Report)
}

func exitCode(report *entities.VerificationReport) int {
	switch report.Status {
	case entities.ReportPassed:
		return exitPassed
	case entities.ReportCancelled:
		return exitCancelled
	default:
		return exitFailed
	}
}
