package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/ochairo/instrumentation-verifier/internal/domain/entities"
	"github.com/ochairo/instrumentation-verifier/internal/external-adapters/yaml"
)

func runList(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configFile = fs.String("config", "", "Path to config file (default ./verifier.yml when present)")
		modulesDir = fs.String("modules-dir", "", "Directory of module manifests (overrides config)")
	)

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: verifier list [options]

List all instrumentation module manifests and their rules.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(stderr, `
Examples:
  verifier list
  verifier list --modules-dir instrumentation/modules
`)
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitPassed
		}
		return exitUsage
	}

	dir := *modulesDir
	if dir == "" {
		cfg, err := loadConfig(*configFile)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitUsage
		}
		dir = cfg.ModulesDir
	}

	modules, err := yaml.NewModuleRepository(dir).ListModules(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error listing modules: %v\n", err)
		return exitUsage
	}

	fmt.Fprintf(stdout, "Instrumentation modules (%d total):\n\n", len(modules))
	for _, m := range modules {
		printModule(stdout, m)
	}
	return exitPassed
}

func printModule(w io.Writer, m *entities.InstrumentationModule) {
	fmt.Fprintf(w, "  %s\n", m.ID)
	if m.InstrumentationJar != "" {
		fmt.Fprintf(w, "    jar:          %s\n", m.InstrumentationJar)
	}
	for _, r := range m.Passes {
		fmt.Fprintf(w, "    passes:       %s\n", r.Spec)
	}
	for _, r := range m.PassesOnly {
		fmt.Fprintf(w, "    passes_only:  %s\n", r.Spec)
	}
	for _, r := range m.Fails {
		fmt.Fprintf(w, "    fails:        %s\n", r.Spec)
	}
	for _, ex := range m.Exclude {
		fmt.Fprintf(w, "    exclude:      %s\n", ex)
	}
	for _, p := range m.ExcludePatterns {
		fmt.Fprintf(w, "    exclude_regex: %s\n", p)
	}
	if m.ExcludeQualifiers != nil {
		fmt.Fprintf(w, "    qualifiers:   %s excluded\n", m.QualifierPolicy())
	}
	fmt.Fprintln(w)
}
