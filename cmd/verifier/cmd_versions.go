package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/ochairo/instrumentation-verifier/internal/domain/entities"
	"github.com/ochairo/instrumentation-verifier/internal/domain/services"
)

// versionsOutput is the JSON form of the versions command
type versionsOutput struct {
	Coordinate string            `json:"coordinate"`
	Range      string            `json:"range"`
	Published  []string          `json:"published"`
	Prerelease []string          `json:"prerelease,omitempty"`
	Candidates []string          `json:"candidates"`
	Excluded   map[string]string `json:"excluded,omitempty"`
}

func runVersions(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("versions", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configFile        = fs.String("config", "", "Path to config file (default ./verifier.yml when present)")
		excludeQualifiers = fs.String("exclude-qualifiers", "", "Comma-separated qualifier kinds to exclude (overrides config)")
		jsonOutput        = fs.Bool("json", false, "Output results as JSON")
	)

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: verifier versions [options] <group:name[:range]>

Resolve the published versions of a dependency and show which of them a
range would verify.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(stderr, `
Examples:
  verifier versions com.squareup.okhttp3:okhttp
  verifier versions "com.squareup.okhttp3:okhttp:[3.0,4.0)"
  verifier versions --exclude-qualifiers snapshot,alpha,beta io.netty:netty-all:[4.1,)
`)
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitPassed
		}
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(stderr, "Error: exactly one dependency is required\n\n")
		fs.Usage()
		return exitUsage
	}

	spec, err := parseVersionsArg(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	if *excludeQualifiers != "" {
		cfg.DefaultExcludeQualifiers = splitList(*excludeQualifiers)
	}

	a, err := newApp(ctx, cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	policy, err := a.defaultQualifiers()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	set, err := a.resolver.Resolve(ctx, spec.Coordinate)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, entities.ErrNotFound) {
			return exitUsage
		}
		return exitFailed
	}

	rng := spec.Range
	rng.ExcludedQualifiers = policy
	candidates := services.Candidates(set, rng)
	prerelease := prereleases(set)

	if *jsonOutput {
		out := versionsOutput{
			Coordinate: spec.Coordinate.String(),
			Range:      spec.RangeText,
			Published:  set.Strings(),
			Prerelease: prerelease,
			Candidates: candidates.AsVersionSet().Strings(),
		}
		if len(candidates.Excluded) > 0 {
			out.Excluded = make(map[string]string, len(candidates.Excluded))
			for _, ex := range candidates.Excluded {
				out.Excluded[ex.Version.String()] = ex.Reason
			}
		}
		encoder := json.NewEncoder(stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(out); err != nil {
			fmt.Fprintf(stderr, "Error encoding JSON: %v\n", err)
			return exitFailed
		}
		return exitPassed
	}

	fmt.Fprintf(stdout, "%s: %d published versions (%d pre-release)\n", spec.Coordinate, set.Len(), len(prerelease))
	fmt.Fprintf(stdout, "  %s\n\n", strings.Join(set.Strings(), " "))
	fmt.Fprintf(stdout, "Candidates in %s (%d):\n", spec.RangeText, len(candidates.Versions))
	for _, v := range candidates.Versions {
		fmt.Fprintf(stdout, "  %s\n", v)
	}
	if len(candidates.Excluded) > 0 {
		fmt.Fprintf(stdout, "\nExcluded (%d):\n", len(candidates.Excluded))
		for _, ex := range candidates.Excluded {
			fmt.Fprintf(stdout, "  %-24s %s\n", ex.Version, ex.Reason)
		}
	}
	return exitPassed
}

// prereleases lists the published versions ranking below a plain release
func prereleases(set entities.VersionSet) []string {
	var out []string
	for _, v := range set.Versions {
		if v.IsPrerelease() {
			out = append(out, v.String())
		}
	}
	return out
}

// parseVersionsArg accepts group:name (every version) or group:name:range
func parseVersionsArg(arg string) (entities.DependencySpec, error) {
	if strings.Count(arg, ":") == 1 {
		arg += ":+"
	}
	return entities.ParseDependencySpec(arg)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
