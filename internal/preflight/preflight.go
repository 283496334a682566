package preflight

import (
	"context"

	"tenderq/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// Targets are the opened backends to check. Nil targets are skipped.
type Targets struct {
	Store     Pinger
	Transport QueueProbe
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, targets Targets) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	results = append(results, CheckDirectoryAccess("PDF directory", cfg.Paths.PDFDir))
	results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))

	if targets.Store != nil {
		results = append(results, CheckStore(ctx, targets.Store))
	}
	if targets.Transport != nil {
		results = append(results, CheckTransport(ctx, targets.Transport))
	}

	for _, dep := range CheckSystemDeps(cfg) {
		detail := dep.Detail
		if dep.Available {
			detail = dep.Command
		}
		results = append(results, Result{
			Name:     dep.Name,
			Passed:   dep.Available,
			Optional: dep.Optional,
			Detail:   detail,
		})
	}

	results = append(results, CheckStatusDocument(cfg.Status.Path))
	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}
