package preflight

import (
	"context"
	"fmt"

	"vidnotes/internal/config"
	"vidnotes/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the local readiness checks for the given config: working
// directories, model files when smart mode is on, and the Redis mirror when
// configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	for _, status := range CheckCLIPModels(cfg) {
		results = append(results, fromStatus(status))
	}
	if cfg.RedisEnabled() {
		results = append(results, CheckRedis(ctx, cfg.Redis))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

func fromStatus(status deps.Status) Result {
	if status.Available {
		return Result{Name: status.Name, Passed: true, Detail: status.Command}
	}
	if status.Optional {
		return Result{Name: status.Name, Passed: true, Detail: fmt.Sprintf("optional: %s", status.Detail)}
	}
	return Result{Name: status.Name, Detail: fmt.Sprintf("%s (%s)", status.Detail, status.Description)}
}
