package preflight

import (
	"context"
	"strings"

	"vidnotes/internal/config"
)

// CheckLLMFromConfig evaluates the note generator from config and connectivity.
func CheckLLMFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "Note generator"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	llmCfg := cfg.GetLLM()
	if strings.TrimSpace(llmCfg.APIKey) == "" {
		return Result{Name: name, Detail: "Missing API key"}
	}
	check := CheckLLM(ctx, name, llmCfg)
	if check.Passed {
		detail := check.Detail
		if llmCfg.Model != "" {
			detail += " (" + llmCfg.Model + ")"
		}
		return Result{Name: name, Passed: true, Detail: detail}
	}
	return Result{Name: name, Detail: check.Detail}
}
