// Package llm provides an OpenRouter-compatible chat client used to generate
// notes.
//
// Complete sends a system and user prompt and returns the model's markdown.
// CompleteJSON and HealthCheck request JSON-only output; HealthCheck backs the
// status endpoint and the preflight check.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx, network timeouts, and empty
// completions with exponential backoff (base 1s, max 10s, up to 5 attempts by
// default). A Retry-After header overrides the computed delay. Context
// cancellation aborts retries immediately.
package llm
