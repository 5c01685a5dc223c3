// Package preflight provides readiness checks for the external services,
// model files, and filesystem paths that vidnotes depends on.
//
// These checks run in two contexts:
//   - The daemon reports RunAll and CheckSystemDeps on GET /api/status.
//   - The CLI "vidnotes check" command additionally calls CheckLLMFromConfig,
//     which spends one completion request.
//
// Each check is gated by its config toggle -- disabled features are skipped.
package preflight
