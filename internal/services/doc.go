// Package services defines shared utilities consumed by the pipeline stages
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - The failure taxonomy (SourceUnavailable, AcquisitionFailed,
//     ExtractionFailed, GenerationFailed, AlignmentFailed) plus the Wrap
//     helper that tags errors with stage context without losing the cause.
//   - Details, which flattens a wrapped error into the fields recorded on jobs
//     and emitted in logs.
//
// Subpackages wrap external collaborators (LLM backends, WhisperX, yt-dlp).
package services
