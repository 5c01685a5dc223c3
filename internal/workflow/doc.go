// Package workflow runs submitted videos through the note pipeline.
//
// The Executor owns a bounded submission queue drained by a fixed pool of
// workers. Each job moves strictly forward through
//
//	starting [-> uploading] -> extracting -> transcribing [-> aligning] -> generating -> completed
//
// recording its milestone in the job registry as each stage starts. Source
// resolution, frame extraction, transcription, and generation are required: a
// failure records the error with its taxonomy kind and stops the job.
// Alignment is optional and only ever recorded as a non-fatal error.
//
// Every job owns <work_dir>/<job_id>/ exclusively. Retained frames, caption
// files, the alignment artifact, notes.md, and a debug-level job.log are
// written there.
package workflow
