package workflow

import (
	"path/filepath"
	"slices"

	"vidnotes/internal/config"
	"vidnotes/internal/frames"
)

// Job directory layout.
const (
	FramesDirName  = "frames"
	SourceDirName  = "source"
	NoteFileName   = "notes.md"
	JobLogFileName = "job.log"
	FramesFileName = "frames.json"
)

// Settings are the executor's scheduling and pipeline parameters.
type Settings struct {
	WorkDir          string
	Workers          int
	QueueSize        int
	SmartDefault     bool
	Frames           frames.Config
	LanguagePriority []string
	AlignWindow      float64
	StageOverrides   map[string]string
}

// SettingsFromConfig derives executor settings from the loaded configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		WorkDir:      cfg.Paths.WorkDir,
		Workers:      cfg.Pipeline.Workers,
		QueueSize:    cfg.Pipeline.QueueSize,
		SmartDefault: cfg.Frames.Enabled,
		Frames: frames.Config{
			SampleIntervalSeconds: cfg.Frames.SampleIntervalSeconds,
			Concepts:              slices.Clone(cfg.Frames.Concepts),
			Threshold:             cfg.Frames.Threshold,
			JPEGQuality:           cfg.Frames.JPEGQuality,
		},
		LanguagePriority: slices.Clone(cfg.Transcript.LanguagePriority),
		AlignWindow:      cfg.Transcript.AlignWindow,
		StageOverrides:   cfg.Logging.StageOverrides,
	}
}

func (s Settings) withDefaults() Settings {
	if s.Workers <= 0 {
		s.Workers = 1
	}
	if s.QueueSize <= 0 {
		s.QueueSize = 1
	}
	if s.AlignWindow <= 0 {
		s.AlignWindow = 5
	}
	return s
}

// JobDir returns the directory owned by one job.
func JobDir(workDir, jobID string) string {
	return filepath.Join(workDir, jobID)
}

// FramesDir returns where a job's retained frames are written.
func FramesDir(workDir, jobID string) string {
	return filepath.Join(JobDir(workDir, jobID), FramesDirName)
}
