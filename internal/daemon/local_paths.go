package daemon

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"vidnotes/internal/config"
)

var errLocalPathsDisabled = errors.New("file_path submissions are disabled; set api.local_roots or api.token, or upload the file")

// allowLocalPath reports whether a JSON file_path submission may read path on
// the daemon host. Paths must resolve under one of the configured roots; with
// no roots configured the listener must be token protected.
func allowLocalPath(cfg config.API, path string) error {
	if len(cfg.LocalRoots) == 0 {
		if cfg.Token == "" {
			return errLocalPathsDisabled
		}
		return nil
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("file_path %q must be absolute", path)
	}
	resolved := resolvePath(path)
	for _, root := range cfg.LocalRoots {
		if withinRoot(resolvePath(root), resolved) {
			return nil
		}
	}
	return fmt.Errorf("file_path %q is outside api.local_roots", path)
}

// resolvePath cleans path and follows symlinks when the target exists.
func resolvePath(path string) string {
	cleaned := filepath.Clean(path)
	if resolved, err := filepath.EvalSymlinks(cleaned); err == nil {
		return resolved
	}
	return cleaned
}

func withinRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
