package encoder

import (
	"fmt"
	"os"
	"os/exec"
)

// wellKnownPaths are checked when ffmpeg is not on PATH.
var wellKnownPaths = []string{
	"/usr/bin/ffmpeg",
	"/usr/local/bin/ffmpeg",
	"/opt/homebrew/bin/ffmpeg",
}

// FindBinary locates the ffmpeg binary. An explicit configured path wins;
// otherwise PATH and a few well-known locations are checked.
func FindBinary(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured ffmpeg binary %s: %w", configured, err)
		}
		return configured, nil
	}

	if path, err := exec.LookPath("ffmpeg"); err == nil {
		return path, nil
	}

	for _, p := range wellKnownPaths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}

	return "", fmt.Errorf("ffmpeg binary not found")
}
