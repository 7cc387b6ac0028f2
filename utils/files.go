package utils

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// SafeSubdir resolves subdir under base. Leading separators are dropped, so the
// result never escapes base.
func SafeSubdir(base, subdir string) (string, error) {
	subdir = strings.TrimSpace(subdir)
	subdir = strings.TrimPrefix(subdir, "/")
	subdir = strings.TrimPrefix(subdir, "\\")
	clean := filepath.Clean(subdir)

	if clean == "." || clean == "" {
		return filepath.Abs(base)
	}

	joined := filepath.Join(base, clean)

	baseAbs, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	joinedAbs, err := filepath.Abs(joined)
	if err != nil {
		return "", err
	}

	sep := string(os.PathSeparator)
	if !(joinedAbs == baseAbs || strings.HasPrefix(joinedAbs, baseAbs+sep)) {
		return "", errors.New("path traversal detected")
	}
	return joinedAbs, nil
}
