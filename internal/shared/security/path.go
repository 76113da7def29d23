// Package security keeps user-supplied file names inside the directories cmpscan owns.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	consts "github.com/khanhnv2901/cmpscan/internal/shared/constants"
)

// ErrPathEscape means a name resolved outside its base directory.
var ErrPathEscape = errors.New("path escapes base directory")

// ResolveWithin joins elems under base and returns the absolute result. Names that
// climb out of base with ".." or an absolute path fail with ErrPathEscape.
func ResolveWithin(base string, elems ...string) (string, error) {
	if base == "" {
		return "", errors.New("base directory is required")
	}

	root, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("resolve base path: %w", err)
	}
	for _, e := range elems {
		if filepath.IsAbs(e) {
			return "", fmt.Errorf("%w: %s", ErrPathEscape, e)
		}
	}

	target := filepath.Join(append([]string{root}, elems...)...)
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", fmt.Errorf("relativize path: %w", err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, target)
	}
	return target, nil
}

// WriteFileWithin writes data to name under base, creating parent directories.
// It returns the path written.
func WriteFileWithin(base, name string, data []byte) (string, error) {
	path, err := ResolveWithin(base, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), consts.DefaultDirPerm); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}
	if err := os.WriteFile(path, data, consts.DefaultFilePerm); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
