package video

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrNotVideo is returned for paths that are not regular files with a
	// known video extension.
	ErrNotVideo = errors.New("not a video file")
	// ErrOutsideRoot is returned for paths that resolve outside the media root.
	ErrOutsideRoot = errors.New("path is outside the media root")
)

// HasVideoExt reports whether path ends in a known video extension.
func HasVideoExt(path string) bool {
	_, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]
	return ok
}

// ResolveLocal checks that path names an existing regular video file and
// returns its absolute path with symlinks resolved. When root is non-empty the
// resolved file must lie inside it.
func ResolveLocal(path, root string) (string, error) {
	if !HasVideoExt(path) {
		return "", fmt.Errorf("%w: %s", ErrNotVideo, path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return "", &NotFoundError{Path: path, Err: err}
	}
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}

	// A link named clip.mp4 may point anywhere.
	if !HasVideoExt(resolved) {
		return "", fmt.Errorf("%w: %s", ErrNotVideo, path)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrNotVideo, path)
	}

	if root == "" {
		return resolved, nil
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve media root: %w", err)
	}
	rootResolved, err := filepath.EvalSymlinks(rootAbs)
	if err != nil {
		return "", fmt.Errorf("resolve media root: %w", err)
	}
	rel, err := filepath.Rel(rootResolved, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return resolved, nil
}
