// Package video loads whole video files for submission to the video model.
// Local paths are read from disk; gs://bucket/object paths are read from
// Google Cloud Storage.
package video

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMIMEType is used for files whose extension is not recognised.
const DefaultMIMEType = "video/mp4"

var mimeTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".3gp":  "video/3gpp",
}

// MIMEType returns the media type for path based on its extension.
func MIMEType(path string) string {
	if t, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return t
	}
	return DefaultMIMEType
}

// Video is a fully loaded video file.
type Video struct {
	Path     string
	Data     []byte
	MIMEType string
}

// NotFoundError reports a video path that does not exist. It matches
// fs.ErrNotExist under errors.Is.
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("video file not found at %s", e.Path)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// Loader reads a whole video into memory.
type Loader interface {
	Load(ctx context.Context, path string) (*Video, error)
}

// FileLoader reads videos from the local filesystem.
type FileLoader struct{}

func (FileLoader) Load(ctx context.Context, path string) (*Video, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &NotFoundError{Path: path, Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("read video %s: %w", path, err)
	}

	return &Video{Path: path, Data: data, MIMEType: MIMEType(path)}, nil
}

// Router dispatches gs:// paths to Remote and everything else to Local.
// A nil Remote makes gs:// paths an error.
type Router struct {
	Local  Loader
	Remote Loader
}

var errNoRemote = errors.New("gs:// paths need a storage loader")

func (r Router) Load(ctx context.Context, path string) (*Video, error) {
	if IsGCSPath(path) {
		if r.Remote == nil {
			return nil, fmt.Errorf("load %s: %w", path, errNoRemote)
		}
		return r.Remote.Load(ctx, path)
	}

	local := r.Local
	if local == nil {
		local = FileLoader{}
	}
	return local.Load(ctx, path)
}
