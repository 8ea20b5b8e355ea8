package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/invision-ai/invision/internal/logging"
	"github.com/invision-ai/invision/internal/video"
)

var (
	errBadRange         = errors.New("invalid range format")
	errRangeUnsatisfied = errors.New("range not satisfiable")
)

// byteRange is an inclusive span of a clip.
type byteRange struct {
	first, last int64
}

func (b byteRange) length() int64 { return b.last - b.first + 1 }

// parseByteRange reads the first span of a Range header. A nil range with a
// nil error means the whole clip was requested.
func parseByteRange(header string, size int64) (*byteRange, error) {
	if header == "" {
		return nil, nil
	}
	set, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, errBadRange
	}
	set, _, _ = strings.Cut(set, ",")
	from, to, ok := strings.Cut(strings.TrimSpace(set), "-")
	if !ok {
		return nil, errBadRange
	}

	var br byteRange
	switch {
	case from == "":
		n, err := strconv.ParseInt(to, 10, 64)
		if err != nil || n <= 0 {
			return nil, errBadRange
		}
		br = byteRange{first: max(size-n, 0), last: size - 1}
	default:
		first, err := strconv.ParseInt(from, 10, 64)
		if err != nil || first < 0 {
			return nil, errBadRange
		}
		br = byteRange{first: first, last: size - 1}
		if to != "" {
			if br.last, err = strconv.ParseInt(to, 10, 64); err != nil {
				return nil, errBadRange
			}
		}
	}

	if br.first > br.last || br.first >= size {
		return nil, errRangeUnsatisfied
	}
	br.last = min(br.last, size-1)
	return &br, nil
}

// clipHandler streams a job's local video so reviewers can check a breach
// against the footage.
func clipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Jobs.GetJob(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}
		if video.IsGCSPath(job.VideoPath) {
			WriteError(w, http.StatusConflict, "clip is stored in cloud storage", "REMOTE_CLIP")
			return
		}

		// Checked again here: the file may have been swapped since submission.
		path, err := video.ResolveLocal(job.VideoPath, cfg.MediaRoot)
		switch {
		case errors.Is(err, os.ErrNotExist):
			WriteError(w, http.StatusNotFound, "clip not found", "NOT_FOUND")
			return
		case errors.Is(err, video.ErrNotVideo), errors.Is(err, video.ErrOutsideRoot):
			cfg.Logger.Warn("refused to serve clip",
				"job_id", job.ID,
				"path", logging.SanitizePath(job.VideoPath),
				"error", err,
			)
			WriteError(w, http.StatusForbidden, "clip is not a servable video", "FORBIDDEN")
			return
		case err != nil:
			WriteError(w, http.StatusInternalServerError, "failed to resolve clip", "INTERNAL_ERROR")
			return
		}

		if err := serveClip(w, r, path); err != nil {
			cfg.Logger.Error("failed to serve clip",
				"job_id", job.ID,
				"path", logging.SanitizePath(job.VideoPath),
				"error", err,
			)
		}
	}
}

func serveClip(w http.ResponseWriter, r *http.Request, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			WriteError(w, http.StatusNotFound, "clip not found", "NOT_FOUND")
			return nil
		}
		WriteError(w, http.StatusInternalServerError, "failed to open clip", "INTERNAL_ERROR")
		return fmt.Errorf("open clip: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to stat clip", "INTERNAL_ERROR")
		return fmt.Errorf("stat clip: %w", err)
	}
	size := info.Size()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", video.MIMEType(path))

	br, err := parseByteRange(r.Header.Get("Range"), size)
	switch {
	case errors.Is(err, errRangeUnsatisfied):
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		WriteError(w, http.StatusRequestedRangeNotSatisfiable, "range not satisfiable", "BAD_RANGE")
		return nil
	case err != nil || br == nil:
		// Malformed ranges fall back to the whole clip.
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		_, err = io.Copy(w, f)
		return err
	}

	if _, err := f.Seek(br.first, io.SeekStart); err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to seek clip", "INTERNAL_ERROR")
		return fmt.Errorf("seek clip: %w", err)
	}
	w.Header().Set("Content-Length", strconv.FormatInt(br.length(), 10))
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", br.first, br.last, size))
	w.WriteHeader(http.StatusPartialContent)
	_, err = io.CopyN(w, f, br.length())
	return err
}
