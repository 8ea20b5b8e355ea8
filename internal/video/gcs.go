package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	gcs "cloud.google.com/go/storage"
)

const gcsScheme = "gs://"

// IsGCSPath reports whether path names a Cloud Storage object.
func IsGCSPath(path string) bool {
	return strings.HasPrefix(path, gcsScheme)
}

// ParseGCSPath splits gs://bucket/object into its bucket and object names.
func ParseGCSPath(path string) (bucket, object string, err error) {
	if !IsGCSPath(path) {
		return "", "", fmt.Errorf("not a gs:// path: %q", path)
	}
	bucket, object, ok := strings.Cut(strings.TrimPrefix(path, gcsScheme), "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("gs:// path needs a bucket and an object: %q", path)
	}
	return bucket, object, nil
}

type objectOpener func(ctx context.Context, bucket, object string) (io.ReadCloser, error)

// GCSLoader reads videos from Google Cloud Storage.
type GCSLoader struct {
	client *gcs.Client
	open   objectOpener
}

// NewGCSLoader creates a loader using application default credentials.
func NewGCSLoader(ctx context.Context) (*GCSLoader, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	l := &GCSLoader{client: client}
	l.open = func(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
		return client.Bucket(bucket).Object(object).NewReader(ctx)
	}
	return l, nil
}

func (l *GCSLoader) Close() error {
	if l.client == nil {
		return nil
	}
	return l.client.Close()
}

func (l *GCSLoader) Load(ctx context.Context, path string) (*Video, error) {
	bucket, object, err := ParseGCSPath(path)
	if err != nil {
		return nil, err
	}

	r, err := l.open(ctx, bucket, object)
	if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
		return nil, &NotFoundError{Path: path, Err: fmt.Errorf("%w: %w", fs.ErrNotExist, err)}
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return &Video{Path: path, Data: data, MIMEType: MIMEType(object)}, nil
}
