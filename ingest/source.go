package ingest

import (
	"fmt"
	"strings"

	perrors "github.com/letstravel/prospensity/pkg/errors"
)

const s3Scheme = "s3://"

// Source locates raw data: either a local path or an object in a bucket.
type Source struct {
	Path   string
	Bucket string
	Key    string
}

// ParseSource accepts a local path or an s3://bucket/key URL.
func ParseSource(s string) (Source, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Source{}, perrors.NewValidationError("source", "empty source", s)
	}
	if !strings.HasPrefix(s, s3Scheme) {
		return Source{Path: s}, nil
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(s, s3Scheme), "/")
	if !ok || bucket == "" || key == "" {
		return Source{}, perrors.NewValidationError("source", "expected s3://bucket/key", s)
	}
	return Source{Bucket: bucket, Key: key}, nil
}

// IsRemote reports whether the source is an object store location.
func (s Source) IsRemote() bool {
	return s.Bucket != ""
}

func (s Source) String() string {
	if s.IsRemote() {
		return fmt.Sprintf("%s%s/%s", s3Scheme, s.Bucket, s.Key)
	}
	return s.Path
}
