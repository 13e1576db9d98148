package modelstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Artifact names of the two ensemble members.
const (
	RandomForestName     = "rf_model"
	GradientBoostingName = "gb_model"
)

// maxArtifactBytes bounds an artifact read so a bad object cannot exhaust memory.
const maxArtifactBytes = 64 << 20

// Loader fetches the raw bytes of a named artifact.
type Loader interface {
	Load(ctx context.Context, name string) ([]byte, error)
}

// FileLoader reads "<dir>/<name>.json".
type FileLoader struct {
	Dir string
}

// NewFileLoader creates a loader rooted at dir.
func NewFileLoader(dir string) *FileLoader {
	return &FileLoader{Dir: dir}
}

// Load implements Loader.
func (l *FileLoader) Load(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(l.Dir, name+".json")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact %s: %w", path, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxArtifactBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", path, err)
	}
	return data, nil
}

// S3API is the subset of the S3 client the loader uses.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Loader reads "s3://<bucket>/<prefix>/<name>.json".
type S3Loader struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Loader creates a loader for the given bucket and key prefix.
func NewS3Loader(client S3API, bucket, prefix string) *S3Loader {
	return &S3Loader{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (l *S3Loader) key(name string) string {
	if l.prefix == "" {
		return name + ".json"
	}
	return l.prefix + "/" + name + ".json"
}

// Load implements Loader.
func (l *S3Loader) Load(ctx context.Context, name string) ([]byte, error) {
	key := l.key(name)
	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %q: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(io.LimitReader(out.Body, maxArtifactBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read object %q: %w", key, err)
	}
	return data, nil
}
