package gateways

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ochairo/instrumentation-verifier/internal/domain/entities"
)

// S3RepositoryConfig configures a Maven repository stored in an S3 bucket
type S3RepositoryConfig struct {
	Name string
	// URL is s3://bucket[/prefix]
	URL       string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// S3Repository reads a Maven layout from an S3-compatible object store
type S3Repository struct {
	name   string
	client *minio.Client
	bucket string
	prefix string
}

// ParseS3URL splits s3://bucket/prefix into bucket and prefix
func ParseS3URL(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid s3 repository url %q", raw)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}

// NewS3Repository creates an S3-backed repository
func NewS3Repository(cfg S3RepositoryConfig) (*S3Repository, error) {
	bucket, prefix, err := ParseS3URL(cfg.URL)
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = "s3.amazonaws.com"
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	name := cfg.Name
	if name == "" {
		name = cfg.URL
	}
	return &S3Repository{name: name, client: client, bucket: bucket, prefix: prefix}, nil
}

// Name returns the configured repository name
func (r *S3Repository) Name() string { return r.name }

// Remote is always true for S3 repositories
func (r *S3Repository) Remote() bool { return true }

func (r *S3Repository) key(relPath string) string {
	if r.prefix == "" {
		return relPath
	}
	return path.Join(r.prefix, relPath)
}

// Get reads one object
func (r *S3Repository) Get(ctx context.Context, relPath string) ([]byte, error) {
	p, err := cleanRelPath(relPath)
	if err != nil {
		return nil, err
	}

	obj, err := r.client.GetObject(ctx, r.bucket, r.key(p), minio.GetObjectOptions{})
	if err != nil {
		return nil, r.classify(p, err)
	}
	//nolint:errcheck // Defer close
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, maxArtifactSize+1))
	if err != nil {
		return nil, r.classify(p, err)
	}
	if len(data) > maxArtifactSize {
		return nil, fmt.Errorf("%s: %s exceeds %d bytes", r.name, p, maxArtifactSize)
	}
	return data, nil
}

// ListDirs returns the sorted "directory" names directly below relPath
func (r *S3Repository) ListDirs(ctx context.Context, relPath string) ([]string, error) {
	p, err := cleanRelPath(relPath)
	if err != nil {
		return nil, err
	}

	prefix := strings.TrimSuffix(r.key(p), "/") + "/"
	var dirs []string
	for obj := range r.client.ListObjects(ctx, r.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, r.classify(p, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			dirs = append(dirs, strings.TrimSuffix(strings.TrimPrefix(obj.Key, prefix), "/"))
		}
	}
	if len(dirs) == 0 {
		return nil, notFound(r.name, p)
	}
	sort.Strings(dirs)
	return dirs, nil
}

// classify maps minio errors onto the repository error model
func (r *S3Repository) classify(p string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchBucket":
		return fmt.Errorf("%w: %s: bucket %s does not exist", entities.ErrRepositoryUnavailable, r.name, r.bucket)
	case resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound:
		return notFound(r.name, p)
	case resp.StatusCode == 0 || isRetryableStatus(resp.StatusCode):
		return &TransientError{Repository: r.name, Err: err}
	default:
		return fmt.Errorf("%w: %s: %s: %v", entities.ErrRepositoryUnavailable, r.name, p, err)
	}
}
