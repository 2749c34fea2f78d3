package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/transfermanager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config names the bucket and credentials an S3Store uses. Ported from
// storage/s3.go's S3Config.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

// S3Store is the Archive Store backed by an S3-compatible object store,
// an alternative to FSStore for deployments with no shared local disk.
// It trades spec.md §4.4's advisory-lock discipline (meaningless against
// a remote object store) for S3's own read-after-write consistency; the
// lifecycle engine only sees the Backend interface, so either backend is
// interchangeable from its point of view.
type S3Store struct {
	client   *s3.Client
	uploader *transfermanager.Client
	bucket   string
	prefix   string
}

var _ Backend = (*S3Store)(nil)

// NewS3 constructs an S3Store from cfg.
func NewS3(ctx context.Context, cfg S3Config) (*S3Store, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &S3Store{
		client:   client,
		uploader: transfermanager.New(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
	}, nil
}

func (s *S3Store) key(id, version string) string {
	return path.Join(s.prefix, id, fmt.Sprintf("%s_%s.nuget", id, version))
}

// Store uploads the archive for (id, version), overwriting any existing
// object at that key.
func (s *S3Store) Store(id, version string, r io.Reader) error {
	ctx := context.Background()
	_, err := s.uploader.UploadObject(ctx, &transfermanager.UploadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id, version)),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("archive: s3 upload %s/%s: %w", id, version, err)
	}
	return nil
}

// Get streams the archive for (id, version) back from S3.
func (s *S3Store) Get(id, version string) (io.ReadCloser, bool, error) {
	ctx := context.Background()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id, version)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("archive: s3 get %s/%s: %w", id, version, err)
	}
	return out.Body, true, nil
}

// Delete removes the archive for (id, version) from S3. A missing object
// is not an error, matching FSStore's Delete semantics.
func (s *S3Store) Delete(id, version string) error {
	ctx := context.Background()
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id, version)),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 delete %s/%s: %w", id, version, err)
	}
	return nil
}
