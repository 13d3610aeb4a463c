package attachments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"movetrack/internal/config"
	"movetrack/internal/domain"
)

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps attachments in a bucket. URLs point at PublicURL when set, otherwise at the
// bucket's virtual-hosted endpoint.
type S3Store struct {
	Client    s3API
	Bucket    string
	Region    string
	Prefix    string
	PublicURL string
	Now       func() time.Time
}

// NewS3Store resolves AWS credentials from the default chain.
func NewS3Store(ctx context.Context, cfg config.S3Config) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3Store{
		Client:    s3.NewFromConfig(awsCfg),
		Bucket:    cfg.Bucket,
		Region:    awsCfg.Region,
		Prefix:    strings.Trim(cfg.Prefix, "/"),
		PublicURL: strings.TrimRight(cfg.PublicURL, "/"),
		Now:       time.Now,
	}, nil
}

func (s *S3Store) baseURL() string {
	if s.PublicURL != "" {
		return s.PublicURL
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", s.Bucket, s.Region)
}

func (s *S3Store) key(rel string) string {
	if s.Prefix == "" {
		return rel
	}
	return s.Prefix + "/" + rel
}

func (s *S3Store) Upload(ctx context.Context, f File, movementID, teamID string) (domain.Attachment, error) {
	key := s.key(objectKey(movementID, teamID, uuid.NewString(), f.Name))
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        f.Body,
		ContentType: aws.String(contentType),
	}
	if f.Size > 0 {
		in.ContentLength = aws.Int64(f.Size)
	}
	if _, err := s.Client.PutObject(ctx, in); err != nil {
		return domain.Attachment{}, &Error{Op: "upload", Name: f.Name, Err: err}
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return domain.Attachment{
		Name:       cleanName(f.Name),
		URL:        s.baseURL() + "/" + key,
		SizeBytes:  f.Size,
		UploadedAt: now().UTC().Format(time.RFC3339),
	}, nil
}

// objectFor returns the bucket key behind url.
func (s *S3Store) objectFor(url string) (string, bool) {
	prefix := s.baseURL() + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	if key == "" || (s.Prefix != "" && !strings.HasPrefix(key, s.Prefix+"/")) {
		return "", false
	}
	return key, true
}

// Owns reports whether url is an object uploaded for movementID/teamID under Prefix.
func (s *S3Store) Owns(url, movementID, teamID string) bool {
	key, ok := s.objectFor(url)
	if !ok {
		return false
	}
	if s.Prefix != "" {
		key = strings.TrimPrefix(key, s.Prefix+"/")
	}
	return keyOwnedBy(key, movementID, teamID)
}

func (s *S3Store) Delete(ctx context.Context, url string) (bool, error) {
	key, ok := s.objectFor(url)
	if !ok {
		return false, nil
	}
	_, err := s.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, &Error{Op: "delete", Name: key, Err: err}
	}
	return true, nil
}
