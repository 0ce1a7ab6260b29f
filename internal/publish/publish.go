// Package publish uploads built theme assets to S3-compatible storage.
package publish

import (
	"bytes"
	"context"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/themepack/internal/config"
	perrors "github.com/conneroisu/themepack/internal/errors"
	"github.com/conneroisu/themepack/internal/logging"
)

// ObjectPutter is the subset of the S3 client used for uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Publisher uploads a directory tree to a bucket.
type Publisher struct {
	Client      ObjectPutter
	Bucket      string
	Concurrency int
	Logger      logging.Logger
}

// Result lists the uploaded object keys.
type Result struct {
	Keys []string `json:"keys" yaml:"keys"`
}

// NewClient builds an S3 client from cfg with credentials from the
// standard AWS environment variables.
func NewClient(cfg config.PublishConfig) *s3.Client {
	opts := s3.Options{
		Region: cfg.Region,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) {
				return EnvCredentials()
			})),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}

// EnvCredentials reads AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and the
// optional AWS_SESSION_TOKEN.
func EnvCredentials() (aws.Credentials, error) {
	id := os.Getenv("AWS_ACCESS_KEY_ID")
	secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return aws.Credentials{}, perrors.NewConfigError(perrors.CodePublish,
			"AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set", nil)
	}
	return aws.Credentials{
		AccessKeyID:     id,
		SecretAccessKey: secret,
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "environment",
	}, nil
}

// New creates a Publisher.
func New(client ObjectPutter, bucket string, logger logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Publisher{
		Client:      client,
		Bucket:      bucket,
		Concurrency: 8,
		Logger:      logger.WithComponent("publish"),
	}
}

// Publish uploads every regular file under dir to prefix/<relative path>.
func (p *Publisher) Publish(ctx context.Context, dir, prefix string) (*Result, error) {
	if p.Bucket == "" {
		return nil, perrors.NewConfigError(perrors.CodePublish, "no bucket configured", nil)
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, perrors.NewIOError(perrors.CodePublish, "failed to list assets", err).WithPath(dir)
	}

	keys := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.Concurrency, 1))

	for i, file := range files {
		file := file
		rel, err := filepath.Rel(dir, file)
		if err != nil {
			return nil, perrors.NewIOError(perrors.CodePublish, "failed to resolve asset path", err).WithPath(file)
		}
		key := ObjectKey(prefix, filepath.ToSlash(rel))
		keys[i] = key

		g.Go(func() error {
			return p.upload(gctx, file, key)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.Logger.Info(ctx, "published assets", "bucket", p.Bucket, "objects", len(keys))
	return &Result{Keys: keys}, nil
}

func (p *Publisher) upload(ctx context.Context, file, key string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return perrors.NewIOError(perrors.CodePublish, "failed to read asset", err).WithPath(file)
	}

	_, err = p.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(ContentType(key)),
	})
	if err != nil {
		return perrors.NewNetworkError(perrors.CodePublish, "upload failed", err).WithPath(key)
	}

	p.Logger.Debug(ctx, "uploaded object", "key", key, "bytes", len(data))
	return nil
}

// ObjectKey joins prefix and a slash-separated relative path.
func ObjectKey(prefix, rel string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return rel
	}
	return path.Join(prefix, rel)
}

// ContentType guesses the MIME type of name from its extension.
func ContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".woff2":
		return "font/woff2"
	case ".woff":
		return "font/woff"
	case ".ttf":
		return "font/ttf"
	case ".eot":
		return "application/vnd.ms-fontobject"
	}
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
