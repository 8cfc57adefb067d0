package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/lcrostarosa/proofmode/internal/config"
	apperrors "github.com/lcrostarosa/proofmode/internal/errors"
)

const defaultRegion = "us-east-1"

// S3 mirrors bundles to an S3 compatible bucket under <fingerprint>/<identifier>.
// Every request is signed with AWS Signature Version 4.
type S3 struct {
	client *minio.Client
	bucket string
}

// NewS3 connects to the bucket described by cfg.
func NewS3(cfg config.RemoteStorageConfig) (*S3, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("%w: remote storage is disabled", apperrors.ErrConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	endpoint, secure := cfg.Endpoint, cfg.UseSSL
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint, secure = strings.TrimPrefix(endpoint, "https://"), true
	case strings.HasPrefix(endpoint, "http://"):
		endpoint, secure = strings.TrimPrefix(endpoint, "http://"), false
	}
	endpoint = strings.TrimSuffix(endpoint, "/")

	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: remote storage: %v", apperrors.ErrConfig, err)
	}
	return &S3{client: client, bucket: cfg.Bucket}, nil
}

// Bucket returns the bucket name.
func (s *S3) Bucket() string {
	return s.bucket
}

func objectKey(fingerprint, identifier string) string {
	return fingerprint + "/" + identifier
}

// Locator implements Provider.
func (s *S3) Locator(fingerprint, identifier string) string {
	return "s3://" + s.bucket + "/" + objectKey(fingerprint, identifier)
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// SaveStream implements Provider. Streams of unknown length are spooled to
// a temporary file so the upload has a known size.
func (s *S3) SaveStream(ctx context.Context, fingerprint, identifier string, r io.Reader) error {
	if err := validate(fingerprint, identifier); err != nil {
		return err
	}

	size, ok := readerSize(r)
	if !ok {
		spool, err := os.CreateTemp("", "proofmode-upload-*")
		if err != nil {
			return fmt.Errorf("%w: spool upload: %v", apperrors.ErrIO, err)
		}
		defer func() {
			spool.Close()
			os.Remove(spool.Name())
		}()
		n, err := io.Copy(spool, r)
		if err != nil {
			return fmt.Errorf("%w: spool upload: %v", apperrors.ErrIO, err)
		}
		if _, err := spool.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("%w: spool upload: %v", apperrors.ErrIO, err)
		}
		r, size = spool, n
	}

	_, err := s.client.PutObject(ctx, s.bucket, objectKey(fingerprint, identifier), r, size, minio.PutObjectOptions{
		ContentType: contentType(identifier),
	})
	if err != nil {
		return fmt.Errorf("%w: upload %s: %v", apperrors.ErrIO, identifier, err)
	}
	return nil
}

func readerSize(r io.Reader) (int64, bool) {
	switch v := r.(type) {
	case interface{ Len() int }:
		return int64(v.Len()), true
	case *os.File:
		info, err := v.Stat()
		if err != nil || !info.Mode().IsRegular() {
			return 0, false
		}
		pos, err := v.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, false
		}
		return info.Size() - pos, true
	}
	return 0, false
}

func contentType(identifier string) string {
	switch {
	case strings.HasSuffix(identifier, ".csv"):
		return "text/csv"
	case strings.HasSuffix(identifier, ".json"):
		return "application/json"
	case strings.HasSuffix(identifier, ".asc"):
		return "application/pgp-signature"
	case strings.HasSuffix(identifier, ".uri"):
		return "text/uri-list"
	}
	return "application/octet-stream"
}

// SaveBytes implements Provider.
func (s *S3) SaveBytes(ctx context.Context, fingerprint, identifier string, data []byte) error {
	return s.SaveStream(ctx, fingerprint, identifier, bytes.NewReader(data))
}

// SaveText implements Provider.
func (s *S3) SaveText(ctx context.Context, fingerprint, identifier, text string) error {
	return s.SaveStream(ctx, fingerprint, identifier, strings.NewReader(text))
}

// GetInputStream implements Provider.
func (s *S3) GetInputStream(ctx context.Context, fingerprint, identifier string) (io.ReadCloser, error) {
	if err := validate(fingerprint, identifier); err != nil {
		return nil, err
	}
	return s.getObject(ctx, objectKey(fingerprint, identifier))
}

func (s *S3) getObject(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", apperrors.ErrIO, key, err)
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrProofNotFound, key)
		}
		return nil, fmt.Errorf("%w: get %s: %v", apperrors.ErrIO, key, err)
	}
	return obj, nil
}

// ProofExists implements Provider.
func (s *S3) ProofExists(ctx context.Context, fingerprint string) bool {
	return s.ProofIdentifierExists(ctx, fingerprint, ProofFileName(fingerprint))
}

// ProofIdentifierExists implements Provider.
func (s *S3) ProofIdentifierExists(ctx context.Context, fingerprint, identifier string) bool {
	if validate(fingerprint, identifier) != nil {
		return false
	}
	_, err := s.client.StatObject(ctx, s.bucket, objectKey(fingerprint, identifier), minio.StatObjectOptions{})
	return err == nil
}

// GetProofSet implements Provider.
func (s *S3) GetProofSet(ctx context.Context, fingerprint string) ([]string, error) {
	if err := validate(fingerprint, ""); err != nil {
		return nil, err
	}

	var locators []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: fingerprint + "/"}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("%w: list %s: %v", apperrors.ErrIO, fingerprint, obj.Err)
		}
		locators = append(locators, "s3://"+s.bucket+"/"+obj.Key)
	}
	if len(locators) == 0 {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrProofNotFound, fingerprint)
	}
	sort.Strings(locators)
	return locators, nil
}

// GetProofItem implements Provider.
func (s *S3) GetProofItem(ctx context.Context, locator string) (io.ReadCloser, error) {
	prefix := "s3://" + s.bucket + "/"
	if !strings.HasPrefix(locator, prefix) {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidIdentifier, locator)
	}
	parts := strings.Split(strings.TrimPrefix(locator, prefix), "/")
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidIdentifier, locator)
	}
	if err := validate(parts[0], parts[1]); err != nil {
		return nil, err
	}
	return s.getObject(ctx, objectKey(parts[0], parts[1]))
}
