package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/poiesic/filedrop/core"
)

const (
	s3Scheme         = "s3"
	unscopedPrefix   = "unscoped"
	maxPartsPerList  = 1000
	noSuchUploadCode = "NoSuchUpload"
)

// multipartAPI is the subset of minio.Core used by S3Endpoint.
type multipartAPI interface {
	NewMultipartUpload(ctx context.Context, bucket, object string, opts minio.PutObjectOptions) (string, error)
	PutObjectPart(ctx context.Context, bucket, object, uploadID string, partID int, data io.Reader, size int64, opts minio.PutObjectPartOptions) (minio.ObjectPart, error)
	ListObjectParts(ctx context.Context, bucket, object, uploadID string, partNumberMarker, maxParts int) (minio.ListObjectPartsResult, error)
	CompleteMultipartUpload(ctx context.Context, bucket, object, uploadID string, parts []minio.CompletePart, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	AbortMultipartUpload(ctx context.Context, bucket, object, uploadID string) error
}

// S3Endpoint maps chunked uploads onto S3 multipart uploads. Each chunk is
// one part, so the chunk size must satisfy the store's minimum part size
// (5 MiB on AWS) for every part but the last.
type S3Endpoint struct {
	client multipartAPI
	bucket string
	prefix string
	logger *slog.Logger
}

var _ Endpoint = (*S3Endpoint)(nil)

// S3Option configures an S3Endpoint.
type S3Option func(*S3Endpoint) error

// WithKeyPrefix places objects under prefix.
func WithKeyPrefix(prefix string) S3Option {
	return func(e *S3Endpoint) error {
		e.prefix = strings.Trim(prefix, "/")
		return nil
	}
}

// WithS3Logger sets the logger.
func WithS3Logger(logger *slog.Logger) S3Option {
	return func(e *S3Endpoint) error {
		e.logger = logger
		return nil
	}
}

// NewS3Endpoint creates an endpoint writing to bucket through client.
func NewS3Endpoint(client *minio.Core, bucket string, opts ...S3Option) (*S3Endpoint, error) {
	if client == nil {
		return nil, errors.New("minio client is required")
	}
	return newS3Endpoint(client, bucket, opts...)
}

// S3Config holds connection settings for an S3-compatible store.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// OpenS3Endpoint connects to the store described by cfg and verifies the
// bucket exists.
func OpenS3Endpoint(ctx context.Context, cfg S3Config, opts ...S3Option) (*S3Endpoint, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 credentials are required")
	}

	client, err := minio.NewCore(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %q does not exist", cfg.Bucket)
	}

	if cfg.Prefix != "" {
		opts = append([]S3Option{WithKeyPrefix(cfg.Prefix)}, opts...)
	}
	return NewS3Endpoint(client, cfg.Bucket, opts...)
}

func newS3Endpoint(client multipartAPI, bucket string, opts ...S3Option) (*S3Endpoint, error) {
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	e := &S3Endpoint{
		client: client,
		bucket: bucket,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	e.logger = e.logger.With("component", "s3-endpoint", "bucket", bucket)
	return e, nil
}

// ObjectKey returns the key an upload is stored under:
// <prefix>/<scope or "unscoped">/<digest><ext>.
func (e *S3Endpoint) ObjectKey(req CreateRequest) string {
	scope := req.ScopeID
	if scope == "" {
		scope = unscopedPrefix
	}
	name := req.Digest + strings.ToLower(path.Ext(req.FileName))
	if e.prefix == "" {
		return path.Join(scope, name)
	}
	return path.Join(e.prefix, scope, name)
}

// Create starts a multipart upload.
func (e *S3Endpoint) Create(ctx context.Context, req CreateRequest) (string, error) {
	if req.ChunkSizeBytes <= 0 {
		return "", fmt.Errorf("%w: chunk size must be positive", core.ErrValidation)
	}
	key := e.ObjectKey(req)
	opts := minio.PutObjectOptions{
		ContentType: req.MimeType,
		UserMetadata: map[string]string{
			"filename": req.FileName,
			"digest":   req.Digest,
		},
	}
	if req.ScopeID != "" {
		opts.UserMetadata["scope"] = req.ScopeID
	}

	uploadID, err := e.client.NewMultipartUpload(ctx, e.bucket, key, opts)
	if err != nil {
		return "", fmt.Errorf("new multipart upload: %w", classifyS3Error(err))
	}

	loc := s3Location{bucket: e.bucket, key: key, uploadID: uploadID, partSize: req.ChunkSizeBytes}
	e.logger.Debug("created multipart upload", "key", key, "uploadID", uploadID)
	return loc.String(), nil
}

// Offset sums the sizes of the contiguous parts already stored, starting at part 1.
func (e *S3Endpoint) Offset(ctx context.Context, location string) (int64, error) {
	loc, err := parseS3Location(location)
	if err != nil {
		return 0, err
	}
	parts, err := e.listParts(ctx, loc)
	if err != nil {
		return 0, err
	}

	var offset int64
	for i, part := range parts {
		if part.PartNumber != i+1 {
			break
		}
		offset += part.Size
	}
	return offset, nil
}

// WriteChunk uploads chunk as part offset/partSize+1.
func (e *S3Endpoint) WriteChunk(ctx context.Context, location string, offset int64, chunk []byte) (int64, error) {
	loc, err := parseS3Location(location)
	if err != nil {
		return 0, err
	}
	if offset%loc.partSize != 0 {
		return 0, fmt.Errorf("%w: offset %d is not aligned to part size %d", core.ErrCorruption, offset, loc.partSize)
	}
	partNumber := int(offset/loc.partSize) + 1

	part, err := e.client.PutObjectPart(ctx, loc.bucket, loc.key, loc.uploadID, partNumber,
		bytes.NewReader(chunk), int64(len(chunk)), minio.PutObjectPartOptions{})
	if err != nil {
		return 0, fmt.Errorf("put part %d: %w", partNumber, classifyS3Error(err))
	}
	if part.Size != 0 && part.Size != int64(len(chunk)) {
		return 0, fmt.Errorf("%w: part %d stored %d bytes, sent %d", core.ErrCorruption, partNumber, part.Size, len(chunk))
	}
	return offset + int64(len(chunk)), nil
}

// Complete assembles the stored parts and returns the object key.
func (e *S3Endpoint) Complete(ctx context.Context, location string, totalBytes int64) (string, error) {
	loc, err := parseS3Location(location)
	if err != nil {
		return "", err
	}
	parts, err := e.listParts(ctx, loc)
	if err != nil {
		return "", err
	}

	complete := make([]minio.CompletePart, 0, len(parts))
	var stored int64
	for _, part := range parts {
		complete = append(complete, minio.CompletePart{PartNumber: part.PartNumber, ETag: part.ETag})
		stored += part.Size
	}
	if stored != totalBytes {
		return "", fmt.Errorf("%w: endpoint holds %d bytes, expected %d", core.ErrCorruption, stored, totalBytes)
	}

	if _, err := e.client.CompleteMultipartUpload(ctx, loc.bucket, loc.key, loc.uploadID, complete, minio.PutObjectOptions{}); err != nil {
		return "", fmt.Errorf("complete multipart upload: %w", classifyS3Error(err))
	}
	return loc.key, nil
}

// Terminate aborts the multipart upload. Unknown uploads are ignored.
func (e *S3Endpoint) Terminate(ctx context.Context, location string) error {
	loc, err := parseS3Location(location)
	if err != nil {
		return err
	}
	err = e.client.AbortMultipartUpload(ctx, loc.bucket, loc.key, loc.uploadID)
	if err != nil && minio.ToErrorResponse(err).Code != noSuchUploadCode {
		return fmt.Errorf("abort multipart upload: %w", classifyS3Error(err))
	}
	return nil
}

func (e *S3Endpoint) listParts(ctx context.Context, loc s3Location) ([]minio.ObjectPart, error) {
	var parts []minio.ObjectPart
	marker := 0
	for {
		result, err := e.client.ListObjectParts(ctx, loc.bucket, loc.key, loc.uploadID, marker, maxPartsPerList)
		if err != nil {
			return nil, fmt.Errorf("list parts: %w", classifyS3Error(err))
		}
		parts = append(parts, result.ObjectParts...)
		if !result.IsTruncated {
			return parts, nil
		}
		marker = result.NextPartNumberMarker
	}
}

// classifyS3Error marks a missing upload as gone and server-side failures as transient.
func classifyS3Error(err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == noSuchUploadCode:
		return fmt.Errorf("%w: %w", ErrRemoteGone, err)
	case resp.StatusCode >= 500, resp.Code == "SlowDown", resp.Code == "RequestTimeout":
		return fmt.Errorf("%w: %w", core.ErrTransient, err)
	}
	return err
}

// s3Location is the opaque transfer URL of a multipart upload:
// s3://bucket/key?uploadId=...&partSize=...
type s3Location struct {
	bucket   string
	key      string
	uploadID string
	partSize int64
}

func (l s3Location) String() string {
	q := url.Values{}
	q.Set("uploadId", l.uploadID)
	q.Set("partSize", strconv.FormatInt(l.partSize, 10))
	u := url.URL{Scheme: s3Scheme, Host: l.bucket, Path: "/" + l.key, RawQuery: q.Encode()}
	return u.String()
}

func parseS3Location(raw string) (s3Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return s3Location{}, fmt.Errorf("%w: %w", ErrInvalidLocation, err)
	}
	if u.Scheme != s3Scheme || u.Host == "" {
		return s3Location{}, fmt.Errorf("%w: %q", ErrInvalidLocation, raw)
	}
	q := u.Query()
	partSize, err := strconv.ParseInt(q.Get("partSize"), 10, 64)
	if err != nil || partSize <= 0 {
		return s3Location{}, fmt.Errorf("%w: bad part size in %q", ErrInvalidLocation, raw)
	}
	loc := s3Location{
		bucket:   u.Host,
		key:      strings.TrimPrefix(u.Path, "/"),
		uploadID: q.Get("uploadId"),
		partSize: partSize,
	}
	if loc.key == "" || loc.uploadID == "" {
		return s3Location{}, fmt.Errorf("%w: %q", ErrInvalidLocation, raw)
	}
	return loc, nil
}
