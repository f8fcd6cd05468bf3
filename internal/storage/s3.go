// Package storage is the object store adapter.  Document bytes live in an
// S3 bucket (or an S3-compatible service such as MinIO); the metadata
// record only carries the key.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/iliyamo/securevault/internal/model"
)

// ErrStoreUnavailable wraps every failure reported by the object store.
var ErrStoreUnavailable = errors.New("object store unavailable")

// ErrUnknownOperation is returned by SignedURL for an op other than OpGet or OpPut.
var ErrUnknownOperation = errors.New("unknown signed url operation")

// Op selects the HTTP method a signed URL is valid for.
type Op string

const (
	OpGet Op = "get"
	OpPut Op = "put"
)

// Location identifies a stored blob.
type Location struct {
	Bucket string
	Region string
	Key    string
}

// Options configures New.
type Options struct {
	Region          string
	Bucket          string
	Endpoint        string // empty for AWS; set for MinIO and friends
	AccessKeyID     string // empty to use the default credential chain
	SecretAccessKey string
}

type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Seams for tests.
var (
	loadDefaultAWSConfig  = awsconfig.LoadDefaultConfig
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}
	now = time.Now
)

// S3Store puts, deletes and signs objects in a single bucket.
type S3Store struct {
	api     objectAPI
	presign presignAPI
	bucket  string
	region  string
}

// New builds an S3Store.  Static credentials are used when both keys are
// set, otherwise the SDK's default chain (env, shared config, IAM role).
func New(ctx context.Context, opts Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	cfg, err := loadDefaultAWSConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newStore(client, newS3PresignClient(client), opts.Bucket, opts.Region), nil
}

func newStore(api objectAPI, presign presignAPI, bucket, region string) *S3Store {
	return &S3Store{api: api, presign: presign, bucket: bucket, region: region}
}

// Bucket returns the bucket every object is written to.
func (s *S3Store) Bucket() string { return s.bucket }

// Region returns the bucket's region.
func (s *S3Store) Region() string { return s.region }

// Put stores body under key as a private, AES256-encrypted object.
func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) (Location, error) {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ContentLength:        aws.Int64(int64(len(body))),
		ContentType:          aws.String(contentType),
		ACL:                  types.ObjectCannedACLPrivate,
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return Location{}, fmt.Errorf("put %s: %w: %w", key, ErrStoreUnavailable, err)
	}
	return Location{Bucket: s.bucket, Region: s.region, Key: key}, nil
}

// Delete removes the object stored under key.  Deleting a missing key is
// not an error in S3.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w: %w", key, ErrStoreUnavailable, err)
	}
	return nil
}

// SignedURL returns a presigned URL for key valid for ttl.
func (s *S3Store) SignedURL(ctx context.Context, key string, op Op, ttl time.Duration) (string, error) {
	var (
		req *v4.PresignedHTTPRequest
		err error
	)
	expires := s3.WithPresignExpires(ttl)
	switch op {
	case OpGet:
		req, err = s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}, expires)
	case OpPut:
		req, err = s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}, expires)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}
	if err != nil {
		return "", fmt.Errorf("presign %s %s: %w: %w", op, key, ErrStoreUnavailable, err)
	}
	return req.URL, nil
}

// Ping checks that the bucket exists and is reachable.
func (s *S3Store) Ping(ctx context.Context) error {
	if _, err := s.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("head bucket %s: %w: %w", s.bucket, ErrStoreUnavailable, err)
	}
	return nil
}

// NewObjectKey returns a fresh key of the form <userID>/<unixnano>-<uuid>[.<ext>].
// Keys are never reused.
func NewObjectKey(userID, originalName string) string {
	key := userID + "/" + strconv.FormatInt(now().UnixNano(), 10) + "-" + uuid.NewString()
	if ext := model.Extension(originalName); ext != "" {
		key += "." + ext
	}
	return key
}
