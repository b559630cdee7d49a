// Package filestore wraps the S3 operations used to move artifact files
// between owner prefixes and to write backups.
package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// OwnerTag is the object tag written on copied files.
const OwnerTag = "owner"

// ErrNotFound is returned when the object (or its bucket) does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes a stored object without its body.
type ObjectInfo struct {
	Bucket       string    `json:"bucket"`
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	ContentType  string    `json:"content_type,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// CopyInput describes a server-side copy. An empty DestBucket copies within
// the source bucket; an empty Owner leaves the destination untagged.
type CopyInput struct {
	SourceBucket string
	SourceKey    string
	DestBucket   string
	DestKey      string
	Owner        string
}

// Store is an S3-backed file store. A single Store serves any bucket the
// credentials can reach.
type Store struct {
	client *s3.Client
}

// New wraps an S3 client.
func New(client *s3.Client) *Store {
	return &Store{client: client}
}

// ListKeys returns every key under prefix in bucket, sorted ascending.
func (s *Store) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	var token *string
	for {
		input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket), ContinuationToken: token}
		if prefix != "" {
			input.Prefix = aws.String(prefix)
		}
		out, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Strings(keys)
	return keys, nil
}

// Copy performs a server-side copy, replacing the tag set with the owner tag.
func (s *Store) Copy(ctx context.Context, in CopyInput) error {
	dest := in.DestBucket
	if dest == "" {
		dest = in.SourceBucket
	}
	input := &s3.CopyObjectInput{
		Bucket:     aws.String(dest),
		Key:        aws.String(in.DestKey),
		CopySource: aws.String(copySource(in.SourceBucket, in.SourceKey)),
	}
	if in.Owner != "" {
		input.Tagging = aws.String(OwnerTag + "=" + url.QueryEscape(in.Owner))
		input.TaggingDirective = types.TaggingDirectiveReplace
	}
	if _, err := s.client.CopyObject(ctx, input); err != nil {
		return fmt.Errorf("copy s3://%s/%s to s3://%s/%s: %w", in.SourceBucket, in.SourceKey, dest, in.DestKey, classify(err))
	}
	return nil
}

// Delete removes an object. Deleting a missing key is not an error in S3.
func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}); err != nil {
		return fmt.Errorf("delete s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// Head fetches object metadata without downloading the body.
func (s *Store) Head(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("head s3://%s/%s: %w", bucket, key, classify(err))
	}
	info := ObjectInfo{
		Bucket:       bucket,
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		ETag:         strings.Trim(aws.ToString(out.ETag), "\""),
		LastModified: aws.ToTime(out.LastModified),
	}
	return info, nil
}

// Put writes a small object, overwriting any existing one.
func (s *Store) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// classify adds ErrNotFound to missing-object API errors.
func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		}
	}
	return err
}

// copySource builds the URL-encoded bucket/key value CopyObject expects.
func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return bucket + "/" + strings.Join(segments, "/")
}
