// Package rawstore persists canonical payloads to S3 under deterministic,
// content-addressed keys. Because the key embeds the content hash, re-putting
// an unchanged payload overwrites an identical object and the operation is
// idempotent.
package rawstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the subset of the S3 client used by the store.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// PutResult describes a completed raw object write.
type PutResult struct {
	Key     string
	ETag    string
	SavedAt time.Time
}

// Store writes canonical JSON payloads to a single raw bucket.
type Store struct {
	client ObjectPutter
	bucket string
	now    func() time.Time
}

// New builds a Store backed by a real S3 client using the default AWS
// credential chain.
func New(ctx context.Context, bucket, region string) (*Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewWithClient(s3.NewFromConfig(cfg), bucket), nil
}

// NewWithClient builds a Store over an existing client. Used by tests.
func NewWithClient(client ObjectPutter, bucket string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Key returns the deterministic object key for one canonical payload.
func Key(source, entity, sourceID, contentHash string) string {
	return fmt.Sprintf("raw/source=%s/entity=%s/source_id=%s/hash=%s.json", source, entity, sourceID, contentHash)
}

// PutJSON writes the canonical JSON body under the content-addressed key and
// returns the key, the object ETag, and the UTC write time.
func (s *Store) PutJSON(ctx context.Context, source, entity, sourceID, contentHash string, body []byte) (PutResult, error) {
	key := Key(source, entity, sourceID, contentHash)

	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return PutResult{}, fmt.Errorf("put raw object %s: %w", key, err)
	}

	var etag string
	if out.ETag != nil {
		etag = strings.Trim(*out.ETag, `"`)
	}

	return PutResult{Key: key, ETag: etag, SavedAt: s.now()}, nil
}
