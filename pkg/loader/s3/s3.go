// Package s3 provides a loader.Source backed by an S3 (or
// S3-compatible) bucket where the firm archives raw source material.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/singleflight"
)

// Source fetches payloads by object key. Fetched objects are cached, so
// a retried ingestion unit does not hit the bucket twice, and
// concurrent fetches of the same key are collapsed.
type Source struct {
	bucket string
	client *s3.Client

	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewSourceParams configures a Source. Endpoint overrides the S3
// endpoint for S3-compatible storage such as MinIO.
type NewSourceParams struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// NewSource creates a Source with a static-credential S3 client.
func NewSource(ctx context.Context, params NewSourceParams) (*Source, error) {
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(params.Region),
		config.WithBaseEndpoint(params.Endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			params.AccessKey,
			params.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return NewSourceWithClient(params.Bucket, s3.NewFromConfig(cfg)), nil
}

// NewSourceWithClient creates a Source over an existing s3.Client.
func NewSourceWithClient(bucket string, client *s3.Client) *Source {
	return &Source{
		bucket: bucket,
		client: client,
		cache:  make(map[string][]byte),
	}
}

// Fetch returns the object body for the given key.
func (s *Source) Fetch(ctx context.Context, pointer string) ([]byte, error) {
	s.cacheMu.RLock()
	if cached, ok := s.cache[pointer]; ok {
		s.cacheMu.RUnlock()
		return cached, nil
	}
	s.cacheMu.RUnlock()

	result, err, _ := s.group.Do(pointer, func() (any, error) {
		s.cacheMu.RLock()
		if cached, ok := s.cache[pointer]; ok {
			s.cacheMu.RUnlock()
			return cached, nil
		}
		s.cacheMu.RUnlock()

		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(pointer),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch s3://%s/%s: %w", s.bucket, pointer, err)
		}
		defer out.Body.Close()

		buf := new(bytes.Buffer)
		if _, err := io.Copy(buf, out.Body); err != nil {
			return nil, fmt.Errorf("failed to read s3://%s/%s: %w", s.bucket, pointer, err)
		}

		byts := buf.Bytes()
		s.cacheMu.Lock()
		s.cache[pointer] = byts
		s.cacheMu.Unlock()
		return byts, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}
