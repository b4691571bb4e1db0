// Package storage puts blobs in S3 and hands back their public URLs.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/Amadou-dot/restockd/internal/aws"
)

var ErrForeignURL = errors.New("url does not point into the bucket")

// Store writes objects to one bucket.
type Store struct {
	client  aws.S3API
	bucket  string
	region  string
	nowFunc func() time.Time
}

func New(client aws.S3API, bucket, region string) *Store {
	return &Store{
		client:  client,
		bucket:  bucket,
		region:  region,
		nowFunc: time.Now,
	}
}

// Put uploads body as <prefix>/<unix-millis>_<name> and returns its URL.
func (s *Store) Put(ctx context.Context, prefix, name, contentType string, body []byte) (string, error) {
	if s.bucket == "" {
		return "", errors.New("storage bucket is not configured")
	}
	key := fmt.Sprintf("%s/%d_%s", prefix, s.nowFunc().UnixMilli(), cleanName(name))
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: &contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return s.URL(key), nil
}

// Delete removes the object a URL returned by Put points at.
func (s *Store) Delete(ctx context.Context, rawURL string) error {
	key, err := s.KeyFromURL(rawURL)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func (s *Store) URL(key string) string {
	return fmt.Sprintf("https://%s/%s", s.host(), key)
}

// KeyFromURL extracts the object key from a bucket URL.
func (s *Store) KeyFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Host != s.host() {
		return "", fmt.Errorf("%w: %s", ErrForeignURL, rawURL)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", fmt.Errorf("%w: %s", ErrForeignURL, rawURL)
	}
	return key, nil
}

func (s *Store) host() string {
	return fmt.Sprintf("%s.s3.%s.amazonaws.com", s.bucket, s.region)
}

// cleanName keeps only the base name and replaces spaces.
func cleanName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return strings.ReplaceAll(name, " ", "_")
}
