// Package objstore reads recordings from MinIO and other S3-compatible
// stores as ad2cp blobs.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"example.com/ad2cpgate/internal/ad2cp"
	"example.com/ad2cpgate/internal/common"
)

const (
	// Scheme prefixes object locations, as in s3://bucket/key.
	Scheme = "s3"

	defaultRetries = 3
)

var ErrNotFound = errors.New("objstore: object not found")

// Options configure the store connection.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
	Region    string
	// Retries bounds the attempts per range read after the first.
	Retries int
}

// Store opens objects for decoding.
type Store struct {
	client  *minio.Client
	retries uint64
}

func New(opts Options) (*Store, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("objstore: endpoint is required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure:       opts.Secure,
		Region:       opts.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("objstore: %w", err)
	}
	retries := opts.Retries
	if retries <= 0 {
		retries = defaultRetries
	}
	return &Store{client: client, retries: uint64(retries)}, nil
}

// IsURL reports whether loc names an object rather than a local path.
func IsURL(loc string) bool {
	return strings.HasPrefix(loc, Scheme+"://")
}

// ParseURL splits s3://bucket/key.
func ParseURL(loc string) (bucket, key string, err error) {
	u, err := url.Parse(loc)
	if err != nil {
		return "", "", fmt.Errorf("objstore: %w", err)
	}
	if u.Scheme != Scheme {
		return "", "", fmt.Errorf("objstore: unsupported scheme %q", u.Scheme)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("objstore: %q needs a bucket and a key", loc)
	}
	return u.Host, key, nil
}

// Open stats the object at loc and returns it as a blob. The fingerprint path
// is loc itself; size and last-modified time come from the store. ctx bounds
// every later read.
func (s *Store) Open(ctx context.Context, loc string) (ad2cp.Blob, ad2cp.Fingerprint, error) {
	bucket, key, err := ParseURL(loc)
	if err != nil {
		return nil, ad2cp.Fingerprint{}, err
	}
	var info minio.ObjectInfo
	err = withRetry(ctx, s.retries, func() error {
		var err error
		info, err = s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
		if isNotFound(err) {
			return backoff.Permanent(err)
		}
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ad2cp.Fingerprint{}, fmt.Errorf("%w: %s", ErrNotFound, loc)
		}
		return nil, ad2cp.Fingerprint{}, fmt.Errorf("stat %s: %w", loc, err)
	}
	blob := &objectBlob{
		ctx:     ctx,
		client:  s.client,
		bucket:  bucket,
		key:     key,
		size:    info.Size,
		retries: s.retries,
	}
	fp := ad2cp.Fingerprint{Path: loc, Size: info.Size, ModTime: info.LastModified}
	return blob, fp, nil
}

type objectBlob struct {
	ctx     context.Context
	client  *minio.Client
	bucket  string
	key     string
	size    int64
	retries uint64
}

func (b *objectBlob) Size() int64  { return b.size }
func (b *objectBlob) Close() error { return nil }

// ReadAt fetches one byte range per call; transient failures are retried with
// exponential backoff.
func (b *objectBlob) ReadAt(p []byte, off int64) (int, error) {
	if off >= b.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	end := off + int64(len(p)) - 1
	if end >= b.size {
		end = b.size - 1
	}
	want := int(end - off + 1)
	var n int
	err := withRetry(b.ctx, b.retries, func() error {
		opts := minio.GetObjectOptions{}
		if err := opts.SetRange(off, end); err != nil {
			return err
		}
		obj, err := b.client.GetObject(b.ctx, b.bucket, b.key, opts)
		if err != nil {
			return err
		}
		defer obj.Close()
		n, err = io.ReadFull(obj, p[:want])
		return err
	})
	if err != nil {
		return n, fmt.Errorf("read %s/%s at %d: %w", b.bucket, b.key, off, err)
	}
	if want < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound", "NoSuchBucket":
		return true
	}
	return false
}

func withRetry(ctx context.Context, retries uint64, op func() error) error {
	attempt := 0
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err != nil && attempt > 1 {
			common.Logf("objstore: attempt %d failed: %v", attempt, err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx))
}
