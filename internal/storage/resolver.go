package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/your-org/mpr/internal/errors"
)

const (
	fetchAttempts = 3
	maxImageBytes = 32 << 20
)

// ObjectFetcher reads whole objects from a bucket.
type ObjectFetcher interface {
	Fetch(ctx context.Context, bucket, name string) ([]byte, error)
}

// ImageResolver turns a query image reference into bytes. It accepts
// http(s) URLs, minio://bucket/key references and bare keys, which are read
// from the default bucket.
type ImageResolver struct {
	client        *http.Client
	objects       ObjectFetcher
	defaultBucket string
	backoff       time.Duration
}

func NewImageResolver(objects ObjectFetcher, defaultBucket string) *ImageResolver {
	return &ImageResolver{
		client: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		objects:       objects,
		defaultBucket: defaultBucket,
		backoff:       time.Second,
	}
}

func (r *ImageResolver) Resolve(ctx context.Context, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, apperrors.NewInvalidInputError("image reference is empty", nil)
	}

	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		data, err := r.fetchHTTP(ctx, ref)
		if err != nil {
			return nil, apperrors.NewFetchError("fetch query image", err)
		}
		return data, nil
	}

	bucket, key, err := r.objectRef(ref)
	if err != nil {
		return nil, err
	}
	data, err := r.objects.Fetch(ctx, bucket, key)
	if err != nil {
		return nil, apperrors.NewFetchError("fetch query image", err)
	}
	return data, nil
}

func (r *ImageResolver) objectRef(ref string) (bucket, key string, err error) {
	if rest, ok := strings.CutPrefix(ref, "minio://"); ok {
		bucket, key, _ = strings.Cut(rest, "/")
		if bucket == "" || key == "" {
			return "", "", apperrors.NewInvalidInputError("malformed object reference "+ref, nil)
		}
		return bucket, key, nil
	}
	if strings.Contains(ref, "://") {
		return "", "", apperrors.NewInvalidInputError("unsupported image reference "+ref, nil)
	}
	return r.defaultBucket, strings.TrimPrefix(ref, "/"), nil
}

// fetchHTTP retries network errors and 5xx responses. 4xx responses fail at once.
func (r *ImageResolver) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < fetchAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * r.backoff):
			}
		}

		data, retry, err := r.get(ctx, rawURL)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return nil, fmt.Errorf("fetch %s: %w", rawURL, lastErr)
}

func (r *ImageResolver) get(ctx context.Context, rawURL string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/gif, */*")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("server error: status code %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("client error: status code %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, true, fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, false, fmt.Errorf("image larger than %d bytes", maxImageBytes)
	}
	return data, false, nil
}
