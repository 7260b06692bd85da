// Package archive stores game packages as zip blobs and knows how to
// inspect, verify and unpack them. The bucket behind it is opaque:
// local files by default, any gocloud-supported backend by URL.
package archive

import (
	"context"
	"fmt"
	"os"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/s3blob"
)

type Store struct {
	bk *blob.Bucket
}

// Open opens the package bucket. An empty url selects a local file bucket
// rooted at baseDir.
func Open(ctx context.Context, url, baseDir string) (*Store, error) {
	if url == "" {
		if err := os.MkdirAll(baseDir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
		bk, err := fileblob.OpenBucket(baseDir, nil)
		if err != nil {
			return nil, err
		}
		return &Store{bk: bk}, nil
	}
	bk, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Store{bk: bk}, nil
}

func (s *Store) Close() error { return s.bk.Close() }

// Put writes a package blob under key.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	return s.bk.WriteAll(ctx, key, data, &blob.WriterOptions{ContentType: "application/zip"})
}

// Fetch returns the raw bytes of a stored package.
func (s *Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	return s.bk.ReadAll(ctx, key)
}

// Delete removes a stored package. Unused by the catalog (versions are
// immutable) but needed by operational cleanup.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.bk.Delete(ctx, key)
}
