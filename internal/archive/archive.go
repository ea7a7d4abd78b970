// Package archive stores scraped page content in a blob store under
// content-addressed keys.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/linkcurator/internal/curator"
)

// ContentType is the MIME type used for archived pages.
const ContentType = "text/markdown; charset=utf-8"

// Archiver writes page markdown to <prefix>/<hash(url)>.md.
type Archiver struct {
	blobs  curator.BlobStore
	hasher curator.Hasher
	prefix string
}

// New builds an Archiver. An empty prefix stores objects at the root.
func New(blobs curator.BlobStore, hasher curator.Hasher, prefix string) *Archiver {
	return &Archiver{
		blobs:  blobs,
		hasher: hasher,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Key returns the object path used for url.
func (a *Archiver) Key(url string) (string, error) {
	digest, err := a.hasher.Hash([]byte(url))
	if err != nil {
		return "", fmt.Errorf("hash url: %w", err)
	}
	if a.prefix == "" {
		return digest + ".md", nil
	}
	return a.prefix + "/" + digest + ".md", nil
}

// Store archives content for url and returns the blob URI.
func (a *Archiver) Store(ctx context.Context, url, content string) (string, error) {
	if a == nil || a.blobs == nil {
		return "", errors.New("archive blob store is not configured")
	}
	key, err := a.Key(url)
	if err != nil {
		return "", err
	}
	uri, err := a.blobs.PutObject(ctx, key, ContentType, strings.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", url, err)
	}
	return uri, nil
}
