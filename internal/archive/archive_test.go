package archive

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkcurator/internal/hash/sha256"
	"github.com/JakeFAU/linkcurator/internal/storage/memory"
)

func TestStoreWritesContentAddressedObject(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	a := New(blobs, sha256.New(), "/pages/")

	uri, err := a.Store(context.Background(), "https://example.com/post", "# Hello")
	require.NoError(t, err)

	key := "pages/" + sha256.Sum("https://example.com/post") + ".md"
	require.Equal(t, "memory://"+key, uri)

	body, contentType, ok := blobs.Object(key)
	require.True(t, ok)
	require.Equal(t, "# Hello", string(body))
	require.Equal(t, ContentType, contentType)
}

func TestKeyWithoutPrefix(t *testing.T) {
	t.Parallel()

	a := New(memory.NewBlobStore(), sha256.New(), "")
	key, err := a.Key("https://example.com")
	require.NoError(t, err)
	require.Equal(t, sha256.Sum("https://example.com")+".md", key)
}

type failingBlobs struct{}

func (failingBlobs) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket gone")
}

func TestStorePropagatesBlobErrors(t *testing.T) {
	t.Parallel()

	a := New(failingBlobs{}, sha256.New(), "p")
	_, err := a.Store(context.Background(), "https://example.com", "x")
	require.ErrorContains(t, err, "bucket gone")
}
