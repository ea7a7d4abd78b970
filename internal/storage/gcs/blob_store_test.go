package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestStore(t *testing.T, handler http.Handler, cfg Config) *BlobStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, cfg)
	require.NoError(t, err)
	return store
}

func TestPutObjectUploadsWithPrefix(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/archive-bucket/o")
		assert.Equal(t, "pages/abc.md", r.URL.Query().Get("name"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), "# scraped")
		_, _ = fmt.Fprintln(w, `{"name":"pages/abc.md","bucket":"archive-bucket"}`)
	})
	store := newTestStore(t, handler, Config{Bucket: "archive-bucket", Prefix: "/pages/"})

	uri, err := store.PutObject(context.Background(), "abc.md", "text/markdown", strings.NewReader("# scraped"))
	require.NoError(t, err)
	assert.Equal(t, "gs://archive-bucket/pages/abc.md", uri)
}

func TestPutObjectSurfacesServerErrors(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"denied"}}`, http.StatusForbidden)
	})
	store := newTestStore(t, handler, Config{Bucket: "b"})

	_, err := store.PutObject(context.Background(), "x.md", "", strings.NewReader("x"))
	require.Error(t, err)
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)
	require.Equal(t, "a/b.md", (&BlobStore{prefix: "a"}).ObjectName("b.md"))
	require.Equal(t, "b.md", (&BlobStore{}).ObjectName("b.md"))
}
