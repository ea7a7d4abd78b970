package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkcurator/internal/curator"
)

const articlePage = `<!doctype html>
<html><head>
<title>Fallback title</title>
<meta property="og:title" content="Graph Databases">
<meta name="description" content="An overview.">
<meta property="og:image" content="https://img.example/cover.png">
<meta name="keywords" content="graphs, databases, ,go">
</head><body>
<nav><p>menu</p></nav>
<article>
<h2>Intro</h2>
<p>Graphs   store
relationships.</p>
<ul><li>nodes</li><li>edges</li></ul>
<pre>MATCH (n) RETURN n</pre>
</article>
</body></html>`

func TestFetchExtractsPage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, articlePage)
	}))
	t.Cleanup(srv.Close)

	page, err := New(Config{UserAgent: "linkcurator-test", Timeout: time.Second}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "Graph Databases", page.Title)
	require.Equal(t, "An overview.", page.Description)
	require.Equal(t, "https://img.example/cover.png", page.ImageURL)
	require.Equal(t, "graphs, databases, ,go", page.Keywords)
	require.Equal(t, "## Intro\n\nGraphs store relationships.\n\n- nodes\n\n- edges\n\n```\nMATCH (n) RETURN n\n```", page.Content)
}

func TestFetchEmptyBodyIsMissingContent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, "<html><head><title>x</title></head><body></body></html>")
	}))
	t.Cleanup(srv.Close)

	_, err := New(Config{}).Fetch(context.Background(), srv.URL)
	require.True(t, errors.Is(err, curator.ErrMissingContent))
}

func TestFetchReportsHTTPErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	_, err := New(Config{}).Fetch(context.Background(), srv.URL)
	require.ErrorContains(t, err, "status 404")
}
