package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/linkcurator/internal/curator"
	"github.com/JakeFAU/linkcurator/internal/storage/memory"
)

func TestInsertLinksLeavesExistingRows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewLinkStore()
	ing := NewIngester(store, IngestConfig{}, zap.NewNop())

	res, err := ing.InsertLinks(ctx, []curator.ExtractedLink{
		{URL: "https://a.example", SourceFile: "a.md"},
		{URL: "https://b.example", SourceFile: "a.md"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Inserted)

	res, err = ing.InsertLinks(ctx, []curator.ExtractedLink{
		{URL: "https://a.example", SourceFile: "other.md"},
		{URL: "https://c.example", SourceFile: "other.md"},
	})
	require.NoError(t, err)
	require.Equal(t, curator.InsertResult{Inserted: 1, Existing: 1}, res)

	id, err := store.FindLinkID(ctx, "https://a.example")
	require.NoError(t, err)
	link, ok := store.Link(id)
	require.True(t, ok)
	require.Equal(t, "a.md", link.SourceFile)
}

func TestImportTagsBlacklistIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewLinkStore()
	core, logs := observer.New(zapcore.InfoLevel)
	ing := NewIngester(store, IngestConfig{}, zap.New(core))

	links := []curator.ExtractedLink{
		{URL: "https://a.example", SourceJSON: `{"text":"x","tags":["Links","go"]}`},
		{URL: "https://b.example", SourceJSON: `{"text":"y","tags":["LINKS"]}`},
	}
	_, err := ing.InsertLinks(ctx, links)
	require.NoError(t, err)

	tagged, err := ing.ImportTags(ctx, links)
	require.NoError(t, err)
	require.Equal(t, 1, tagged)

	aID, err := store.FindLinkID(ctx, "https://a.example")
	require.NoError(t, err)
	require.Equal(t, []string{"go"}, store.LinkTagNames(aID))

	bID, err := store.FindLinkID(ctx, "https://b.example")
	require.NoError(t, err)
	require.Empty(t, store.LinkTagNames(bID))

	tags, err := store.ListTags(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"go"}, curator.TagNames(tags))

	require.Equal(t, 2, logs.FilterMessage("filtered blacklisted tags").Len())
}

func TestImportTagsIsAdditive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewLinkStore()
	ing := NewIngester(store, IngestConfig{TagBlacklist: []string{}}, zap.NewNop())

	first := []curator.ExtractedLink{{URL: "https://a.example", SourceJSON: `{"tags":["go","db"]}`}}
	_, err := ing.InsertLinks(ctx, first)
	require.NoError(t, err)
	_, err = ing.ImportTags(ctx, first)
	require.NoError(t, err)

	second := []curator.ExtractedLink{{URL: "https://a.example", SourceJSON: `{"tags":["go","links",7]}`}}
	tagged, err := ing.ImportTags(ctx, second)
	require.NoError(t, err)
	require.Equal(t, 1, tagged)

	id, err := store.FindLinkID(ctx, "https://a.example")
	require.NoError(t, err)
	require.Equal(t, []string{"7", "db", "go", "links"}, store.LinkTagNames(id))
}

func TestImportTagsSkipsUnknownLinks(t *testing.T) {
	t.Parallel()

	store := memory.NewLinkStore()
	core, logs := observer.New(zapcore.WarnLevel)
	ing := NewIngester(store, IngestConfig{}, zap.New(core))

	tagged, err := ing.ImportTags(context.Background(), []curator.ExtractedLink{
		{URL: "https://missing.example", SourceJSON: `{"tags":["go"]}`},
		{URL: "https://plain.example"},
	})
	require.NoError(t, err)
	require.Zero(t, tagged)
	require.Equal(t, 1, logs.FilterMessage("link not found for tag import").Len())
}

func TestRecordTags(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"a", "1", "true"}, recordTags(`{"tags":["a","",1,true]}`))
	require.Nil(t, recordTags(`{"tags":"a"}`))
	require.Nil(t, recordTags(`not json`))
	require.Empty(t, recordTags(`{"text":"no tags"}`))
}
