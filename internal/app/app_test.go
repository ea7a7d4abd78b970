package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkcurator/internal/config"
	"github.com/JakeFAU/linkcurator/internal/curator"
)

func baseConfig() config.Config {
	return config.Config{
		Source:   config.SourceConfig{MarkdownDir: "docs", StrictRows: true},
		Pipeline: config.PipelineConfig{Concurrency: 2},
		Store:    config.StoreConfig{Backend: config.StoreMemory},
		Fetch:    config.FetchConfig{Backend: config.FetchColly, TimeoutSeconds: 5, UserAgent: "test"},
		LLM: config.LLMConfig{
			Provider:      config.ProviderOllama,
			Model:         "llama3",
			OllamaBaseURL: "http://localhost:11434/v1",
			Attempts:      1,
		},
	}
}

func TestNewOpensMemoryStore(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), baseConfig(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	require.NotEmpty(t, a.RunID())
	require.NoError(t, a.Store().Ping(context.Background()))
}

func TestNewOpensSQLiteStoreWithSchema(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Store = config.StoreConfig{Backend: config.StoreSQLite, SQLitePath: filepath.Join(t.TempDir(), "links.db")}
	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	res, err := a.Store().InsertLinks(context.Background(), []curator.ExtractedLink{{URL: "https://a.example"}})
	require.NoError(t, err)
	require.Equal(t, 1, res.Inserted)
}

func TestNewRejectsUnknownStore(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Store.Backend = "mongo"
	_, err := New(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "unknown store backend")
}

func TestPipelineRunsSkippedStagesWithoutBackends(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("[a](https://a.example)"), 0o600))

	cfg := baseConfig()
	cfg.Source.MarkdownDir = dir
	cfg.Stages = config.StagesConfig{SkipCrawl: true, SkipSummary: true}
	cfg.Fetch.Backend = "unused"
	cfg.LLM.Provider = "unused"

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	driver, err := a.Pipeline(context.Background())
	require.NoError(t, err)
	report := driver.Run(context.Background(), PipelineOptions(cfg))
	require.NoError(t, report.Err())
	require.Equal(t, 1, report.Inserted.Inserted)
}

func TestPipelineBuildsConfiguredBackends(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Archive = config.ArchiveConfig{Backend: config.ArchiveLocal, Dir: t.TempDir(), Prefix: "pages"}
	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	driver, err := a.Pipeline(context.Background())
	require.NoError(t, err)
	require.NotNil(t, driver)
}

func TestPipelineRejectsUnknownBackends(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*config.Config){
		"fetch":    func(c *config.Config) { c.Fetch.Backend = "curl" },
		"provider": func(c *config.Config) { c.LLM.Provider = "bard" },
		"archive":  func(c *config.Config) { c.Archive.Backend = "s3" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := baseConfig()
			mutate(&cfg)
			a, err := New(context.Background(), cfg, zap.NewNop())
			require.NoError(t, err)
			defer a.Close()
			_, err = a.Pipeline(context.Background())
			require.ErrorContains(t, err, "unknown")
		})
	}
}
