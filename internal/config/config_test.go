package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func validPipelineConfig() Config {
	return Config{
		Source:    SourceConfig{MarkdownDir: "docs"},
		Pipeline:  PipelineConfig{Concurrency: 5},
		Store:     StoreConfig{Backend: StoreMemory},
		Fetch:     FetchConfig{Backend: FetchFirecrawl, TimeoutSeconds: 30},
		Firecrawl: FirecrawlConfig{APIURL: "https://api.firecrawl.dev", APIKey: "fc-key"},
		LLM:       LLMConfig{Provider: ProviderOpenAI, Model: "gpt-4.1-nano", OpenAIAPIKey: "sk", Attempts: 3},
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
source:
  ndjson_dir: data
  strict_rows: false
pipeline:
  concurrency: 8
store:
  backend: sqlite
  sqlite_path: /tmp/links.db
fetch:
  backend: colly
llm:
  provider: anthropic
  model: claude-3-5-haiku-latest
tags:
  blacklist: ["links", "misc"]
archive:
  backend: gcs
  bucket: pages-bucket
server:
  port: 9090
logging:
  development: false
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	require.Equal(t, "data", cfg.Source.NDJSONDir)
	require.False(t, cfg.Source.StrictRows)
	require.Equal(t, 8, cfg.Pipeline.Concurrency)
	require.Equal(t, StoreSQLite, cfg.Store.Backend)
	require.Equal(t, "/tmp/links.db", cfg.Store.SQLitePath)
	require.Equal(t, FetchColly, cfg.Fetch.Backend)
	require.Equal(t, ProviderAnthropic, cfg.LLM.Provider)
	require.Equal(t, []string{"links", "misc"}, cfg.Tags.Blacklist)
	require.Equal(t, "pages-bucket", cfg.Archive.Bucket)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.False(t, cfg.Logging.Development)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: memory\n"), 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	require.True(t, cfg.Source.StrictRows)
	require.Equal(t, 5, cfg.Pipeline.Concurrency)
	require.Equal(t, FetchFirecrawl, cfg.Fetch.Backend)
	require.Equal(t, "https://api.firecrawl.dev", cfg.Firecrawl.APIURL)
	require.Equal(t, "gpt-4.1-nano", cfg.LLM.Model)
	require.InDelta(t, 0.5, cfg.LLM.Temperature, 0.0001)
	require.Equal(t, 10000, cfg.LLM.MaxContentChars)
	require.Equal(t, 3, cfg.LLM.Attempts)
	require.Equal(t, []string{"links"}, cfg.Tags.Blacklist)
	require.Equal(t, ArchiveNone, cfg.Archive.Backend)
	require.Equal(t, time.Minute, cfg.FetchTimeout())
}

func TestLoadFlagsOverrideFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: memory\npipeline:\n  concurrency: 3\n"), 0o600))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringP("markdown-files", "m", "", "")
	flags.Int("concurrency", 5, "")
	flags.Bool("skip-summary", false, "")
	flags.String("provider", "", "")
	require.NoError(t, flags.Parse([]string{"-m", "notes", "--concurrency", "9", "--skip-summary"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	require.Equal(t, "notes", cfg.Source.MarkdownDir)
	require.Equal(t, 9, cfg.Pipeline.Concurrency)
	require.True(t, cfg.Stages.SkipSummary)
	require.Equal(t, ProviderOpenAI, cfg.LLM.Provider, "unchanged flag must not override defaults")
}

func TestLoadLegacyEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://user@localhost/links")
	t.Setenv("FIRECRAWL_API_URL", "http://localhost:3002")
	t.Setenv("OPENAI_API_KEY", "sk-legacy")
	t.Setenv("CURATOR_PIPELINE_CONCURRENCY", "7")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, StorePostgres, cfg.Store.Backend)
	require.Equal(t, "postgres://user@localhost/links", cfg.Store.DSN)
	require.Equal(t, "http://localhost:3002", cfg.Firecrawl.APIURL)
	require.Equal(t, "sk-legacy", cfg.LLM.OpenAIAPIKey)
	require.Equal(t, 7, cfg.Pipeline.Concurrency)
}

func TestLoadPrefixedEnvWinsOverLegacy(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://legacy")
	t.Setenv("CURATOR_STORE_DSN", "postgres://prefixed")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, "postgres://prefixed", cfg.Store.DSN)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CURATOR_TEST_DOTENV=from-file\n"), 0o600))
	t.Setenv("CURATOR_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("CURATOR_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(path))
	require.Equal(t, "from-file", os.Getenv("CURATOR_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "postgres without dsn", mutate: func(c *Config) { c.Store.Backend = StorePostgres }, wantErr: "store.dsn"},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Backend = "mysql" }, wantErr: "unknown store.backend"},
		{name: "negative port", mutate: func(c *Config) { c.Server.Port = -1 }, wantErr: "server.port"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validPipelineConfig()
			tc.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tc.wantErr)
		})
	}
	require.NoError(t, validPipelineConfig().Validate())
}

func TestValidatePipeline(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "both sources", mutate: func(c *Config) { c.Source.NDJSONDir = "rows" }, wantErr: "mutually exclusive"},
		{name: "no source", mutate: func(c *Config) { c.Source.MarkdownDir = "" }, wantErr: "must be specified"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Pipeline.Concurrency = 0 }, wantErr: "invalid concurrency"},
		{name: "remote firecrawl without key", mutate: func(c *Config) { c.Firecrawl.APIKey = "" }, wantErr: "FIRECRAWL_API_KEY"},
		{name: "missing firecrawl url", mutate: func(c *Config) { c.Firecrawl.APIURL = "" }, wantErr: "firecrawl.api_url"},
		{name: "openai without key", mutate: func(c *Config) { c.LLM.OpenAIAPIKey = "" }, wantErr: "OPENAI_API_KEY"},
		{name: "anthropic without key", mutate: func(c *Config) { c.LLM.Provider = ProviderAnthropic }, wantErr: "ANTHROPIC_API_KEY"},
		{name: "unknown provider", mutate: func(c *Config) { c.LLM.Provider = "bard" }, wantErr: "unknown llm.provider"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Archive.Backend = ArchiveGCS }, wantErr: "archive.bucket"},
		{name: "topic without project", mutate: func(c *Config) { c.Notify.PubSubTopic = "t" }, wantErr: "notify.project_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validPipelineConfig()
			tc.mutate(&cfg)
			require.ErrorContains(t, cfg.ValidatePipeline(), tc.wantErr)
		})
	}
}

func TestValidatePipelineAccepts(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*Config){
		"defaults": func(*Config) {},
		"localhost firecrawl without key": func(c *Config) {
			c.Firecrawl.APIURL = "http://localhost:3002"
			c.Firecrawl.APIKey = ""
		},
		"ollama without openai key": func(c *Config) {
			c.LLM.Provider = ProviderOllama
			c.LLM.OpenAIAPIKey = ""
			c.LLM.OllamaBaseURL = "http://localhost:11434/v1"
		},
		"skipped stages ignore backends": func(c *Config) {
			c.Stages.SkipCrawl = true
			c.Stages.SkipSummary = true
			c.Firecrawl = FirecrawlConfig{}
			c.LLM = LLMConfig{}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := validPipelineConfig()
			mutate(&cfg)
			require.NoError(t, cfg.ValidatePipeline())
		})
	}
}
