// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. CURATOR_PIPELINE_CONCURRENCY.
const EnvPrefix = "CURATOR"

// Config captures every knob of the pipeline.
type Config struct {
	Source    SourceConfig    `mapstructure:"source"`
	Stages    StagesConfig    `mapstructure:"stages"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Store     StoreConfig     `mapstructure:"store"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Firecrawl FirecrawlConfig `mapstructure:"firecrawl"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Tags      TagsConfig      `mapstructure:"tags"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SourceConfig selects the corpus to extract links from.
type SourceConfig struct {
	MarkdownDir string   `mapstructure:"markdown_dir"`
	NDJSONDir   string   `mapstructure:"ndjson_dir"`
	StrictRows  bool     `mapstructure:"strict_rows"`
	Extensions  []string `mapstructure:"extensions"`
}

// StagesConfig toggles pipeline stages.
type StagesConfig struct {
	SkipExtraction bool `mapstructure:"skip_extraction"`
	SkipCrawl      bool `mapstructure:"skip_crawl"`
	SkipSummary    bool `mapstructure:"skip_summary"`
}

// PipelineConfig governs fan-out.
type PipelineConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// StoreConfig selects and configures the link store.
type StoreConfig struct {
	Backend    string `mapstructure:"backend"`
	DSN        string `mapstructure:"dsn"`
	SQLitePath string `mapstructure:"sqlite_path"`
	MaxConns   int32  `mapstructure:"max_conns"`
}

// FetchConfig selects the content-fetch backend.
type FetchConfig struct {
	Backend            string `mapstructure:"backend"`
	UserAgent          string `mapstructure:"user_agent"`
	TimeoutSeconds     int    `mapstructure:"timeout_seconds"`
	RespectRobots      bool   `mapstructure:"respect_robots"`
	HeadlessParallel   int    `mapstructure:"headless_max_parallel"`
	HeadlessNavTimeout int    `mapstructure:"headless_nav_timeout_seconds"`
}

// FirecrawlConfig holds the scraping service endpoint.
type FirecrawlConfig struct {
	APIURL string `mapstructure:"api_url"`
	APIKey string `mapstructure:"api_key"`
}

// LLMConfig configures the summarization backend.
type LLMConfig struct {
	Provider        string  `mapstructure:"provider"`
	Model           string  `mapstructure:"model"`
	OpenAIAPIKey    string  `mapstructure:"openai_api_key"`
	AnthropicAPIKey string  `mapstructure:"anthropic_api_key"`
	OllamaBaseURL   string  `mapstructure:"ollama_base_url"`
	Temperature     float32 `mapstructure:"temperature"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	MaxContentChars int     `mapstructure:"max_content_chars"`
	Attempts        int     `mapstructure:"attempts"`
	RetryDelayMs    int     `mapstructure:"retry_delay_ms"`
}

// TagsConfig controls inline tag import.
type TagsConfig struct {
	Blacklist []string `mapstructure:"blacklist"`
}

// ArchiveConfig selects where scraped markdown is archived.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// NotifyConfig holds Pub/Sub settings for summary events.
type NotifyConfig struct {
	ProjectID   string `mapstructure:"project_id"`
	PubSubTopic string `mapstructure:"pubsub_topic"`
}

// ServerConfig controls the optional status server. Port 0 disables it.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Supported backend names.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"

	FetchFirecrawl = "firecrawl"
	FetchColly     = "colly"
	FetchHeadless  = "headless"

	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"

	ArchiveNone   = "none"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
	ArchiveMemory = "memory"
)

// flagKeys maps CLI flag names onto configuration keys.
var flagKeys = map[string]string{
	"markdown-files":  "source.markdown_dir",
	"ndjson-files":    "source.ndjson_dir",
	"skip-extraction": "stages.skip_extraction",
	"skip-crawl":      "stages.skip_crawl",
	"skip-summary":    "stages.skip_summary",
	"concurrency":     "pipeline.concurrency",
	"openai-model":    "llm.model",
	"ollama-base-url": "llm.ollama_base_url",
	"provider":        "llm.provider",
}

// legacyEnv lists unprefixed variables accepted for credentials and endpoints.
var legacyEnv = map[string]string{
	"llm.openai_api_key":    "OPENAI_API_KEY",
	"llm.anthropic_api_key": "ANTHROPIC_API_KEY",
	"llm.model":             "OPENAI_MODEL",
	"llm.ollama_base_url":   "OLLAMA_BASE_URL",
	"firecrawl.api_key":     "FIRECRAWL_API_KEY",
	"firecrawl.api_url":     "FIRECRAWL_API_URL",
	"store.dsn":             "DATABASE_URL",
}

// LoadDotEnv reads a .env file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load builds a Config from defaults, an optional file, the environment and
// any changed flags, in increasing order of precedence.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", legacy, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.strict_rows", true)
	v.SetDefault("pipeline.concurrency", 5)
	v.SetDefault("store.backend", StorePostgres)
	v.SetDefault("store.sqlite_path", "linkcurator.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("fetch.backend", FetchFirecrawl)
	v.SetDefault("fetch.user_agent", "linkcurator/1.0")
	v.SetDefault("fetch.timeout_seconds", 60)
	v.SetDefault("fetch.respect_robots", true)
	v.SetDefault("fetch.headless_max_parallel", 2)
	v.SetDefault("fetch.headless_nav_timeout_seconds", 30)
	v.SetDefault("firecrawl.api_url", "https://api.firecrawl.dev")
	v.SetDefault("llm.provider", ProviderOpenAI)
	v.SetDefault("llm.model", "gpt-4.1-nano")
	v.SetDefault("llm.ollama_base_url", "http://localhost:11434/v1")
	v.SetDefault("llm.temperature", 0.5)
	v.SetDefault("llm.max_tokens", 500)
	v.SetDefault("llm.max_content_chars", 10000)
	v.SetDefault("llm.attempts", 3)
	v.SetDefault("llm.retry_delay_ms", 1000)
	v.SetDefault("tags.blacklist", []string{"links"})
	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.dir", "archive")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("server.port", 0)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces settings every command depends on.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case StorePostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn (or DATABASE_URL) must be set for the postgres store")
		}
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path must be set for the sqlite store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	if c.Server.Port < 0 {
		return fmt.Errorf("server.port must be >= 0")
	}
	return nil
}

// ValidatePipeline enforces the checks required before running the stages.
func (c Config) ValidatePipeline() error {
	md, nd := c.Source.MarkdownDir != "", c.Source.NDJSONDir != ""
	switch {
	case md && nd:
		return errors.New("--markdown-files and --ndjson-files are mutually exclusive")
	case !md && !nd:
		return errors.New("either --markdown-files or --ndjson-files must be specified")
	}
	if c.Pipeline.Concurrency < 1 {
		return fmt.Errorf("invalid concurrency %d: must be a positive integer", c.Pipeline.Concurrency)
	}

	if !c.Stages.SkipCrawl {
		if err := c.validateFetch(); err != nil {
			return err
		}
	}
	if !c.Stages.SkipSummary {
		if err := c.validateLLM(); err != nil {
			return err
		}
	}
	return c.validateOutputs()
}

func (c Config) validateFetch() error {
	switch c.Fetch.Backend {
	case FetchFirecrawl:
		if c.Firecrawl.APIURL == "" {
			return errors.New("firecrawl.api_url (or FIRECRAWL_API_URL) is required")
		}
		if !strings.Contains(c.Firecrawl.APIURL, "localhost") && c.Firecrawl.APIKey == "" {
			return errors.New("FIRECRAWL_API_KEY is required when FIRECRAWL_API_URL is not localhost")
		}
	case FetchColly:
	case FetchHeadless:
		if c.Fetch.HeadlessParallel <= 0 {
			return errors.New("fetch.headless_max_parallel must be > 0")
		}
	default:
		return fmt.Errorf("unknown fetch.backend %q", c.Fetch.Backend)
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return errors.New("fetch.timeout_seconds must be > 0")
	}
	return nil
}

func (c Config) validateLLM() error {
	if c.LLM.Model == "" {
		return errors.New("llm.model must be set")
	}
	switch c.LLM.Provider {
	case ProviderOpenAI:
		if c.LLM.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY is required for the openai provider")
		}
	case ProviderAnthropic:
		if c.LLM.AnthropicAPIKey == "" {
			return errors.New("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
	case ProviderOllama:
		if c.LLM.OllamaBaseURL == "" {
			return errors.New("--ollama-base-url is required for the ollama provider")
		}
	default:
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}
	if c.LLM.Attempts < 1 {
		return errors.New("llm.attempts must be >= 1")
	}
	return nil
}

func (c Config) validateOutputs() error {
	switch c.Archive.Backend {
	case "", ArchiveNone, ArchiveMemory:
	case ArchiveLocal:
		if c.Archive.Dir == "" {
			return errors.New("archive.dir must be set for the local archive")
		}
	case ArchiveGCS:
		if c.Archive.Bucket == "" {
			return errors.New("archive.bucket must be set for the gcs archive")
		}
	default:
		return fmt.Errorf("unknown archive.backend %q", c.Archive.Backend)
	}
	if c.Notify.PubSubTopic != "" && c.Notify.ProjectID == "" {
		return errors.New("notify.project_id must be set when notify.pubsub_topic is set")
	}
	return nil
}

// FetchTimeout converts the fetch timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// RetryDelay converts the LLM retry delay into a duration.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.LLM.RetryDelayMs) * time.Millisecond
}
