package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/linkcurator/internal/api"
	"github.com/JakeFAU/linkcurator/internal/app"
	"github.com/JakeFAU/linkcurator/internal/config"
	"github.com/JakeFAU/linkcurator/internal/logging"
	"github.com/JakeFAU/linkcurator/internal/telemetry"
)

// rootOptions holds flags that are not part of config.Config.
type rootOptions struct {
	configPath string
	envFile    string
}

// newApp is the application factory; tests replace it.
var newApp = app.New

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "linkcurator",
		Short: "Extract, scrape and summarize links from a document corpus",
		Long: `linkcurator discovers links in Markdown or NDJSON documents, stores them,
fetches their content and asks a language model for a summary and tags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, opts)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	pf.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	f := cmd.Flags()
	f.StringP("markdown-files", "m", "", "directory of Markdown sources (mutually exclusive with --ndjson-files)")
	f.StringP("ndjson-files", "n", "", "directory of NDJSON sources (mutually exclusive with --markdown-files)")
	f.Bool("skip-extraction", false, "skip finding and adding new links")
	f.Bool("skip-crawl", false, "skip scraping pending links")
	f.Bool("skip-summary", false, "skip summarizing scraped content")
	f.Int("concurrency", 5, "max concurrent scrape or summarize operations")
	f.String("openai-model", "", "model name for the openai or ollama provider")
	f.String("ollama-base-url", "", "OpenAI-compatible base URL used by the ollama provider")
	f.String("provider", "", "summarization provider: openai, ollama or anthropic")

	cmd.AddCommand(newMigrateCmd(opts), newStatsCmd(opts), newExportCmd(opts))
	return cmd
}

// setup loads configuration, runs check against it and builds the logger and
// the application. Errors returned here end the process with a non-zero status.
func setup(cmd *cobra.Command, opts *rootOptions, check func(config.Config) error) (config.Config, *app.App, error) {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return config.Config{}, nil, err
	}
	cfg, err := config.Load(opts.configPath, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	if check != nil {
		if err := check(cfg); err != nil {
			return config.Config{}, nil, err
		}
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return config.Config{}, nil, err
	}
	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return config.Config{}, nil, fmt.Errorf("initialize application: %w", err)
	}
	return cfg, a, nil
}

func runPipeline(cmd *cobra.Command, opts *rootOptions) error {
	cfg, a, err := setup(cmd, opts, config.Config.ValidatePipeline)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.Logger()

	tp, err := telemetry.InitTracerProvider(cmd.Context(), "linkcurator", a.RunID())
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if cfg.Server.Port > 0 {
		srv := api.NewServer(a.Store(), logger)
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		stop := serveInBackground(ctx, logger, func(ctx context.Context) error {
			return srv.ListenAndServe(ctx, addr)
		})
		defer stop()
	}

	driver, err := a.Pipeline(ctx)
	if err != nil {
		return err
	}
	report := driver.Run(ctx, app.PipelineOptions(cfg))
	if err := report.Err(); err != nil {
		logger.Warn("pipeline finished with stage errors", zap.Error(err))
	}
	return nil
}

// serveInBackground runs serve until the returned stop function is called.
// stop cancels serve, waits for it to return and logs its error.
func serveInBackground(ctx context.Context, logger *zap.Logger, serve func(context.Context) error) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(gctx) })
	return func() {
		cancel()
		if err := g.Wait(); err != nil {
			logger.Error("status server stopped", zap.Error(err))
		}
	}
}
