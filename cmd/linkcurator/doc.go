// Package main hosts the linkcurator command.
//
// Pipeline overview:
//   - Extraction: links are read from a Markdown tree (-m) or a directory of NDJSON records (-n), filtered to
//     http(s) URLs, deduplicated and inserted as pending rows. NDJSON records also contribute their inline tags.
//   - Scrape: pending links are fetched through Firecrawl (default), a direct Colly fetch, or a headless Chromedp
//     render, with at most --concurrency requests in flight. Results and errors are written back to each row.
//   - Summarize: scraped links are sent to an OpenAI, Ollama or Anthropic model that returns a summary and tags.
//     Tags are upserted and replace the link's existing set.
//
// Each stage reads its work from the store, so any stage can be skipped or re-run on its own. Per-link failures are
// recorded on the row and never stop the run; the process exits non-zero only for configuration or store errors.
//
// Configuration comes from defaults, an optional YAML file (--config), CURATOR_* environment variables, the legacy
// variables OPENAI_API_KEY, ANTHROPIC_API_KEY, FIRECRAWL_API_KEY, FIRECRAWL_API_URL and DATABASE_URL, an optional
// .env file, and finally flags.
//
// Subcommands:
//   - migrate: apply the store schema.
//   - stats: print link counts by crawl and summary status.
//   - export: write summarized links with their tags as NDJSON.
package main
