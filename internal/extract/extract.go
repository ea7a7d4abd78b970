package extract

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkcurator/internal/curator"
	"github.com/JakeFAU/linkcurator/internal/ndjson"
)

// DefaultExtensions lists the file extensions scanned in Markdown mode.
var DefaultExtensions = []string{".md", ".mdx", ".markdown", ".txt", ".html", ".mdc"}

// Config tunes an Extractor.
type Config struct {
	// Extensions overrides DefaultExtensions when non-empty.
	Extensions []string
	// BaseDir is the directory SourceFile paths are made relative to. Empty means the working directory.
	BaseDir string
	// LenientRows skips malformed NDJSON rows instead of failing the file.
	LenientRows bool
}

// Extractor turns a corpus directory into candidate links.
type Extractor struct {
	cfg    Config
	exts   map[string]struct{}
	parser *MarkdownParser
	logger *zap.Logger
}

// New creates an Extractor.
func New(cfg Config, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		set[strings.ToLower(ext)] = struct{}{}
	}
	return &Extractor{
		cfg:    cfg,
		exts:   set,
		parser: NewMarkdownParser(),
		logger: logger.Named("extract"),
	}
}

// FromMarkdown walks dir recursively and extracts links from every matching file.
// Unreadable files are logged and skipped; the walk fails only when dir itself cannot be read.
func (e *Extractor) FromMarkdown(ctx context.Context, dir string) ([]curator.ExtractedLink, error) {
	var links []curator.ExtractedLink
	files := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == dir {
				return walkErr
			}
			e.logger.Warn("skipping unreadable path", zap.String("path", path), zap.Error(walkErr))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !e.matches(path) {
			return nil
		}
		files++
		found, err := e.markdownFile(path)
		if err != nil {
			e.logger.Warn("skipping file", zap.String("path", path), zap.Error(err))
			return nil
		}
		links = append(links, found...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	e.logger.Info("markdown extraction finished",
		zap.String("dir", dir),
		zap.Int("files", files),
		zap.Int("links", len(links)),
	)
	return links, nil
}

// FromNDJSON lists *.ndjson files directly under dir (no recursion) and extracts
// links from the text field of each row. Each link carries its row as SourceJSON.
func (e *Extractor) FromNDJSON(ctx context.Context, dir string) ([]curator.ExtractedLink, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var links []curator.ExtractedLink
	files := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".ndjson") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("ndjson extraction: %w", err)
		}
		files++
		path := filepath.Join(dir, entry.Name())
		found, err := e.ndjsonFile(path)
		if err != nil {
			e.logger.Error("skipping ndjson file", zap.String("path", path), zap.Error(err))
			continue
		}
		links = append(links, found...)
	}
	if files == 0 {
		e.logger.Info("no ndjson files found", zap.String("dir", dir))
		return nil, nil
	}
	e.logger.Info("ndjson extraction finished",
		zap.String("dir", dir),
		zap.Int("files", files),
		zap.Int("links", len(links)),
	)
	return links, nil
}

func (e *Extractor) markdownFile(path string) ([]curator.ExtractedLink, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	urls, err := e.parser.Links(src)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	source := e.relative(path)
	links := make([]curator.ExtractedLink, 0, len(urls))
	for _, u := range urls {
		links = append(links, curator.ExtractedLink{URL: u, SourceFile: source})
	}
	return links, nil
}

func (e *Extractor) ndjsonFile(path string) ([]curator.ExtractedLink, error) {
	records, err := ndjson.ReadFileRecords(path, ndjson.WithStrict(!e.cfg.LenientRows))
	if err != nil {
		return nil, err
	}
	source := e.relative(path)
	var links []curator.ExtractedLink
	for _, rec := range records {
		body, ok := rec.Row["text"].(string)
		if !ok || body == "" {
			continue
		}
		urls, err := e.parser.Links([]byte(body))
		if err != nil {
			return nil, fmt.Errorf("parse row text: %w", err)
		}
		for _, u := range urls {
			links = append(links, curator.ExtractedLink{URL: u, SourceFile: source, SourceJSON: string(rec.Raw)})
		}
	}
	return links, nil
}

func (e *Extractor) matches(path string) bool {
	_, ok := e.exts[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (e *Extractor) relative(path string) string {
	base := e.cfg.BaseDir
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return path
		}
		base = wd
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// UniqueLinks keeps the first occurrence of each URL and preserves input order.
func UniqueLinks(links []curator.ExtractedLink) []curator.ExtractedLink {
	seen := make(map[string]struct{}, len(links))
	out := make([]curator.ExtractedLink, 0, len(links))
	for _, link := range links {
		if _, ok := seen[link.URL]; ok {
			continue
		}
		seen[link.URL] = struct{}{}
		out = append(out, link)
	}
	return out
}
