package postgres

// Schema creates the links, tags and link_tags tables when missing.
const Schema = `
CREATE TABLE IF NOT EXISTS links (
	id                 BIGSERIAL PRIMARY KEY,
	url                TEXT NOT NULL UNIQUE,
	source_file        TEXT NOT NULL DEFAULT '',
	source_json        TEXT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	crawl_status       TEXT NOT NULL DEFAULT 'pending',
	crawled_at         TIMESTAMPTZ,
	markdown_content   TEXT,
	crawl_error        TEXT,
	title              TEXT,
	description        TEXT,
	image_url          TEXT,
	keywords           TEXT[],
	summary            TEXT,
	summary_status     TEXT NOT NULL DEFAULT 'pending',
	summary_error      TEXT,
	summary_created_at TIMESTAMPTZ,
	summary_updated_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS links_crawl_status_idx ON links (crawl_status);
CREATE INDEX IF NOT EXISTS links_summary_status_idx ON links (summary_status);

CREATE TABLE IF NOT EXISTS tags (
	id   BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS link_tags (
	link_id BIGINT NOT NULL REFERENCES links (id),
	tag_id  BIGINT NOT NULL REFERENCES tags (id),
	PRIMARY KEY (link_id, tag_id)
);
`
