// Package worker implements the pipeline stages that move links through the
// store: ingestion of extracted links and inline tags, scraping of pending
// links and summarization of scraped content.
//
// Every stage reads its work from the store and writes results back to it, so
// a stage can be re-run on its own. Per-link failures are recorded on the link
// row and logged; they never abort sibling work.
package worker
