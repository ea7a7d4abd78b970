// Package curator defines the domain types and collaborator interfaces shared by
// the extraction, scrape and summarize stages.
//
// Stages never hand results to each other in memory. Each one reads the current
// state of the LinkStore, does its work, and writes back per-link updates, so
// any stage can be re-run on its own after a partial failure.
package curator
