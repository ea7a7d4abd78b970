// Package extract discovers absolute http(s) links in Markdown documents and
// NDJSON record dumps and reduces them to a first-seen unique list.
package extract
