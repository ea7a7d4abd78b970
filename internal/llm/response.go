package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/linkcurator/internal/curator"
)

var (
	// ErrEmptyResponse is returned when the provider produced no text.
	ErrEmptyResponse = errors.New("model response was empty")
	// ErrInvalidShape is returned when the JSON is not {summary: string, tags: string[]}.
	ErrInvalidShape = errors.New("response does not match {summary: string, tags: string[]}")
	// ErrEmptyResult is returned when both the summary and the tag list are empty after trimming.
	ErrEmptyResult = errors.New("response contained an empty summary and no tags")
)

// ParseResponse decodes and validates a model reply. The summary and each tag
// are trimmed and empty tags are dropped.
func ParseResponse(text string) (curator.Summary, error) {
	body := stripFence(strings.TrimSpace(text))
	if body == "" {
		return curator.Summary{}, ErrEmptyResponse
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return curator.Summary{}, fmt.Errorf("parse model JSON: %w", err)
	}
	var summary string
	if err := json.Unmarshal(fields["summary"], &summary); err != nil || !isString(fields["summary"]) {
		return curator.Summary{}, fmt.Errorf("%w: summary is not a string", ErrInvalidShape)
	}
	var rawTags []json.RawMessage
	if err := json.Unmarshal(fields["tags"], &rawTags); err != nil || !isArray(fields["tags"]) {
		return curator.Summary{}, fmt.Errorf("%w: tags is not an array", ErrInvalidShape)
	}
	tags := make([]string, 0, len(rawTags))
	for i, raw := range rawTags {
		var tag string
		if !isString(raw) {
			return curator.Summary{}, fmt.Errorf("%w: tag %d is not a string", ErrInvalidShape, i)
		}
		if err := json.Unmarshal(raw, &tag); err != nil {
			return curator.Summary{}, fmt.Errorf("%w: tag %d: %v", ErrInvalidShape, i, err)
		}
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	result := curator.Summary{Summary: strings.TrimSpace(summary), Tags: tags}
	if result.Summary == "" && len(result.Tags) == 0 {
		return curator.Summary{}, ErrEmptyResult
	}
	return result, nil
}

// stripFence removes a surrounding ```json fence that some providers add
// despite being asked for bare JSON.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func isString(raw json.RawMessage) bool {
	return len(raw) > 0 && raw[0] == '"'
}

func isArray(raw json.RawMessage) bool {
	return len(raw) > 0 && raw[0] == '['
}
