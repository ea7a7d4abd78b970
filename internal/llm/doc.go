// Package llm turns scraped page content into a validated summary and tag list
// using a chat-completion provider (OpenAI, an OpenAI-compatible server such as
// Ollama, or Anthropic).
package llm
