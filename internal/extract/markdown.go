package extract

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// MarkdownParser pulls link destinations out of CommonMark + GFM text.
type MarkdownParser struct {
	md goldmark.Markdown
}

// NewMarkdownParser builds a parser with the GitHub Flavored Markdown extensions enabled.
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{
		md: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Links returns every http or https link destination in src in document order.
// Inline links, resolved reference links and autolinks are included.
func (p *MarkdownParser) Links(src []byte) ([]string, error) {
	doc := p.md.Parser().Parse(text.NewReader(src))
	var urls []string
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Link:
			urls = appendHTTP(urls, destination(node.Destination))
		case *ast.AutoLink:
			if node.AutoLinkType == ast.AutoLinkURL {
				urls = appendHTTP(urls, string(node.URL(src)))
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	return urls, nil
}

// destination decodes character references and backslash escapes in a link
// destination, as CommonMark does before exposing the URL.
func destination(raw []byte) string {
	out := util.ResolveNumericReferences(raw)
	out = util.ResolveEntityNames(out)
	out = util.UnescapePunctuations(out)
	return string(out)
}

// IsHTTP reports whether raw starts with the literal http:// or https:// prefix.
func IsHTTP(raw string) bool {
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}

func appendHTTP(urls []string, raw string) []string {
	if IsHTTP(raw) {
		return append(urls, raw)
	}
	return urls
}
