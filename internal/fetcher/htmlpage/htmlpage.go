// Package htmlpage renders an HTML document into a curator.Page: metadata from
// meta tags and readable text as lightweight markdown.
package htmlpage

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/linkcurator/internal/curator"
)

// blockSelector lists the block elements rendered into page content.
const blockSelector = "h1, h2, h3, h4, h5, h6, p, li, pre, blockquote"

// Parse reads an HTML document and renders it.
func Parse(r io.Reader) (curator.Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return curator.Page{}, fmt.Errorf("parse html: %w", err)
	}
	return FromSelection(doc.Selection), nil
}

// FromSelection renders the document rooted at doc. Content is taken from the
// first <article>, else the first <main>, else <body>.
func FromSelection(doc *goquery.Selection) curator.Page {
	page := curator.Page{
		Title:       firstNonEmpty(meta(doc, "og:title"), strings.TrimSpace(doc.Find("head title").First().Text())),
		Description: firstNonEmpty(meta(doc, "description"), meta(doc, "og:description")),
		ImageURL:    meta(doc, "og:image"),
		Keywords:    meta(doc, "keywords"),
	}
	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("main").First()
	}
	if root.Length() == 0 {
		root = doc.Find("body")
	}
	var b strings.Builder
	root.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		if block := renderBlock(s); block != "" {
			b.WriteString(block)
			b.WriteString("\n\n")
		}
	})
	page.Content = strings.TrimSpace(b.String())
	return page
}

func renderBlock(s *goquery.Selection) string {
	name := goquery.NodeName(s)
	if name == "pre" {
		text := strings.Trim(s.Text(), "\n")
		if text == "" {
			return ""
		}
		return "```\n" + text + "\n```"
	}
	// Nested blocks (a <p> inside <li>, or inside <blockquote>) are rendered by the inner element.
	if name != "p" && s.Find(blockSelector).Length() > 0 {
		return ""
	}
	text := strings.Join(strings.Fields(s.Text()), " ")
	if text == "" {
		return ""
	}
	switch name {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return strings.Repeat("#", int(name[1]-'0')) + " " + text
	case "li":
		return "- " + text
	case "blockquote":
		return "> " + text
	default:
		return text
	}
}

func meta(doc *goquery.Selection, key string) string {
	sel := doc.Find(fmt.Sprintf(`meta[name=%q], meta[property=%q]`, key, key)).First()
	content, _ := sel.Attr("content")
	return strings.TrimSpace(content)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
