// Package export renders generated test cases for the UI (HTML) and for
// download (PDF).
package export

import (
	stdhtml "html"
	"regexp"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// RenderHTML converts markdown test cases to HTML for the chat view.
func RenderHTML(md string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return string(markdown.ToHTML([]byte(md), p, renderer))
}

// block is one renderable unit of the PDF body.
type block struct {
	text    string
	heading bool
}

var (
	blockPattern = regexp.MustCompile(`(?s)<(h[1-6]|p|li|pre|code)[^>]*>(.*?)</`)
	tagPattern   = regexp.MustCompile(`<[^>]+>`)
)

// blocksFromMarkdown renders markdown to HTML and flattens the block
// elements into plain-text paragraphs.
func blocksFromMarkdown(md string) []block {
	rendered := RenderHTML(md)
	matches := blockPattern.FindAllStringSubmatch(rendered, -1)
	blocks := make([]block, 0, len(matches))
	for _, m := range matches {
		text := tagPattern.ReplaceAllString(m[2], "")
		text = strings.TrimSpace(stdhtml.UnescapeString(text))
		if text == "" {
			continue
		}
		blocks = append(blocks, block{
			text:    text,
			heading: strings.HasPrefix(m[1], "h"),
		})
	}
	return blocks
}
