package utils

import (
	"html/template"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

var (
	ugcPolicy    = bluemonday.UGCPolicy()
	strictPolicy = bluemonday.StrictPolicy()
)

// SanitizeText strips all HTML from user supplied text such as titles and tags.
func SanitizeText(input string) string {
	return strictPolicy.Sanitize(input)
}

// RenderMarkdown converts a markdown body to HTML and sanitizes the result
// so it is safe to embed in a template.
func RenderMarkdown(md string) template.HTML {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(md))

	htmlFlags := html.CommonFlags | html.HrefTargetBlank
	renderer := html.NewRenderer(html.RendererOptions{Flags: htmlFlags})

	unsafe := markdown.Render(doc, renderer)
	return template.HTML(ugcPolicy.SanitizeBytes(unsafe))
}
