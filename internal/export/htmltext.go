// internal/export/htmltext.go
package export

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// blockTags force line breaks around their text when flattening HTML.
var blockTags = map[string]struct{}{
	"p": {}, "div": {}, "br": {}, "li": {}, "tr": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"article": {}, "section": {}, "blockquote": {}, "pre": {},
}

// skippedTags contribute no visible text.
var skippedTags = map[string]struct{}{
	"script": {}, "style": {}, "noscript": {}, "head": {},
	"iframe": {}, "svg": {}, "template": {},
}

// HTMLToText strips tags from an HTML document and returns its visible
// text. Script/style subtrees are dropped, entities are decoded by the
// parser, block elements become newlines, and runs of whitespace
// collapse to single spaces.
func HTMLToText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if _, skip := skippedTags[n.Data]; skip {
				return
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			if _, block := blockTags[n.Data]; block {
				sb.WriteByte('\n')
			}
		}
	}
	walk(doc)

	return collapseWhitespace(sb.String()), nil
}

// collapseWhitespace squeezes runs of spaces/tabs to one space and runs
// of blank lines to one newline, trimming each line.
func collapseWhitespace(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		out = append(out, strings.Join(fields, " "))
	}
	return strings.Join(out, "\n")
}
