// Package htmltext converts scraped statement HTML into plain markup.
// The conversion is lossy by design but must keep inline math and code
// spans intact, since statements are meaningless without them.
package htmltext

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Markup renders a statement fragment as markdown-style text. Inline
// code becomes `code`, block code becomes fenced blocks, TeX spans and
// formula images keep their source between dollar signs.
func Markup(sel *goquery.Selection) string {
	var b strings.Builder
	for _, node := range sel.Nodes {
		renderNode(&b, node)
	}
	return collapseBlankLines(strings.TrimSpace(b.String()))
}

func renderNode(b *strings.Builder, node *html.Node) {
	if node.Type == html.TextNode {
		b.WriteString(node.Data)
		return
	}
	if node.Type != html.ElementNode {
		return
	}

	switch node.Data {
	case "script", "style":
		return
	case "br":
		b.WriteString("\n")
		return
	case "pre":
		b.WriteString("\n```\n")
		b.WriteString(strings.TrimSpace(nodeText(node)))
		b.WriteString("\n```\n")
		return
	case "code", "tt":
		b.WriteString("`")
		b.WriteString(nodeText(node))
		b.WriteString("`")
		return
	case "img":
		// Formula images carry their TeX source in alt.
		for _, attr := range node.Attr {
			if attr.Key == "alt" && attr.Val != "" {
				b.WriteString("$")
				b.WriteString(attr.Val)
				b.WriteString("$")
				return
			}
		}
		return
	case "span":
		for _, attr := range node.Attr {
			if attr.Key == "class" && strings.Contains(attr.Val, "tex") {
				b.WriteString("$")
				b.WriteString(nodeText(node))
				b.WriteString("$")
				return
			}
		}
	case "b", "strong":
		b.WriteString("**")
		renderChildren(b, node)
		b.WriteString("**")
		return
	case "i", "em", "var":
		b.WriteString("*")
		renderChildren(b, node)
		b.WriteString("*")
		return
	case "p", "div", "h1", "h2", "h3", "h4", "ul", "ol", "table", "blockquote":
		b.WriteString("\n")
		renderChildren(b, node)
		b.WriteString("\n")
		return
	case "li":
		b.WriteString("\n- ")
		renderChildren(b, node)
		return
	}

	renderChildren(b, node)
}

func renderChildren(b *strings.Builder, node *html.Node) {
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		renderNode(b, child)
	}
}

func nodeText(node *html.Node) string {
	if node.Type == html.TextNode {
		return node.Data
	}

	var b strings.Builder
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		b.WriteString(nodeText(child))
	}
	return b.String()
}

func collapseBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	blank := false
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if trimmed == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, trimmed)
	}
	return strings.Join(out, "\n")
}
