package watch

import (
	"bytes"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	readability "codeberg.org/readeck/go-readability/v2"
	"github.com/andybalholm/cascadia"
	xhtml "golang.org/x/net/html"

	"github.com/javiportal/asertiva-monitoring/internal/normalize"
)

var titlePattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// ExtractText reduces a fetched body to visible text. Plain-text
// responses pass through, a configured selector narrows the document to
// the matching subtrees, and everything else goes through readability
// with a tag-strip fallback when it yields nothing.
func ExtractText(result *FetchResult, site SiteConfig) (string, error) {
	if result == nil {
		return "", fmt.Errorf("fetch result is nil")
	}

	if strings.HasPrefix(result.ContentType, "text/plain") {
		return string(result.Body), nil
	}

	if selector := strings.TrimSpace(site.ContentSelector); selector != "" {
		return extractBySelector(result.Body, selector)
	}

	pageURL, err := url.Parse(site.URL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(result.Body), pageURL)
	if err == nil {
		var rendered bytes.Buffer
		if renderErr := article.RenderText(&rendered); renderErr == nil {
			if text := strings.TrimSpace(rendered.String()); text != "" {
				return text, nil
			}
		}
	}

	// Readability found no article content (common for listing pages);
	// fall back to stripping markup from the whole document.
	return normalize.Normalize(string(result.Body)), nil
}

func extractBySelector(body []byte, selector string) (string, error) {
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return "", fmt.Errorf("parse content selector %q: %w", selector, err)
	}

	doc, err := xhtml.Parse(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	matches := cascadia.QueryAll(doc, sel)
	if len(matches) == 0 {
		return "", fmt.Errorf("content selector %q matched nothing", selector)
	}

	var b strings.Builder
	for _, node := range matches {
		collectText(node, &b)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func collectText(node *xhtml.Node, b *strings.Builder) {
	if node.Type == xhtml.ElementNode {
		switch node.Data {
		case "script", "style", "noscript":
			return
		}
	}
	if node.Type == xhtml.TextNode {
		b.WriteString(node.Data)
		b.WriteString(" ")
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, b)
	}
	if node.Type == xhtml.ElementNode && isBlockElement(node.Data) {
		b.WriteString("\n")
	}
}

func isBlockElement(tag string) bool {
	switch tag {
	case "p", "div", "li", "ul", "ol", "tr", "table", "h1", "h2", "h3", "h4", "h5", "h6",
		"section", "article", "header", "footer", "blockquote", "br":
		return true
	}
	return false
}

// PageTitle pulls the document title out of raw HTML, or "".
func PageTitle(body []byte) string {
	groups := titlePattern.FindSubmatch(body)
	if len(groups) < 2 {
		return ""
	}
	title := html.UnescapeString(string(groups[1]))
	return strings.Join(strings.Fields(title), " ")
}
