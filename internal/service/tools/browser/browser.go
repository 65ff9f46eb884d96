package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const (
	defaultMaxChars     = 8000
	defaultFetchTimeout = 20 * time.Second
	maxResponseBytes    = 4 << 20
	maxLinks            = 50
	maxSnippets         = 20
	snippetContextChars = 120
)

var fetchTimeout atomic.Int64

// SetFetchTimeout overrides the default page fetch timeout. The app sets it
// once at startup from the configured value.
func SetFetchTimeout(d time.Duration) {
	if d > 0 {
		fetchTimeout.Store(int64(d))
	}
}

func pageFetchTimeout() time.Duration {
	if d := fetchTimeout.Load(); d > 0 {
		return time.Duration(d)
	}
	return defaultFetchTimeout
}

var skippedElements = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"svg":      {},
	"head":     {},
}

type pageContent struct {
	Title string
	Text  string
	Links []pageLink
}

type pageLink struct {
	Text string
	Href string
}

func validatePageURL(rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("url scheme must be http or https: %s", rawURL)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("url host must be provided: %s", rawURL)
	}

	return parsed, nil
}

func fetchPage(ctx context.Context, pageURL *url.URL) (*pageContent, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, pageFetchTimeout())
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "webpilot/1.0")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	return extractContent(doc, pageURL), nil
}

func extractContent(doc *html.Node, pageURL *url.URL) *pageContent {
	content := &pageContent{}
	var text strings.Builder

	var walk func(node *html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode {
			if _, ok := skippedElements[node.Data]; ok {
				return
			}
			if node.Data == "title" && content.Title == "" && node.FirstChild != nil {
				content.Title = strings.TrimSpace(node.FirstChild.Data)
			}
			if node.Data == "a" {
				if link := extractLink(node, pageURL); link != nil && len(content.Links) < maxLinks {
					content.Links = append(content.Links, *link)
				}
			}
		}
		if node.Type == html.TextNode {
			trimmed := strings.TrimSpace(node.Data)
			if trimmed != "" {
				if text.Len() > 0 {
					text.WriteString(" ")
				}
				text.WriteString(trimmed)
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	content.Text = text.String()
	return content
}

func extractLink(node *html.Node, pageURL *url.URL) *pageLink {
	var href string
	for _, attr := range node.Attr {
		if attr.Key == "href" {
			href = strings.TrimSpace(attr.Val)
			break
		}
	}
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return nil
	}

	resolved, err := pageURL.Parse(href)
	if err != nil {
		return nil
	}

	var text strings.Builder
	var collect func(n *html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			text.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			collect(child)
		}
	}
	collect(node)

	return &pageLink{
		Text: strings.Join(strings.Fields(text.String()), " "),
		Href: resolved.String(),
	}
}

func ReadPageTool(ctx context.Context, params *ReadPageParams) (string, error) {
	if params == nil {
		return "", fmt.Errorf("params must be provided")
	}

	pageURL, err := validatePageURL(params.URL)
	if err != nil {
		return "", err
	}

	maxChars := params.MaxChars
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}

	content, err := fetchPage(ctx, pageURL)
	if err != nil {
		return "", err
	}

	text := content.Text
	truncated := false
	if utf8.RuneCountInString(text) > maxChars {
		runes := []rune(text)
		text = string(runes[:maxChars])
		truncated = true
	}

	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", pageURL.String())
	fmt.Fprintf(&b, "Title: %s\n", content.Title)
	if truncated {
		fmt.Fprintf(&b, "Text (truncated to %d chars):\n%s\n", maxChars, text)
	} else {
		fmt.Fprintf(&b, "Text:\n%s\n", text)
	}
	if len(content.Links) > 0 {
		fmt.Fprint(&b, "Links:\n")
		for _, link := range content.Links {
			fmt.Fprintf(&b, "- [%s](%s)\n", link.Text, link.Href)
		}
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

func FindInPageTool(ctx context.Context, params *FindInPageParams) (string, error) {
	if params == nil {
		return "", fmt.Errorf("params must be provided")
	}
	if strings.TrimSpace(params.Query) == "" {
		return "", fmt.Errorf("query must be provided")
	}

	pageURL, err := validatePageURL(params.URL)
	if err != nil {
		return "", err
	}

	content, err := fetchPage(ctx, pageURL)
	if err != nil {
		return "", err
	}

	lowerText := strings.ToLower(content.Text)
	lowerQuery := strings.ToLower(params.Query)

	var snippets []string
	offset := 0
	for len(snippets) < maxSnippets {
		index := strings.Index(lowerText[offset:], lowerQuery)
		if index < 0 {
			break
		}
		index += offset

		start := index - snippetContextChars
		if start < 0 {
			start = 0
		}
		end := index + len(lowerQuery) + snippetContextChars
		if end > len(content.Text) {
			end = len(content.Text)
		}

		snippets = append(snippets, "..."+content.Text[start:end]+"...")
		offset = index + len(lowerQuery)
	}

	if len(snippets) == 0 {
		return fmt.Sprintf("No matches for %q on %s", params.Query, pageURL.String()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d match(es) for %q on %s:\n", len(snippets), params.Query, pageURL.String())
	for _, snippet := range snippets {
		fmt.Fprintf(&b, "- %s\n", snippet)
	}

	return strings.TrimRight(b.String(), "\n"), nil
}
