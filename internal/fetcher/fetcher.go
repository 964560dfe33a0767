// Package fetcher pulls readable text out of recipe source pages so sources
// the backend returned without a preview can still show one.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pbaille/platelog/internal/domain"
	"golang.org/x/net/html"
)

const (
	maxText = 10 * 1024
	maxBody = 5 * 1024 * 1024
	agent   = "platelog/1.0 (recipe preview)"
	method  = "html_text"
	scheme  = "https"
)

var ErrNotHTML = errors.New("not an html page")

// client is shared by every preview fetch
var client = &http.Client{Timeout: 30 * time.Second}

// Fetch retrieves a recipe page and extracts its readable text. The recipe
// body (article or main) is preferred over the whole page when present.
func Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = scheme
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", agent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", u.Host, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !isHTML(ct) {
		return "", fmt.Errorf("fetch %s: %w (%s)", u.Host, ErrNotHTML, ct)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}

	text := extractText(doc)
	if text == "" {
		return "", fmt.Errorf("no text content found")
	}
	return text, nil
}

func isHTML(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

// Preview returns the first n runes of text, with an ellipsis when cut
func Preview(text string, n int) string {
	text = strings.TrimSpace(text)
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:n])) + "..."
}

// FillPreviews fetches a preview for every source that came back without
// one. Sources that cannot be fetched are left as they are.
func FillPreviews(ctx context.Context, sources []domain.WebSource, n int) {
	for i := range sources {
		src := &sources[i]
		if src.ContentPreview != "" || src.Link == "" {
			continue
		}
		text, err := Fetch(ctx, src.Link)
		if err != nil {
			log.Printf("[fetch] %s: %v", src.Link, err)
			continue
		}
		src.ContentPreview = Preview(text, n)
		src.ExtractionMethod = method
	}
}

// Page chrome, scripts and forms carry no recipe text
var skipTags = map[string]bool{
	"script": true, "style": true, "nav": true,
	"header": true, "footer": true, "aside": true,
	"noscript": true, "iframe": true, "svg": true,
	"form": true,
}

func extractText(doc *html.Node) string {
	root := doc
	if body := findFirst(doc, "article", "main"); body != nil {
		root = body
	}

	text := collectText(root)
	if text == "" && root != doc {
		text = collectText(doc)
	}

	if len(text) > maxText {
		cut := maxText
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	return text
}

// findFirst returns the first element, in document order, named any of tags
func findFirst(n *html.Node, tags ...string) *html.Node {
	if n.Type == html.ElementNode {
		for _, t := range tags {
			if n.Data == t {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, tags...); found != nil {
			return found
		}
	}
	return nil
}

func collectText(root *html.Node) string {
	var words []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			words = append(words, strings.Fields(n.Data)...)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return strings.Join(words, " ")
}
