// Package generichandler provides the fallback enrichment used when no
// dedicated site extractor applies: it fetches the page directly and
// reads og:meta tags, falling back to readability-extracted plaintext
// for the description when those are absent.
package generichandler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

const maxBodySize = 5 << 20 // 5MB

// PageMetadata is the enrichment result scraped from a page the
// extractor had no dedicated handler for.
type PageMetadata struct {
	Title       string
	Description string
	ImageURL    string
}

// Enricher fetches and parses generic web pages.
type Enricher struct {
	Client *http.Client
}

func NewEnricher() *Enricher {
	return &Enricher{Client: &http.Client{Timeout: 15 * time.Second}}
}

// Fetch retrieves pageURL and extracts og:title/og:description/og:image,
// falling back to readability's plaintext extraction for the
// description when the og:description tag is absent.
func (e *Enricher) Fetch(ctx context.Context, pageURL string) (PageMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return PageMetadata{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "anypod/1.0 (+generic metadata fallback)")

	resp, err := e.Client.Do(req)
	if err != nil {
		return PageMetadata{}, fmt.Errorf("fetch %q: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return PageMetadata{}, fmt.Errorf("fetch %q: unexpected status %s", pageURL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return PageMetadata{}, fmt.Errorf("read body of %q: %w", pageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return PageMetadata{}, fmt.Errorf("parse html of %q: %w", pageURL, err)
	}

	meta := PageMetadata{
		Title:       ogContent(doc, "og:title"),
		Description: ogContent(doc, "og:description"),
		ImageURL:    ogContent(doc, "og:image"),
	}
	if meta.Title == "" {
		meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	if meta.Description == "" {
		if parsedURL, err := url.Parse(pageURL); err == nil {
			if article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL); err == nil {
				meta.Description = strings.TrimSpace(article.TextContent)
			}
		}
	}

	return meta, nil
}

func ogContent(doc *goquery.Document, property string) string {
	val, _ := doc.Find(fmt.Sprintf(`meta[property="%s"]`, property)).First().Attr("content")
	return strings.TrimSpace(val)
}
