package ingest

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/joelkehle/brief/internal/config"
	"github.com/joelkehle/brief/internal/content"
)

// feedDocument covers both RSS 2.0 (<rss><channel><item>) and Atom
// (<feed><entry>) in one decode pass.
type feedDocument struct {
	XMLName xml.Name
	Channel struct {
		Items []feedItem `xml:"item"`
	} `xml:"channel"`
	Entries []atomEntry `xml:"entry"`
}

type feedItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	PubDate     string `xml:"pubDate"`
	Description string `xml:"description"`
	Encoded     string `xml:"encoded"` // content:encoded
}

type atomEntry struct {
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
	Content   string     `xml:"content"`
	Summary   string     `xml:"summary"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

func (e atomEntry) url() string {
	for _, l := range e.Links {
		if l.Rel == "alternate" || l.Rel == "" {
			return l.Href
		}
	}
	if len(e.Links) > 0 {
		return e.Links[0].Href
	}
	return ""
}

// fetchFeed downloads and parses an RSS or Atom feed into raw items.
// Normalization (sanitizing, domain checks, age cutoff) happens later in
// the shared path.
func (in *Ingester) fetchFeed(ctx context.Context, source config.Source) ([]content.Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.FetchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := in.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}

	var doc feedDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	var items []content.Item
	for _, it := range doc.Channel.Items {
		items = append(items, content.Item{
			Title:       strings.TrimSpace(it.Title),
			URL:         strings.TrimSpace(it.Link),
			SourceSlug:  source.Slug,
			SourceName:  source.Name,
			SourceType:  "rss",
			PublishedAt: parseFeedTime(it.PubDate),
			ContentType: contentTypeOr(source, "blog_post"),
			RawText:     extractText(firstNonEmpty(it.Encoded, it.Description)),
		})
	}
	for _, e := range doc.Entries {
		published := parseFeedTime(firstNonEmpty(e.Published, e.Updated))
		items = append(items, content.Item{
			Title:       strings.TrimSpace(e.Title),
			URL:         strings.TrimSpace(e.url()),
			SourceSlug:  source.Slug,
			SourceName:  source.Name,
			SourceType:  "rss",
			PublishedAt: published,
			ContentType: contentTypeOr(source, "blog_post"),
			RawText:     extractText(firstNonEmpty(e.Content, e.Summary)),
		})
	}
	if len(items) == 0 && doc.XMLName.Local != "rss" && doc.XMLName.Local != "feed" {
		return nil, fmt.Errorf("parse feed: unrecognized root element %q", doc.XMLName.Local)
	}
	return items, nil
}

// feedTimeFormats are tried in order; feeds are wildly inconsistent.
var feedTimeFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseFeedTime normalizes a feed timestamp to RFC 3339 UTC, or returns ""
// when the value cannot be parsed.
func parseFeedTime(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, layout := range feedTimeFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return ""
}

// extractText strips markup from a feed body and caps its length. Bodies
// that fail to parse as HTML are kept as-is.
func extractText(rawHTML string) string {
	rawHTML = strings.TrimSpace(rawHTML)
	if rawHTML == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return truncateText(rawHTML)
	}
	var parts []string
	doc.Find("body").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text != "" {
			parts = append(parts, text)
		}
	})
	text := strings.Join(parts, "\n")
	if text == "" {
		text = rawHTML
	}
	return truncateText(text)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func contentTypeOr(source config.Source, fallback string) string {
	if source.ContentType != "" {
		return source.ContentType
	}
	return fallback
}
