// Package ingest fetches content from the configured sources, normalizes
// and sanitizes it, and stores new items for enrichment.
package ingest

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joelkehle/brief/internal/config"
	"github.com/joelkehle/brief/internal/content"
	"github.com/joelkehle/brief/internal/store"
	"github.com/joelkehle/brief/internal/trust"
)

const (
	requestTimeout = 30 * time.Second

	// maxTextLength caps stored body text; feeds occasionally ship entire
	// articles inline.
	maxTextLength   = 10000
	truncationNote  = "\n[... truncated]"
	defaultTitle    = "Untitled"
	hackerNewsSlug  = "hacker-news"
	topStoriesLimit = 30
)

// ItemStore is the slice of the persistence layer the ingester needs.
type ItemStore interface {
	InsertItem(content.Item) (bool, error)
	LogSourceHealth(store.SourceHealth) error
}

// Ingester pulls from every enabled source. A failing source is recorded in
// source_health and skipped; it never aborts the run.
type Ingester struct {
	store  ItemStore
	client *http.Client
	now    func() time.Time
}

func New(st ItemStore) *Ingester {
	return &Ingester{
		store:  st,
		client: &http.Client{Timeout: requestTimeout},
		now:    time.Now,
	}
}

// Run ingests all enabled sources and returns the number of newly stored
// items. Items older than maxAgeDays are dropped; duplicate URLs are
// silently skipped.
func (in *Ingester) Run(ctx context.Context, sources []config.Source, runDate string, maxAgeDays int) int {
	totalNew := 0

	for _, source := range sources {
		if !source.Enabled {
			continue
		}

		start := in.now()
		items, err := in.fetch(ctx, source)
		elapsedMS := in.now().Sub(start).Milliseconds()

		if err != nil {
			in.logHealth(store.SourceHealth{
				SourceSlug:     source.Slug,
				RunDate:        runDate,
				Status:         "failure",
				ErrorMessage:   err.Error(),
				ResponseTimeMS: elapsedMS,
			})
			log.Printf("ingest: %s failed: %v", source.Slug, err)
			continue
		}
		if items == nil {
			// fetch method not supported for this source
			in.logHealth(store.SourceHealth{
				SourceSlug:     source.Slug,
				RunDate:        runDate,
				Status:         "skipped",
				ErrorMessage:   source.FetchMethod + " not implemented",
				ResponseTimeMS: elapsedMS,
			})
			continue
		}

		newCount := 0
		for _, item := range in.normalize(source, items, maxAgeDays) {
			inserted, err := in.store.InsertItem(item)
			if err != nil {
				log.Printf("ingest: store %s: %v", item.URL, err)
				continue
			}
			if inserted {
				newCount++
			}
		}

		totalNew += newCount
		in.logHealth(store.SourceHealth{
			SourceSlug:     source.Slug,
			RunDate:        runDate,
			Status:         "success",
			ItemsFetched:   newCount,
			ResponseTimeMS: elapsedMS,
		})
		log.Printf("ingest: %d new items from %s (%dms)", newCount, source.Slug, elapsedMS)
	}

	return totalNew
}

// fetch dispatches on the source's fetch method. A nil, nil return means
// the method is not supported.
func (in *Ingester) fetch(ctx context.Context, source config.Source) ([]content.Item, error) {
	switch source.FetchMethod {
	case "rss":
		return in.fetchFeed(ctx, source)
	case "api":
		if source.Slug == hackerNewsSlug {
			return in.fetchHackerNews(ctx, source)
		}
		return nil, nil
	default:
		return nil, nil
	}
}

// normalize applies the shared post-fetch rules: domain verification, age
// cutoff, sanitization, and defaults.
func (in *Ingester) normalize(source config.Source, items []content.Item, maxAgeDays int) []content.Item {
	out := items[:0]
	for _, item := range items {
		if item.URL == "" {
			continue
		}
		if !verifyURL(item.URL, source.Domains) {
			log.Printf("ingest: %s: dropping URL with domain mismatch: %s", source.Slug, item.URL)
			continue
		}
		if in.tooOld(item.PublishedAt, maxAgeDays) {
			continue
		}
		if item.Title == "" {
			item.Title = defaultTitle
		}
		item.RawText, _ = trust.Sanitize(item.RawText, source.Slug)
		item.FetchedAt = in.now().UTC()
		item.Status = content.StatusPendingEnrichment
		out = append(out, item)
	}
	return out
}

// tooOld reports whether the published timestamp falls before the max-age
// cutoff. Missing or malformed timestamps are kept.
func (in *Ingester) tooOld(published string, maxAgeDays int) bool {
	if published == "" || maxAgeDays <= 0 {
		return false
	}
	t, err := time.Parse(time.RFC3339, published)
	if err != nil {
		return false
	}
	cutoff := in.now().UTC().AddDate(0, 0, -maxAgeDays)
	return t.Before(cutoff)
}

// verifyURL checks the URL's host against the source's domain allowlist.
// Sources without an allowlist pass everything.
func verifyURL(rawURL string, domains []string) bool {
	if len(domains) == 0 {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func (in *Ingester) logHealth(h store.SourceHealth) {
	if err := in.store.LogSourceHealth(h); err != nil {
		log.Printf("ingest: log health for %s: %v", h.SourceSlug, err)
	}
}

// truncateText caps stored body text at maxTextLength characters, not
// bytes, so a multibyte rune is never split at the boundary.
func truncateText(text string) string {
	if utf8.RuneCountInString(text) <= maxTextLength {
		return text
	}
	return string([]rune(text)[:maxTextLength]) + truncationNote
}
