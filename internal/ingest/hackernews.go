package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/joelkehle/brief/internal/config"
	"github.com/joelkehle/brief/internal/content"
)

type hnStory struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Time  int64  `json:"time"`
}

// fetchHackerNews pulls the current top stories from the Firebase API.
// Link-only posts carry no body, so the title doubles as the raw text.
func (in *Ingester) fetchHackerNews(ctx context.Context, source config.Source) ([]content.Item, error) {
	var storyIDs []int64
	if err := in.getJSON(ctx, source.FetchURL+"topstories.json", &storyIDs); err != nil {
		return nil, fmt.Errorf("top stories: %w", err)
	}
	if len(storyIDs) > topStoriesLimit {
		storyIDs = storyIDs[:topStoriesLimit]
	}

	var items []content.Item
	for _, id := range storyIDs {
		var story hnStory
		if err := in.getJSON(ctx, fmt.Sprintf("%sitem/%d.json", source.FetchURL, id), &story); err != nil {
			log.Printf("ingest: hn story %d: %v", id, err)
			continue
		}
		if story.Type != "story" || story.URL == "" {
			continue
		}

		published := ""
		if story.Time > 0 {
			published = time.Unix(story.Time, 0).UTC().Format(time.RFC3339)
		}
		items = append(items, content.Item{
			Title:       story.Title,
			URL:         story.URL,
			SourceSlug:  source.Slug,
			SourceName:  source.Name,
			SourceType:  "api",
			PublishedAt: published,
			ContentType: contentTypeOr(source, "news_article"),
			RawText:     story.Title,
		})
	}
	return items, nil
}

func (in *Ingester) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := in.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
