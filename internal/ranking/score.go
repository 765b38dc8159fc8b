// Package ranking is the deterministic scoring, clustering, and budgeted
// selection engine. It turns model-annotated items into a ranked, grouped
// shortlist: Score assigns one composite relevance number per item, Cluster
// assigns group identity, and Select fills a global item budget while
// respecting per-lane, per-cluster sub-budgets.
//
// Everything in this package is pure with respect to external state: each
// function receives its full working set and returns its full result, so
// the engine is reproducible given the same inputs and weights.
package ranking

import (
	"math"
	"time"

	"github.com/joelkehle/brief/internal/content"
)

// Weights are the caller-supplied factors for the five score components.
// They are expected, not required, to sum to 1.0; the engine performs no
// normalization and will produce a degenerate score if misconfigured.
type Weights struct {
	Recency      float64 `yaml:"recency"`
	SourceTrust  float64 `yaml:"source_trust"`
	LaneAffinity float64 `yaml:"lane_affinity"`
	Popularity   float64 `yaml:"popularity"`
	Novelty      float64 `yaml:"novelty"`
}

// RecencyConfig controls the exponential recency decay.
type RecencyConfig struct {
	HalfLifeHours float64 `yaml:"half_life_hours"`
}

// TrustLookup maps source slug to a trust weight in [0,1]. Unknown sources
// score the neutral default.
type TrustLookup map[string]float64

const (
	// neutralScore is used wherever no signal is available: unknown source
	// trust, missing publish date, and the popularity/novelty components
	// (no external signal exists for those two yet; they are extension
	// points, not stubs to fix).
	neutralScore = 0.5

	defaultHalfLifeHours = 48
)

// Score computes the composite relevance score for a single item. It is a
// pure function: the same item, weights, config, lookup, and now always
// yield the same score, rounded to 4 decimal places.
func Score(item content.Item, w Weights, rc RecencyConfig, trust TrustLookup, now time.Time) float64 {
	recency := recencyScore(item.PublishedAt, rc, now)

	trustScore, ok := trust[item.SourceSlug]
	if !ok {
		trustScore = neutralScore
	}

	laneScore := item.Annotation.LaneScore(item.Annotation.BestLane())

	score := w.Recency*recency +
		w.SourceTrust*trustScore +
		w.LaneAffinity*laneScore +
		w.Popularity*neutralScore +
		w.Novelty*neutralScore

	return round4(score)
}

// recencyScore applies exponential decay with the configured half-life.
// A missing or unparseable publish date yields the neutral default rather
// than an error.
func recencyScore(publishedAt string, rc RecencyConfig, now time.Time) float64 {
	if publishedAt == "" {
		return neutralScore
	}
	pub, ok := parsePublished(publishedAt)
	if !ok {
		return neutralScore
	}
	halfLife := rc.HalfLifeHours
	if halfLife <= 0 {
		halfLife = defaultHalfLifeHours
	}
	hoursAgo := now.Sub(pub).Hours()
	return math.Exp(-math.Ln2 * hoursAgo / halfLife)
}

// parsePublished accepts the timestamp shapes feeds actually produce:
// RFC 3339 with or without sub-second precision, naive ISO 8601 (treated as
// UTC, the pipeline's reference zone), and bare dates.
func parsePublished(s string) (time.Time, bool) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
