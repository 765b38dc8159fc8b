// Package content holds the item and run records shared across the
// ingestion, enrichment, ranking, and delivery layers.
package content

import "time"

// Status tracks an item's progress through the pipeline. Transitions are
// monotonic: an item never moves backwards.
type Status string

const (
	StatusPendingEnrichment Status = "pending_enrichment"
	StatusEnriched          Status = "enriched"
	StatusRanked            Status = "ranked"
	StatusPublished         Status = "published"
)

// Lane is a named category of reader interest with an independent affinity
// score per item.
type Lane string

const (
	LaneBuilders Lane = "builders"
	LaneSecurity Lane = "security"
	LaneBusiness Lane = "business"
)

// Lanes is the canonical lane order. Best-lane tie-breaks follow this order,
// and adding a lane means adding a row here plus a score field on Annotation.
var Lanes = []Lane{LaneBuilders, LaneSecurity, LaneBusiness}

// Entity is a named entity extracted by the model.
type Entity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Annotation is the validated model output attached to an item. All fields
// are safe to persist: the validator clamps, defaults, and truncates before
// an Annotation is constructed.
type Annotation struct {
	SummaryShort string   `json:"summary_short"`
	SummaryLong  string   `json:"summary_long"`
	Topics       []string `json:"topics"`
	Entities     []Entity `json:"entities"`
	LaneBuilders float64  `json:"lane_builders"`
	LaneSecurity float64  `json:"lane_security"`
	LaneBusiness float64  `json:"lane_business"`
}

// LaneScore returns the affinity score for the given lane.
func (a Annotation) LaneScore(lane Lane) float64 {
	switch lane {
	case LaneBuilders:
		return a.LaneBuilders
	case LaneSecurity:
		return a.LaneSecurity
	case LaneBusiness:
		return a.LaneBusiness
	}
	return 0
}

// BestLane returns the lane with the highest affinity score. Ties resolve to
// the earliest lane in canonical order.
func (a Annotation) BestLane() Lane {
	best := Lanes[0]
	bestScore := a.LaneScore(best)
	for _, lane := range Lanes[1:] {
		if s := a.LaneScore(lane); s > bestScore {
			best = lane
			bestScore = s
		}
	}
	return best
}

// Item is one piece of fetched content plus, once available, its model
// annotation and derived ranking fields.
type Item struct {
	ID         int64
	Title      string
	URL        string
	SourceSlug string
	SourceName string
	SourceType string

	// PublishedAt is the source-supplied timestamp as an ISO 8601 string,
	// empty when the source provides none. Kept as a string because feeds
	// routinely ship malformed values; the scorer parses defensively.
	PublishedAt string
	FetchedAt   time.Time

	ContentType string
	RawText     string

	Annotation Annotation

	RelevanceScore float64
	ClusterID      int
	ClusterTopic   string
	NoveltyFlag    bool

	Status Status
}

// RunStatus is the terminal state of a pipeline run record.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// PipelineRun is the per-invocation record: one row per run, append-only
// except for a single completion update.
type PipelineRun struct {
	ID            string
	RunDate       string
	StartedAt     time.Time
	CompletedAt   time.Time
	Status        RunStatus
	ItemsIngested int
	ItemsEnriched int
	ItemsSelected int
	ErrorMessage  string
}
