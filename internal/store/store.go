// Package store is the SQLite persistence layer: content items, pipeline
// run records, per-source health, and delivery tracking.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/joelkehle/brief/internal/content"
)

const schema = `
CREATE TABLE IF NOT EXISTS content_items (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	title           TEXT NOT NULL,
	url             TEXT NOT NULL UNIQUE,
	source_slug     TEXT NOT NULL,
	source_name     TEXT NOT NULL,
	source_type     TEXT NOT NULL,
	published_date  TEXT NOT NULL DEFAULT '',
	fetched_date    TEXT NOT NULL,
	content_type    TEXT NOT NULL DEFAULT '',
	raw_text        TEXT NOT NULL DEFAULT '',

	summary_short   TEXT NOT NULL DEFAULT '',
	summary_long    TEXT NOT NULL DEFAULT '',
	topics          TEXT NOT NULL DEFAULT '[]',
	entities        TEXT NOT NULL DEFAULT '[]',
	lane_builders   REAL NOT NULL DEFAULT 0.0,
	lane_security   REAL NOT NULL DEFAULT 0.0,
	lane_business   REAL NOT NULL DEFAULT 0.0,

	relevance_score REAL NOT NULL DEFAULT 0.0,
	cluster_id      INTEGER NOT NULL DEFAULT 0,
	cluster_topic   TEXT NOT NULL DEFAULT '',
	novelty_flag    INTEGER NOT NULL DEFAULT 0,

	processing_status TEXT NOT NULL DEFAULT 'pending_enrichment'
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id             TEXT PRIMARY KEY,
	run_date       TEXT NOT NULL,
	started_at     TEXT NOT NULL,
	completed_at   TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'running',
	items_ingested INTEGER NOT NULL DEFAULT 0,
	items_enriched INTEGER NOT NULL DEFAULT 0,
	items_selected INTEGER NOT NULL DEFAULT 0,
	error_message  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS source_health (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	source_slug      TEXT NOT NULL,
	run_date         TEXT NOT NULL,
	status           TEXT NOT NULL,
	items_fetched    INTEGER NOT NULL DEFAULT 0,
	error_message    TEXT NOT NULL DEFAULT '',
	response_time_ms INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS digest_deliveries (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_date     TEXT NOT NULL UNIQUE,
	file_path    TEXT NOT NULL,
	delivered_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_status ON content_items(processing_status);
CREATE INDEX IF NOT EXISTS idx_items_source ON content_items(source_slug);
CREATE INDEX IF NOT EXISTS idx_items_date ON content_items(fetched_date);
CREATE INDEX IF NOT EXISTS idx_items_cluster ON content_items(cluster_id);
`

// Store wraps the SQLite database. The single connection plus WAL keeps
// concurrent readers happy while serializing writes.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// --- content items ---

// InsertItem stores a freshly fetched item in pending_enrichment state.
// Returns false when an item with the same URL already exists.
func (s *Store) InsertItem(item content.Item) (bool, error) {
	res, err := s.db.Exec(`INSERT OR IGNORE INTO content_items
		(title, url, source_slug, source_name, source_type,
		 published_date, fetched_date, content_type, raw_text, processing_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.Title, item.URL, item.SourceSlug, item.SourceName, item.SourceType,
		item.PublishedAt, timeToString(item.FetchedAt), item.ContentType, item.RawText,
		string(content.StatusPendingEnrichment),
	)
	if err != nil {
		return false, fmt.Errorf("insert item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PendingEnrichment returns all items awaiting model annotation, in
// insertion order.
func (s *Store) PendingEnrichment() ([]content.Item, error) {
	return s.queryItems(`SELECT `+itemColumns+` FROM content_items
		WHERE processing_status = ? ORDER BY id`, string(content.StatusPendingEnrichment))
}

// UpdateAnnotation persists the validated annotation and advances the item
// to enriched.
func (s *Store) UpdateAnnotation(itemID int64, a content.Annotation) error {
	_, err := s.db.Exec(`UPDATE content_items SET
		summary_short = ?, summary_long = ?, topics = ?, entities = ?,
		lane_builders = ?, lane_security = ?, lane_business = ?,
		processing_status = ?
		WHERE id = ?`,
		a.SummaryShort, a.SummaryLong, marshalJSON(a.Topics), marshalJSON(a.Entities),
		a.LaneBuilders, a.LaneSecurity, a.LaneBusiness,
		string(content.StatusEnriched), itemID,
	)
	if err != nil {
		return fmt.Errorf("update annotation: %w", err)
	}
	return nil
}

// EnrichedItems returns enriched items fetched on the given run date,
// ready for ranking.
func (s *Store) EnrichedItems(runDate string) ([]content.Item, error) {
	return s.queryItems(`SELECT `+itemColumns+` FROM content_items
		WHERE processing_status = ? AND date(fetched_date) = date(?) ORDER BY id`,
		string(content.StatusEnriched), runDate)
}

// UpdateRanking persists the derived ranking fields and advances the item
// to ranked.
func (s *Store) UpdateRanking(itemID int64, score float64, clusterID int, clusterTopic string, novelty bool) error {
	_, err := s.db.Exec(`UPDATE content_items SET
		relevance_score = ?, cluster_id = ?, cluster_topic = ?, novelty_flag = ?,
		processing_status = ?
		WHERE id = ?`,
		score, clusterID, clusterTopic, boolToInt(novelty),
		string(content.StatusRanked), itemID,
	)
	if err != nil {
		return fmt.Errorf("update ranking: %w", err)
	}
	return nil
}

// MarkPublished advances the given items to published.
func (s *Store) MarkPublished(itemIDs []int64) error {
	if len(itemIDs) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(itemIDs)), ",")
	args := make([]any, 0, len(itemIDs)+1)
	args = append(args, string(content.StatusPublished))
	for _, id := range itemIDs {
		args = append(args, id)
	}
	_, err := s.db.Exec(
		"UPDATE content_items SET processing_status = ? WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

// ItemByURL looks up a single item. Used by tests and the render tool.
func (s *Store) ItemByURL(url string) (content.Item, bool, error) {
	items, err := s.queryItems(`SELECT `+itemColumns+` FROM content_items WHERE url = ?`, url)
	if err != nil {
		return content.Item{}, false, err
	}
	if len(items) == 0 {
		return content.Item{}, false, nil
	}
	return items[0], true, nil
}

const itemColumns = `id, title, url, source_slug, source_name, source_type,
	published_date, fetched_date, content_type, raw_text,
	summary_short, summary_long, topics, entities,
	lane_builders, lane_security, lane_business,
	relevance_score, cluster_id, cluster_topic, novelty_flag, processing_status`

func (s *Store) queryItems(query string, args ...any) ([]content.Item, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []content.Item
	for rows.Next() {
		var it content.Item
		var fetched, topicsJSON, entitiesJSON, status string
		var novelty int
		if err := rows.Scan(&it.ID, &it.Title, &it.URL, &it.SourceSlug, &it.SourceName, &it.SourceType,
			&it.PublishedAt, &fetched, &it.ContentType, &it.RawText,
			&it.Annotation.SummaryShort, &it.Annotation.SummaryLong, &topicsJSON, &entitiesJSON,
			&it.Annotation.LaneBuilders, &it.Annotation.LaneSecurity, &it.Annotation.LaneBusiness,
			&it.RelevanceScore, &it.ClusterID, &it.ClusterTopic, &novelty, &status); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(topicsJSON), &it.Annotation.Topics)
		_ = json.Unmarshal([]byte(entitiesJSON), &it.Annotation.Entities)
		it.FetchedAt, _ = time.Parse(time.RFC3339Nano, fetched)
		it.NoveltyFlag = novelty != 0
		it.Status = content.Status(status)
		items = append(items, it)
	}
	return items, rows.Err()
}

// --- pipeline runs ---

// StartRun records a new pipeline run and returns it with a fresh id.
func (s *Store) StartRun(runDate string) (content.PipelineRun, error) {
	run := content.PipelineRun{
		ID:        uuid.NewString(),
		RunDate:   runDate,
		StartedAt: time.Now().UTC(),
		Status:    content.RunRunning,
	}
	_, err := s.db.Exec(`INSERT INTO pipeline_runs (id, run_date, started_at, status)
		VALUES (?, ?, ?, ?)`,
		run.ID, run.RunDate, timeToString(run.StartedAt), string(run.Status))
	if err != nil {
		return content.PipelineRun{}, fmt.Errorf("start run: %w", err)
	}
	return run, nil
}

// UpdateRunCounts persists the stage counters for an in-flight run.
func (s *Store) UpdateRunCounts(runID string, ingested, enriched, selected int) error {
	_, err := s.db.Exec(`UPDATE pipeline_runs SET
		items_ingested = ?, items_enriched = ?, items_selected = ? WHERE id = ?`,
		ingested, enriched, selected, runID)
	if err != nil {
		return fmt.Errorf("update run counts: %w", err)
	}
	return nil
}

// CompleteRun records the terminal state of a run. errMsg is empty on
// success.
func (s *Store) CompleteRun(runID string, status content.RunStatus, errMsg string) error {
	_, err := s.db.Exec(`UPDATE pipeline_runs SET
		status = ?, completed_at = ?, error_message = ? WHERE id = ?`,
		string(status), nowISO(), errMsg, runID)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// RunByID fetches a run record.
func (s *Store) RunByID(runID string) (content.PipelineRun, error) {
	row := s.db.QueryRow(`SELECT id, run_date, started_at, completed_at, status,
		items_ingested, items_enriched, items_selected, error_message
		FROM pipeline_runs WHERE id = ?`, runID)

	var run content.PipelineRun
	var started, completed, status string
	if err := row.Scan(&run.ID, &run.RunDate, &started, &completed, &status,
		&run.ItemsIngested, &run.ItemsEnriched, &run.ItemsSelected, &run.ErrorMessage); err != nil {
		return content.PipelineRun{}, fmt.Errorf("run %s: %w", runID, err)
	}
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if completed != "" {
		run.CompletedAt, _ = time.Parse(time.RFC3339Nano, completed)
	}
	run.Status = content.RunStatus(status)
	return run, nil
}

// --- source health ---

// SourceHealth is one fetch attempt outcome for one source on one run date.
type SourceHealth struct {
	SourceSlug     string
	RunDate        string
	Status         string
	ItemsFetched   int
	ErrorMessage   string
	ResponseTimeMS int64
}

// LogSourceHealth appends a health row; rows are never updated.
func (s *Store) LogSourceHealth(h SourceHealth) error {
	_, err := s.db.Exec(`INSERT INTO source_health
		(source_slug, run_date, status, items_fetched, error_message, response_time_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		h.SourceSlug, h.RunDate, h.Status, h.ItemsFetched, h.ErrorMessage, h.ResponseTimeMS)
	if err != nil {
		return fmt.Errorf("log source health: %w", err)
	}
	return nil
}

// SourceHealthFor returns the health rows for a run date, insertion order.
func (s *Store) SourceHealthFor(runDate string) ([]SourceHealth, error) {
	rows, err := s.db.Query(`SELECT source_slug, run_date, status, items_fetched,
		error_message, response_time_ms FROM source_health WHERE run_date = ? ORDER BY id`, runDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SourceHealth
	for rows.Next() {
		var h SourceHealth
		if err := rows.Scan(&h.SourceSlug, &h.RunDate, &h.Status, &h.ItemsFetched,
			&h.ErrorMessage, &h.ResponseTimeMS); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// --- deliveries ---

// RecordDelivery marks the run date as delivered. Returns false when a
// delivery for that date already exists (the unique constraint is the
// idempotency guard).
func (s *Store) RecordDelivery(runDate, filePath string) (bool, error) {
	res, err := s.db.Exec(`INSERT OR IGNORE INTO digest_deliveries
		(run_date, file_path, delivered_at) VALUES (?, ?, ?)`,
		runDate, filePath, nowISO())
	if err != nil {
		return false, fmt.Errorf("record delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IsDelivered reports whether a digest was already delivered for the date.
func (s *Store) IsDelivered(runDate string) (bool, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM digest_deliveries WHERE run_date = ?`, runDate).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// --- helpers ---

func timeToString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return "[]"
	}
	return string(b)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
