// Package pipeline orchestrates one full digest run:
// ingest → enrich → rank → digest → deliver.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joelkehle/brief/internal/config"
	"github.com/joelkehle/brief/internal/content"
	"github.com/joelkehle/brief/internal/delivery"
	"github.com/joelkehle/brief/internal/ranking"
)

// StageError tags a failure with the pipeline stage it happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Ingester pulls new items from the configured sources.
type Ingester interface {
	Run(ctx context.Context, sources []config.Source, runDate string, maxAgeDays int) int
}

// Enricher annotates pending items with the model.
type Enricher interface {
	Run(ctx context.Context, profile config.Profile) (int, error)
}

// Generator renders the selected clusters into digest HTML.
type Generator interface {
	Generate(ctx context.Context, clusters []ranking.ClusterSelection, runDate string, profile config.Profile) (string, error)
}

// Deliverer writes the digest (or an error page) to its destination.
type Deliverer interface {
	Deliver(htmlContent, runDate string) (string, error)
	DeliverError(runDate, errorMessage string) (string, error)
}

// Store is the slice of the persistence layer the orchestrator needs.
type Store interface {
	StartRun(runDate string) (content.PipelineRun, error)
	UpdateRunCounts(runID string, ingested, enriched, selected int) error
	CompleteRun(runID string, status content.RunStatus, errMsg string) error
	EnrichedItems(runDate string) ([]content.Item, error)
	UpdateRanking(itemID int64, score float64, clusterID int, clusterTopic string, novelty bool) error
	MarkPublished(itemIDs []int64) error
}

// Options wires a Pipeline. Now and OpenBrowser default to time.Now and the
// platform browser opener.
type Options struct {
	Store     Store
	Ingester  Ingester
	Enricher  Enricher
	Generator Generator
	Deliverer Deliverer

	Profile config.Profile
	Sources []config.Source
	Ranking config.Ranking

	Now         func() time.Time
	OpenBrowser func(path string)
}

type Pipeline struct {
	opts   Options
	tracer trace.Tracer
}

func New(opts Options) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = delivery.OpenInBrowser
	}
	return &Pipeline{opts: opts, tracer: otel.Tracer("brief/pipeline")}
}

// Run executes the full pipeline for today. The run record tracks
// progress; on failure the record is marked failed and an error page is
// delivered in place of the digest.
func (p *Pipeline) Run(ctx context.Context) error {
	// Run date is local time: "today's digest" means the reader's today.
	runDate := p.opts.Now().Format("2006-01-02")
	log.Printf("pipeline: === %s starting for %s ===", p.opts.Profile.Name, runDate)

	run, err := p.opts.Store.StartRun(runDate)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}

	ctx, rootSpan := p.tracer.Start(ctx, "pipeline.run")
	defer rootSpan.End()

	if err := p.run(ctx, run, runDate); err != nil {
		rootSpan.RecordError(err)
		rootSpan.SetStatus(codes.Error, err.Error())
		log.Printf("pipeline: failed: %v", err)

		if cerr := p.opts.Store.CompleteRun(run.ID, content.RunFailed, err.Error()); cerr != nil {
			log.Printf("pipeline: record failure: %v", cerr)
		}
		if path, derr := p.opts.Deliverer.DeliverError(runDate, err.Error()); derr != nil {
			log.Printf("pipeline: deliver error page: %v", derr)
		} else if path != "" {
			p.opts.OpenBrowser(path)
		}
		return err
	}

	if err := p.opts.Store.CompleteRun(run.ID, content.RunCompleted, ""); err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	log.Printf("pipeline: === %s completed successfully ===", p.opts.Profile.Name)
	return nil
}

func (p *Pipeline) run(ctx context.Context, run content.PipelineRun, runDate string) error {
	enabled := 0
	for _, s := range p.opts.Sources {
		if s.Enabled {
			enabled++
		}
	}
	log.Printf("pipeline: sources: %d total, %d enabled", len(p.opts.Sources), enabled)
	if enabled == 0 {
		log.Printf("pipeline: no sources enabled — nothing to ingest")
		return nil
	}

	// Step 1: ingest
	ingestCtx, span := p.tracer.Start(ctx, "pipeline.ingest")
	ingested := p.opts.Ingester.Run(ingestCtx, p.opts.Sources, runDate, p.opts.Profile.MaxAgeDays)
	span.End()
	log.Printf("pipeline: ingested %d new items", ingested)
	if err := p.opts.Store.UpdateRunCounts(run.ID, ingested, 0, 0); err != nil {
		return &StageError{Stage: "ingest", Err: err}
	}

	// Step 2: enrich
	enrichCtx, span := p.tracer.Start(ctx, "pipeline.enrich")
	enriched, err := p.opts.Enricher.Run(enrichCtx, p.opts.Profile)
	span.End()
	if err != nil {
		return &StageError{Stage: "enrich", Err: err}
	}
	log.Printf("pipeline: enriched %d items", enriched)
	if err := p.opts.Store.UpdateRunCounts(run.ID, ingested, enriched, 0); err != nil {
		return &StageError{Stage: "enrich", Err: err}
	}

	// Step 3: rank and select
	_, span = p.tracer.Start(ctx, "pipeline.rank")
	clusters, selected, err := p.rankAndSelect(runDate)
	span.End()
	if err != nil {
		return &StageError{Stage: "rank", Err: err}
	}
	log.Printf("pipeline: selected %d items across %d clusters", selected, len(clusters))
	if err := p.opts.Store.UpdateRunCounts(run.ID, ingested, enriched, selected); err != nil {
		return &StageError{Stage: "rank", Err: err}
	}

	// Step 4: digest
	digestCtx, span := p.tracer.Start(ctx, "pipeline.digest")
	html, err := p.opts.Generator.Generate(digestCtx, clusters, runDate, p.opts.Profile)
	span.End()
	if err != nil {
		return &StageError{Stage: "digest", Err: err}
	}

	// Step 5: deliver
	_, span = p.tracer.Start(ctx, "pipeline.deliver")
	path, err := p.opts.Deliverer.Deliver(html, runDate)
	span.End()
	if err != nil {
		return &StageError{Stage: "deliver", Err: err}
	}
	if path == "" {
		// Already delivered today; leave item states alone.
		return nil
	}

	var publishedIDs []int64
	for _, cluster := range clusters {
		for _, item := range cluster.AllItems {
			publishedIDs = append(publishedIDs, item.ID)
		}
	}
	if err := p.opts.Store.MarkPublished(publishedIDs); err != nil {
		return &StageError{Stage: "deliver", Err: err}
	}
	p.opts.OpenBrowser(path)
	return nil
}

// rankAndSelect scores, clusters, and selects today's enriched items,
// persisting the derived fields as it goes.
func (p *Pipeline) rankAndSelect(runDate string) ([]ranking.ClusterSelection, int, error) {
	items, err := p.opts.Store.EnrichedItems(runDate)
	if err != nil {
		return nil, 0, fmt.Errorf("load enriched items: %w", err)
	}
	if len(items) == 0 {
		log.Printf("pipeline: no enriched items to rank")
		return nil, 0, nil
	}

	trustLookup := config.TrustLookup(p.opts.Sources)
	now := p.opts.Now().UTC()
	for i := range items {
		items[i].RelevanceScore = ranking.Score(items[i], p.opts.Ranking.Weights, p.opts.Ranking.Recency, trustLookup, now)
	}

	items = ranking.Cluster(items, p.opts.Ranking.Selection.MinClusterSize)

	for _, item := range items {
		if err := p.opts.Store.UpdateRanking(item.ID, item.RelevanceScore, item.ClusterID, item.ClusterTopic, item.NoveltyFlag); err != nil {
			return nil, 0, fmt.Errorf("persist ranking for item %d: %w", item.ID, err)
		}
	}

	clusters := ranking.Select(items, p.opts.Ranking.Selection.TargetDigestSize, p.opts.Ranking.Selection.MaxItemsPerLane)
	selected := 0
	for _, c := range clusters {
		selected += len(c.AllItems)
	}
	return clusters, selected, nil
}
