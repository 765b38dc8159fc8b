package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joelkehle/brief/internal/config"
	"github.com/joelkehle/brief/internal/delivery"
	"github.com/joelkehle/brief/internal/digest"
	"github.com/joelkehle/brief/internal/enrich"
	"github.com/joelkehle/brief/internal/ingest"
	"github.com/joelkehle/brief/internal/pipeline"
	"github.com/joelkehle/brief/internal/store"
	"github.com/joelkehle/brief/internal/telemetry"
)

func main() {
	profileName := flag.String("profile", "technical", "Profile to run (or \"all\" for every known profile)")
	configDir := flag.String("config", "config", "Directory holding profiles/, sources.yaml, and ranking_weights.yaml")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdown, err := telemetry.Setup(ctx, "brief")
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	names := []string{*profileName}
	if *profileName == "all" {
		names = []string{"technical", "team"}
	}

	// With multiple profiles one failure must not block the rest.
	failures := 0
	for _, name := range names {
		if err := runProfile(ctx, *configDir, name); err != nil {
			log.Printf("profile %s: %v", name, err)
			failures++
		}
	}
	if failures == len(names) {
		log.Fatalf("all %d profile(s) failed", failures)
	}
}

func runProfile(ctx context.Context, configDir, name string) error {
	profile, err := config.LoadProfile(configDir, name)
	if err != nil {
		return err
	}
	sources, err := config.LoadSources(configDir, profile)
	if err != nil {
		return err
	}
	rankingCfg, err := config.LoadRanking(configDir)
	if err != nil {
		return err
	}

	st, err := store.Open(profile.DBName)
	if err != nil {
		return err
	}
	defer st.Close()

	enrichCaller, err := enrich.NewAnthropicCallerFromEnv(profile.Model, "")
	if err != nil {
		return err
	}
	digestCaller, err := digest.NewAnthropicCallerFromEnv(profile.Model)
	if err != nil {
		return err
	}

	p := pipeline.New(pipeline.Options{
		Store:     st,
		Ingester:  ingest.New(st),
		Enricher:  enrich.New(st, enrichCaller),
		Generator: digest.New(digestCaller),
		Deliverer: delivery.New(st, profile.OutputDir, profile.OutputPrefix),
		Profile:   profile,
		Sources:   sources,
		Ranking:   rankingCfg,
	})
	return p.Run(ctx)
}
