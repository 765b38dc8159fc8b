package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadProfileDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "profiles", "technical.yaml"), `
name: Technical Brief
db_name: technical.db
max_age_days: 3
lanes:
  builders:
    display_name: Builders
    description: Hands-on engineering content
`)

	p, err := LoadProfile(dir, "technical")
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.Name != "Technical Brief" || p.DBName != "technical.db" || p.MaxAgeDays != 3 {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if p.SourcesFile != "sources.yaml" {
		t.Fatalf("sources_file default = %q", p.SourcesFile)
	}
	if p.OutputPrefix != "brief" {
		t.Fatalf("output_prefix default = %q", p.OutputPrefix)
	}
	if p.OutputDir == "" {
		t.Fatal("output_dir default should be set")
	}
	if p.Lanes["builders"].DisplayName != "Builders" {
		t.Fatalf("lanes = %+v", p.Lanes)
	}
}

func TestLoadProfileMergesLocalOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "profiles", "team.yaml"), `
name: Team Brief
db_name: team.db
allowed_tools: [claude-code]
`)
	writeFile(t, filepath.Join(dir, "profiles", "team.local.yaml"), `
db_name: team-local.db
blocked_tools: [copilot]
`)

	p, err := LoadProfile(dir, "team")
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.DBName != "team-local.db" {
		t.Fatalf("local override lost: db_name = %q", p.DBName)
	}
	if p.Name != "Team Brief" {
		t.Fatalf("base value clobbered: name = %q", p.Name)
	}
	if len(p.AllowedTools) != 1 || len(p.BlockedTools) != 1 {
		t.Fatalf("tool policy = %v / %v", p.AllowedTools, p.BlockedTools)
	}
}

func TestLoadProfileEnvOverridesWin(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "profiles", "technical.yaml"), "db_name: file.db\n")
	t.Setenv("BRIEF_DB_NAME", "env.db")
	t.Setenv("BRIEF_OUTPUT_DIR", "/tmp/briefs")

	p, err := LoadProfile(dir, "technical")
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.DBName != "env.db" {
		t.Fatalf("db_name = %q, want env override", p.DBName)
	}
	if p.OutputDir != "/tmp/briefs" {
		t.Fatalf("output_dir = %q, want env override", p.OutputDir)
	}
}

func TestLoadProfileMissingFile(t *testing.T) {
	if _, err := LoadProfile(t.TempDir(), "nope"); err == nil {
		t.Fatal("expected error for missing profile")
	}
}

func TestLoadSources(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "sources.yaml"), `
sources:
  - slug: simon-willison
    name: Simon Willison's Weblog
    enabled: true
    fetch_method: rss
    fetch_url: https://simonwillison.net/atom/everything/
    content_type: blog_post
    trust_weight: 0.9
    domains: [simonwillison.net]
  - slug: hacker-news
    name: Hacker News
    enabled: true
    fetch_method: api
    fetch_url: https://hacker-news.firebaseio.com/v0/
  - slug: disabled-source
    name: Disabled
    enabled: false
    fetch_method: rss
    fetch_url: https://example.com/feed
`)

	sources, err := LoadSources(dir, Profile{SourcesFile: "sources.yaml"})
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	if len(sources) != 3 {
		t.Fatalf("sources = %d, want 3", len(sources))
	}
	if sources[0].Trust() != 0.9 {
		t.Fatalf("explicit trust = %v", sources[0].Trust())
	}
	if sources[1].Trust() != 0.5 {
		t.Fatalf("omitted trust should default to 0.5, got %v", sources[1].Trust())
	}

	lookup := TrustLookup(sources)
	if lookup["simon-willison"] != 0.9 || lookup["hacker-news"] != 0.5 {
		t.Fatalf("trust lookup = %v", lookup)
	}
}

func TestLoadSourcesZeroTrustIsNotDefaulted(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "sources.yaml"), `
sources:
  - slug: untrusted
    name: Untrusted
    enabled: true
    fetch_method: rss
    fetch_url: https://example.com/feed
    trust_weight: 0.0
`)
	sources, err := LoadSources(dir, Profile{SourcesFile: "sources.yaml"})
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	if sources[0].Trust() != 0.0 {
		t.Fatalf("explicit zero trust = %v, want 0.0", sources[0].Trust())
	}
}

func TestLoadRankingDefaultsWhenMissing(t *testing.T) {
	r, err := LoadRanking(t.TempDir())
	if err != nil {
		t.Fatalf("LoadRanking: %v", err)
	}
	want := DefaultRanking()
	if r != want {
		t.Fatalf("defaults = %+v, want %+v", r, want)
	}
}

func TestLoadRankingFileValuesWithBackfill(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "ranking_weights.yaml"), `
weights:
  recency: 0.4
  source_trust: 0.2
  lane_affinity: 0.2
  popularity: 0.1
  novelty: 0.1
recency:
  half_life_hours: 24
selection:
  target_digest_size: 10
`)

	r, err := LoadRanking(dir)
	if err != nil {
		t.Fatalf("LoadRanking: %v", err)
	}
	if r.Weights.Recency != 0.4 || r.Recency.HalfLifeHours != 24 {
		t.Fatalf("file values lost: %+v", r)
	}
	if r.Selection.TargetDigestSize != 10 {
		t.Fatalf("target = %d", r.Selection.TargetDigestSize)
	}
	if r.Selection.MaxItemsPerLane != 3 || r.Selection.MinClusterSize != 3 {
		t.Fatalf("omitted selection fields must backfill: %+v", r.Selection)
	}
}
