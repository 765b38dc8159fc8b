package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/joelkehle/brief/internal/ranking"
)

const (
	defaultSourcesFile  = "sources.yaml"
	defaultDBName       = "brief.db"
	defaultMaxAgeDays   = 7
	defaultOutputPrefix = "brief"

	dbNameEnv    = "BRIEF_DB_NAME"
	outputDirEnv = "BRIEF_OUTPUT_DIR"
	modelEnv     = "BRIEF_MODEL"
)

// Profile is one digest configuration: which sources file to use, where the
// database and output live, and how the lanes are presented to the model and
// the reader. Profiles live in <configDir>/profiles/<name>.yaml; a
// <name>.local.yaml next to it is merged on top so private settings (tool
// policies, etc.) can stay out of version control.
type Profile struct {
	Name         string                 `yaml:"name"`
	SourcesFile  string                 `yaml:"sources_file"`
	DBName       string                 `yaml:"db_name"`
	MaxAgeDays   int                    `yaml:"max_age_days"`
	OutputDir    string                 `yaml:"output_dir"`
	OutputPrefix string                 `yaml:"output_prefix"`
	Model        string                 `yaml:"model"`
	Taxonomy     string                 `yaml:"taxonomy"`
	Lanes        map[string]LaneDisplay `yaml:"lanes"`
	AllowedTools []string               `yaml:"allowed_tools"`
	BlockedTools []string               `yaml:"blocked_tools"`
}

// LaneDisplay is how a lane is named and described, both in the model
// prompts and in the rendered digest.
type LaneDisplay struct {
	DisplayName string `yaml:"display_name"`
	Description string `yaml:"description"`
}

// Source is one registry entry from sources.yaml.
type Source struct {
	Slug        string   `yaml:"slug"`
	Name        string   `yaml:"name"`
	Enabled     bool     `yaml:"enabled"`
	FetchMethod string   `yaml:"fetch_method"`
	FetchURL    string   `yaml:"fetch_url"`
	ContentType string   `yaml:"content_type"`
	TrustWeight *float64 `yaml:"trust_weight"`
	Domains     []string `yaml:"domains"`
}

// Trust returns the source's trust weight, defaulting to the neutral 0.5
// when the registry omits it.
func (s Source) Trust() float64 {
	if s.TrustWeight == nil {
		return 0.5
	}
	return *s.TrustWeight
}

// Ranking mirrors ranking_weights.yaml: factor weights, recency decay and
// selection limits.
type Ranking struct {
	Weights   ranking.Weights       `yaml:"weights"`
	Recency   ranking.RecencyConfig `yaml:"recency"`
	Selection Selection             `yaml:"selection"`
}

// Selection bounds how many items the digest carries.
type Selection struct {
	TargetDigestSize int `yaml:"target_digest_size"`
	MaxItemsPerLane  int `yaml:"max_items_per_lane"`
	MinClusterSize   int `yaml:"min_cluster_size"`
}

// LoadProfile reads <configDir>/profiles/<name>.yaml, merges the optional
// <name>.local.yaml on top, fills defaults and applies environment
// overrides.
func LoadProfile(configDir, name string) (Profile, error) {
	path := filepath.Join(configDir, "profiles", name+".yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("profile %q: %w", name, err)
	}
	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("profile %q: %w", name, err)
	}

	localPath := filepath.Join(configDir, "profiles", name+".local.yaml")
	if localRaw, err := os.ReadFile(localPath); err == nil {
		var local Profile
		if err := yaml.Unmarshal(localRaw, &local); err != nil {
			return Profile{}, fmt.Errorf("profile %q local overrides: %w", name, err)
		}
		p = mergeProfile(p, local)
	}

	p.fillDefaults()
	p.applyEnvOverrides()
	return p, nil
}

func (p *Profile) fillDefaults() {
	if p.Name == "" {
		p.Name = "Brief"
	}
	if p.SourcesFile == "" {
		p.SourcesFile = defaultSourcesFile
	}
	if p.DBName == "" {
		p.DBName = defaultDBName
	}
	if p.MaxAgeDays <= 0 {
		p.MaxAgeDays = defaultMaxAgeDays
	}
	if p.OutputDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		p.OutputDir = filepath.Join(home, "Briefs")
	}
	if p.OutputPrefix == "" {
		p.OutputPrefix = defaultOutputPrefix
	}
}

func (p *Profile) applyEnvOverrides() {
	if v := os.Getenv(dbNameEnv); v != "" {
		p.DBName = v
	}
	if v := os.Getenv(outputDirEnv); v != "" {
		p.OutputDir = v
	}
	if v := os.Getenv(modelEnv); v != "" {
		p.Model = v
	}
}

func mergeProfile(base, override Profile) Profile {
	if override.Name != "" {
		base.Name = override.Name
	}
	if override.SourcesFile != "" {
		base.SourcesFile = override.SourcesFile
	}
	if override.DBName != "" {
		base.DBName = override.DBName
	}
	if override.MaxAgeDays > 0 {
		base.MaxAgeDays = override.MaxAgeDays
	}
	if override.OutputDir != "" {
		base.OutputDir = override.OutputDir
	}
	if override.OutputPrefix != "" {
		base.OutputPrefix = override.OutputPrefix
	}
	if override.Model != "" {
		base.Model = override.Model
	}
	if override.Taxonomy != "" {
		base.Taxonomy = override.Taxonomy
	}
	if len(override.Lanes) > 0 {
		base.Lanes = override.Lanes
	}
	if len(override.AllowedTools) > 0 {
		base.AllowedTools = override.AllowedTools
	}
	if len(override.BlockedTools) > 0 {
		base.BlockedTools = override.BlockedTools
	}
	return base
}

// LoadSources reads the source registry named by the profile. The file
// carries a top-level "sources" list.
func LoadSources(configDir string, p Profile) ([]Source, error) {
	path := filepath.Join(configDir, p.SourcesFile)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sources %q: %w", p.SourcesFile, err)
	}
	var doc struct {
		Sources []Source `yaml:"sources"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("sources %q: %w", p.SourcesFile, err)
	}
	return doc.Sources, nil
}

// LoadRanking reads <configDir>/ranking_weights.yaml, filling any omitted
// section with the shipped defaults.
func LoadRanking(configDir string) (Ranking, error) {
	r := DefaultRanking()
	path := filepath.Join(configDir, "ranking_weights.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return Ranking{}, fmt.Errorf("ranking weights: %w", err)
	}
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return Ranking{}, fmt.Errorf("ranking weights: %w", err)
	}
	if r.Recency.HalfLifeHours <= 0 {
		r.Recency.HalfLifeHours = DefaultRanking().Recency.HalfLifeHours
	}
	if r.Selection.TargetDigestSize <= 0 {
		r.Selection.TargetDigestSize = DefaultRanking().Selection.TargetDigestSize
	}
	if r.Selection.MaxItemsPerLane <= 0 {
		r.Selection.MaxItemsPerLane = DefaultRanking().Selection.MaxItemsPerLane
	}
	if r.Selection.MinClusterSize <= 0 {
		r.Selection.MinClusterSize = DefaultRanking().Selection.MinClusterSize
	}
	return r, nil
}

// DefaultRanking is the shipped ranking configuration.
func DefaultRanking() Ranking {
	return Ranking{
		Weights: ranking.Weights{
			Recency:      0.3,
			SourceTrust:  0.2,
			LaneAffinity: 0.3,
			Popularity:   0.1,
			Novelty:      0.1,
		},
		Recency:   ranking.RecencyConfig{HalfLifeHours: 48},
		Selection: Selection{TargetDigestSize: 20, MaxItemsPerLane: 3, MinClusterSize: 3},
	}
}

// TrustLookup builds the per-slug trust table the scorer consumes.
func TrustLookup(sources []Source) ranking.TrustLookup {
	lookup := make(ranking.TrustLookup, len(sources))
	for _, s := range sources {
		lookup[s.Slug] = s.Trust()
	}
	return lookup
}
