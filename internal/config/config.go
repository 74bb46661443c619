package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all twin3 configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Registry  RegistryConfig  `yaml:"registry"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Matcher   MatcherConfig   `yaml:"matcher"`
	Update    UpdateConfig    `yaml:"update"`
	Evolution EvolutionConfig `yaml:"evolution"`
	Affinity  AffinityConfig  `yaml:"affinity"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RegistryConfig struct {
	Path string `yaml:"path"` // dimension metadata JSON
}

type OracleConfig struct {
	Provider       string  `yaml:"provider"` // "gemini", "heuristic"
	Model          string  `yaml:"model"`    // e.g. "gemini-2.5-flash"
	APIKey         string  `yaml:"api_key"`  // overridden by GOOGLE_API_KEY
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	Temperature    float64 `yaml:"temperature"`
}

type EmbeddingConfig struct {
	OllamaURL      string `yaml:"ollama_url"` // overridden by OLLAMA_URL
	Model          string `yaml:"model"`      // e.g. "nomic-embed-text"
	Dims           int    `yaml:"dims"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type MatcherConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MaxTags             int     `yaml:"max_tags"`
	// Mode selects the similarity function: "jaccard" (tag overlap) or
	// "embedding" (cosine over mean tag vectors, rescaled to [0,1]).
	Mode string `yaml:"mode"`
}

// UpdateConfig carries the smoothing/decay schedule for the score
// synthesizer. The alpha fields map onto the update-count phases; the
// anomaly guard overrides the phase alpha after the first merge.
type UpdateConfig struct {
	FirstAlpha        float64 `yaml:"first_alpha"`        // updateCount == 0
	EarlyAlpha        float64 `yaml:"early_alpha"`        // updateCount < EarlyUntil
	StandardAlpha     float64 `yaml:"standard_alpha"`     // updateCount < StandardUntil
	ConservativeAlpha float64 `yaml:"conservative_alpha"` // updateCount >= StandardUntil
	EarlyUntil        int     `yaml:"early_until"`
	StandardUntil     int     `yaml:"standard_until"`

	AnomalyDeltaThreshold int     `yaml:"anomaly_delta_threshold"`
	AnomalyAlpha          float64 `yaml:"anomaly_alpha"`

	DecayGraceDays int     `yaml:"decay_grace_days"`
	DecayLambda    float64 `yaml:"decay_lambda"`

	DefaultValue int `yaml:"default_value"` // value for never-updated dimensions
	HistoryCap   int `yaml:"history_cap"`
}

type EvolutionConfig struct {
	// SimilarityThreshold is the coverage gate: clusters whose best
	// dimension similarity reaches it are already represented and
	// yield no proposal.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	NoveltyThreshold    float64 `yaml:"novelty_threshold"`
	MinTagFrequency     int     `yaml:"min_tag_frequency"`
	ClusterEps          float64 `yaml:"cluster_eps"` // cosine distance
	ClusterMinSize      int     `yaml:"cluster_min_size"`
}

type AffinityConfig struct {
	TaxonomyPath  string  `yaml:"taxonomy_path"` // interest taxonomy JSON
	BottomUpAlpha float64 `yaml:"bottom_up_alpha"`
	TopDownBeta   float64 `yaml:"top_down_beta"`
	TopK          int     `yaml:"top_k"`
	LeafOnly      bool    `yaml:"leaf_only"`
}

type LoggingConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns a Config with the canonical defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37780,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Registry: RegistryConfig{
			Path: "metadata/dimensions.json",
		},
		Oracle: OracleConfig{
			Provider:       "gemini",
			Model:          "gemini-2.5-flash",
			TimeoutSeconds: 30,
			Temperature:    0.3,
		},
		Embedding: EmbeddingConfig{
			OllamaURL:      "http://localhost:11434",
			Model:          "nomic-embed-text",
			Dims:           768,
			TimeoutSeconds: 30,
		},
		Matcher: MatcherConfig{
			SimilarityThreshold: 0.1,
			MaxTags:             8,
			Mode:                "jaccard",
		},
		Update: UpdateConfig{
			FirstAlpha:            1.0,
			EarlyAlpha:            0.7,
			StandardAlpha:         0.3,
			ConservativeAlpha:     0.2,
			EarlyUntil:            3,
			StandardUntil:         10,
			AnomalyDeltaThreshold: 50,
			AnomalyAlpha:          0.15,
			DecayGraceDays:        30,
			DecayLambda:           0.1,
			DefaultValue:          0,
			HistoryCap:            20,
		},
		Evolution: EvolutionConfig{
			SimilarityThreshold: 0.6,
			NoveltyThreshold:    0.6,
			MinTagFrequency:     2,
			ClusterEps:          0.3,
			ClusterMinSize:      2,
		},
		Affinity: AffinityConfig{
			BottomUpAlpha: 0.5,
			TopDownBeta:   0.7,
			TopK:          10,
		},
		Logging: LoggingConfig{
			File:  "",
			Level: "info",
		},
	}
}

// Load reads a YAML config file over the defaults, then applies
// environment overrides for secrets and endpoints.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		c.Oracle.APIKey = key
	}
	if url := os.Getenv("OLLAMA_URL"); url != "" {
		c.Embedding.OllamaURL = url
	}
	if path := os.Getenv("TWIN3_DB"); path != "" {
		c.Database.Path = path
	}
	if path := os.Getenv("TWIN3_REGISTRY"); path != "" {
		c.Registry.Path = path
	}
	if path := os.Getenv("TWIN3_TAXONOMY"); path != "" {
		c.Affinity.TaxonomyPath = path
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
