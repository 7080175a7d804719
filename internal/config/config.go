package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/agenthands/eventgraph/internal/errs"
)

type ServerConfig struct {
	Port string `toml:"port"`
	Env  string `toml:"env"`
}

type StorageConfig struct {
	Backend  string `toml:"backend"` // neo4j | memory
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
}

type VectorConfig struct {
	Enabled    bool   `toml:"enabled"`
	Path       string `toml:"path"` // empty keeps the collection in memory
	Collection string `toml:"collection"`
	Compress   bool   `toml:"compress"`
}

type LLMConfig struct {
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	EmbeddingModel string `toml:"embedding_model"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	// DescribePatterns asks the LLM for names and descriptions of learnt patterns.
	DescribePatterns bool `toml:"describe_patterns"`
	// RerankSearch re-orders semantic pattern search results with the LLM.
	RerankSearch bool `toml:"rerank_search"`
}

type EventConfig struct {
	CacheSize       int `toml:"cache_size"`
	CacheTTLSeconds int `toml:"cache_ttl_seconds"`
}

func (c EventConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

type PatternConfig struct {
	MinSupport             int     `toml:"min_support"`
	MinConfidence          float64 `toml:"min_confidence"`
	MaxPatternLength       int     `toml:"max_pattern_length"`
	SimilarityThreshold    float64 `toml:"similarity_threshold"`
	EnableTemporalPatterns bool    `toml:"enable_temporal_patterns"`
	EnableCausalPatterns   bool    `toml:"enable_causal_patterns"`
	EnableCooccurrence     bool    `toml:"enable_cooccurrence_patterns"`
	BatchWorkers           int     `toml:"batch_workers"`
	CacheSize              int     `toml:"cache_size"`
	CacheTTLSeconds        int     `toml:"cache_ttl_seconds"`
	CandidateFallbackLimit int     `toml:"candidate_fallback_limit"`
}

type MappingConfig struct {
	AutoMappingThreshold float64 `toml:"auto_mapping_threshold"`
	MaxMappingsPerEvent  int     `toml:"max_mappings_per_event"`
	EnableReverseMapping bool    `toml:"enable_reverse_mapping"`
	DecayFactor          float64 `toml:"mapping_decay_factor"`
	UpdateFrequency      int     `toml:"update_frequency"`
	SQLitePath           string  `toml:"sqlite_path"` // empty keeps mappings in memory only
}

type GraphConfig struct {
	MaxPathLength       int     `toml:"max_path_length"`
	MinCommunitySize    int     `toml:"min_community_size"`
	CentralityAlgorithm string  `toml:"centrality_algorithm"`
	ClusteringAlgorithm string  `toml:"clustering_algorithm"`
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	TemporalWindowDays  int     `toml:"temporal_window"`
	CacheTTLSeconds     int     `toml:"cache_ttl"`
	PredictionWindow    int     `toml:"prediction_window_days"`
}

type ArchitectureConfig struct {
	EnablePatternLearning      bool    `toml:"enable_pattern_learning"`
	PatternSimilarityThreshold float64 `toml:"pattern_similarity_threshold"`
	AutoMapping                bool    `toml:"auto_mapping"`
	MaxPatternDepth            int     `toml:"max_pattern_depth"`
	EnableReasoning            bool    `toml:"enable_reasoning"`
}

type SchedulerConfig struct {
	Enabled        bool   `toml:"enabled"`
	DecaySpec      string `toml:"decay_spec"`
	CacheSweepSpec string `toml:"cache_sweep_spec"`
}

type Config struct {
	Server       ServerConfig       `toml:"server"`
	Storage      StorageConfig      `toml:"storage"`
	Vector       VectorConfig       `toml:"vector"`
	LLM          LLMConfig          `toml:"llm"`
	Events       EventConfig        `toml:"events"`
	Patterns     PatternConfig      `toml:"patterns"`
	Mapping      MappingConfig      `toml:"mapping"`
	Graph        GraphConfig        `toml:"graph"`
	Architecture ArchitectureConfig `toml:"architecture"`
	Scheduler    SchedulerConfig    `toml:"scheduler"`
}

// Default returns the configuration used when no file overrides a value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", Env: "development"},
		Storage: StorageConfig{
			Backend: "neo4j",
			URI:     "bolt://localhost:7687",
			User:    "neo4j",
		},
		Vector: VectorConfig{Collection: "event_patterns"},
		Events: EventConfig{CacheSize: 1000, CacheTTLSeconds: 3600},
		Patterns: PatternConfig{
			MinSupport:             2,
			MinConfidence:          0.6,
			MaxPatternLength:       5,
			SimilarityThreshold:    0.8,
			EnableTemporalPatterns: true,
			EnableCausalPatterns:   true,
			EnableCooccurrence:     true,
			BatchWorkers:           4,
			CacheSize:              5000,
			CacheTTLSeconds:        3600,
			CandidateFallbackLimit: 100,
		},
		Mapping: MappingConfig{
			AutoMappingThreshold: 0.7,
			MaxMappingsPerEvent:  5,
			EnableReverseMapping: true,
			DecayFactor:          0.95,
			UpdateFrequency:      100,
		},
		Graph: GraphConfig{
			MaxPathLength:       6,
			MinCommunitySize:    3,
			CentralityAlgorithm: "betweenness",
			ClusteringAlgorithm: "louvain",
			SimilarityThreshold: 0.7,
			TemporalWindowDays:  30,
			CacheTTLSeconds:     3600,
			PredictionWindow:    7,
		},
		Architecture: ArchitectureConfig{
			EnablePatternLearning:      true,
			PatternSimilarityThreshold: 0.8,
			AutoMapping:                true,
			MaxPatternDepth:            3,
			EnableReasoning:            true,
		},
		Scheduler: SchedulerConfig{
			Enabled:        true,
			DecaySpec:      "@daily",
			CacheSweepSpec: "@every 5m",
		},
	}
}

// Load reads a TOML file on top of Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides selected values from environment variables.
func (c *Config) ApplyEnv() {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("PORT", &c.Server.Port)
	setString("APP_ENV", &c.Server.Env)
	setString("STORAGE_BACKEND", &c.Storage.Backend)
	setString("NEO4J_URI", &c.Storage.URI)
	setString("NEO4J_USER", &c.Storage.User)
	setString("NEO4J_PASSWORD", &c.Storage.Password)
	setString("NEO4J_DATABASE", &c.Storage.Database)
	setString("VECTOR_PATH", &c.Vector.Path)
	setString("LLM_PROVIDER", &c.LLM.Provider)
	setString("LLM_MODEL", &c.LLM.Model)
	setString("LLM_EMBEDDING_MODEL", &c.LLM.EmbeddingModel)
	setString("LLM_API_KEY", &c.LLM.APIKey)
	setString("LLM_BASE_URL", &c.LLM.BaseURL)
	setString("MAPPING_SQLITE_PATH", &c.Mapping.SQLitePath)

	if v := os.Getenv("VECTOR_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Vector.Enabled = b
		}
	}
}

// Validate reports the first out-of-range value.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "neo4j", "memory":
	default:
		return errs.Config(fmt.Sprintf("unsupported storage backend %q", c.Storage.Backend), nil)
	}
	if c.Events.CacheSize <= 0 || c.Patterns.CacheSize <= 0 {
		return errs.Config("cache sizes must be positive", nil)
	}
	if c.Patterns.MinSupport < 1 {
		return errs.Config("patterns.min_support must be at least 1", nil)
	}
	if c.Patterns.MaxPatternLength < 2 {
		return errs.Config("patterns.max_pattern_length must be at least 2", nil)
	}
	if c.Patterns.BatchWorkers < 1 {
		return errs.Config("patterns.batch_workers must be at least 1", nil)
	}
	if c.Mapping.DecayFactor <= 0 || c.Mapping.DecayFactor > 1 {
		return errs.Config("mapping.mapping_decay_factor must be in (0,1]", nil)
	}
	if c.Mapping.MaxMappingsPerEvent < 1 {
		return errs.Config("mapping.max_mappings_per_event must be at least 1", nil)
	}
	for name, v := range map[string]float64{
		"patterns.similarity_threshold":             c.Patterns.SimilarityThreshold,
		"mapping.auto_mapping_threshold":            c.Mapping.AutoMappingThreshold,
		"graph.similarity_threshold":                c.Graph.SimilarityThreshold,
		"architecture.pattern_similarity_threshold": c.Architecture.PatternSimilarityThreshold,
	} {
		if v < 0 || v > 1 {
			return errs.Config(fmt.Sprintf("%s must be in [0,1], got %v", name, v), nil)
		}
	}
	return nil
}
