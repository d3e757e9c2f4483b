package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:generate go run ../../cmd/schema/main.go schema.json

// Config holds the application configuration
type Config struct {
	Server struct {
		Listen  string        `yaml:"listen" json:"listen" jsonschema:"default=:8080,description=HTTP server listen address"`
		Timeout time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=HTTP server timeout"`
	} `yaml:"server" json:"server" jsonschema:"description=Server configuration"`

	Database struct {
		DSN             string `yaml:"dsn" json:"dsn" jsonschema:"default=file:digestscope.db?cache=shared&mode=rwc,description=Database connection string"`
		MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns" jsonschema:"default=10,description=Maximum number of open connections"`
		MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns" jsonschema:"default=5,description=Maximum number of idle connections"`
		ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime" jsonschema:"default=3600,description=Connection maximum lifetime in seconds"`
	} `yaml:"database" json:"database" jsonschema:"description=Database configuration"`

	Schedule struct {
		Interval      time.Duration `yaml:"interval" json:"interval" jsonschema:"default=6h,description=Digest cycle interval"`
		SourceTimeout time.Duration `yaml:"source_timeout" json:"source_timeout" jsonschema:"default=2m,description=Per-source collection timeout"`
		MaxWorkers    int           `yaml:"max_workers" json:"max_workers" jsonschema:"default=5,description=Maximum concurrent source collectors"`
	} `yaml:"schedule" json:"schedule" jsonschema:"description=Scheduler configuration"`

	Research ResearchConfig  `yaml:"research" json:"research" jsonschema:"description=Digest pool sizing and supplement policy"`
	Dedup    DedupConfig     `yaml:"dedup" json:"dedup" jsonschema:"description=Duplicate detection thresholds"`
	Scoring  ScoringConfig   `yaml:"scoring" json:"scoring" jsonschema:"description=Relevance scoring policy"`
	Select   SelectionConfig `yaml:"selection" json:"selection" jsonschema:"description=Diversity constraints for the shortlist"`
	Sources  SourcesConfig   `yaml:"sources" json:"sources" jsonschema:"description=Content sources"`
	LLM      LLMConfig       `yaml:"llm" json:"llm" jsonschema:"description=LLM configuration for digest synthesis"`

	Extraction ExtractionConfig `yaml:"extraction" json:"extraction" jsonschema:"description=Content extraction configuration"`

	Output struct {
		Dir string `yaml:"dir" json:"dir" jsonschema:"default=./digests,description=Directory for digest output files"`
	} `yaml:"output" json:"output" jsonschema:"description=Digest output configuration"`
}

// ResearchConfig controls pool sizing for one cycle
type ResearchConfig struct {
	TargetItems     int `yaml:"target_items" json:"target_items" jsonschema:"default=12,description=Preferred shortlist size"`
	MinItems        int `yaml:"min_items" json:"min_items" jsonschema:"default=3,description=Minimum new items to produce a digest"`
	MaxItems        int `yaml:"max_items" json:"max_items" jsonschema:"default=18,description=Hard cap on shortlist size"`
	LookbackDays    int `yaml:"lookback_days" json:"lookback_days" jsonschema:"default=7,description=History window for supplementing a thin pool"`
	SupplementLimit int `yaml:"supplement_limit" json:"supplement_limit" jsonschema:"default=20,description=Maximum recent items pulled in as supplement"`
}

// DedupConfig controls the duplicate classifier
type DedupConfig struct {
	TitleSimilarity float64 `yaml:"title_similarity" json:"title_similarity" jsonschema:"default=0.85,minimum=0,maximum=1,description=Normalized title similarity above which an item is a duplicate"`
}

// ScoringWeights is the split of the composite score between signals.
// Must sum to 1.0. The keyword-dominant default is a policy choice: content
// match outranks where an item came from or how fresh it is.
type ScoringWeights struct {
	Keyword    float64 `yaml:"keyword" json:"keyword" jsonschema:"default=0.30"`
	Source     float64 `yaml:"source" json:"source" jsonschema:"default=0.20"`
	Engagement float64 `yaml:"engagement" json:"engagement" jsonschema:"default=0.20"`
	Recency    float64 `yaml:"recency" json:"recency" jsonschema:"default=0.15"`
	Novelty    float64 `yaml:"novelty" json:"novelty" jsonschema:"default=0.15"`
}

// ScoringConfig is the full scoring policy, tunable without touching logic
type ScoringConfig struct {
	Weights           ScoringWeights           `yaml:"weights" json:"weights" jsonschema:"description=Signal weights, must sum to 1.0"`
	Keywords          []string                 `yaml:"keywords" json:"keywords" jsonschema:"description=High-value terms, informal and academic registers both"`
	KeywordSaturation int                      `yaml:"keyword_saturation" json:"keyword_saturation" jsonschema:"default=3,description=Matches at which the keyword score saturates"`
	SourceTiers       map[string]float64       `yaml:"source_tiers" json:"source_tiers" jsonschema:"description=Per-source-substring trust weight"`
	RecencyHalflife   map[string]time.Duration `yaml:"recency_halflife" json:"recency_halflife" jsonschema:"description=Per-category halflife for the recency decay"`
	DefaultHalflife   time.Duration            `yaml:"default_halflife" json:"default_halflife" jsonschema:"default=24h,description=Recency halflife for uncategorized items"`
	NoveltyThreshold  float64                  `yaml:"novelty_threshold" json:"novelty_threshold" jsonschema:"default=0.7,description=Similarity floor for the novelty penalty"`
}

// CategoryMinimum is a hard floor for one category, order in the list is the
// priority order when the pool is scarce
type CategoryMinimum struct {
	Category string `yaml:"category" json:"category"`
	Min      int    `yaml:"min" json:"min"`
}

// SelectionConfig holds the diversity constraints for shortlist assembly
type SelectionConfig struct {
	MaxPerSource     int               `yaml:"max_per_source" json:"max_per_source" jsonschema:"default=3,description=Cap on items from one source, 0 disables"`
	CategoryMinimums []CategoryMinimum `yaml:"category_minimums" json:"category_minimums" jsonschema:"description=Per-category floors in priority order"`
}

// FeedConfig describes one RSS/Atom feed
type FeedConfig struct {
	URL      string `yaml:"url" json:"url" jsonschema:"required"`
	Name     string `yaml:"name" json:"name"`
	Tier     int    `yaml:"tier" json:"tier" jsonschema:"default=2"`
	Category string `yaml:"category" json:"category"`
}

// HackerNewsConfig describes the Hacker News collector
type HackerNewsConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	Endpoints      []string `yaml:"endpoints" json:"endpoints" jsonschema:"description=Story lists to pull, e.g. topstories and beststories"`
	MaxItems       int      `yaml:"max_items" json:"max_items" jsonschema:"default=30"`
	FilterKeywords []string `yaml:"filter_keywords" json:"filter_keywords" jsonschema:"description=Keep only stories whose title matches one of these"`
	Category       string   `yaml:"category" json:"category" jsonschema:"default=news"`
}

// SourcesConfig lists all configured collectors
type SourcesConfig struct {
	Feeds      []FeedConfig     `yaml:"feeds" json:"feeds"`
	HackerNews HackerNewsConfig `yaml:"hackernews" json:"hackernews"`
}

// LLMConfig holds LLM configuration for digest synthesis
type LLMConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled" jsonschema:"default=false,description=Synthesize digests with an LLM"`
	Endpoint     string        `yaml:"endpoint" json:"endpoint" jsonschema:"description=OpenAI-compatible API endpoint"`
	APIKey       string        `yaml:"api_key" json:"api_key" jsonschema:"description=API key (can use environment variable)"`
	Model        string        `yaml:"model" json:"model" jsonschema:"description=Model name (e.g. gpt-4o-mini or llama3)"`
	Temperature  float64       `yaml:"temperature" json:"temperature" jsonschema:"default=0.3,description=Temperature for response generation"`
	MaxTokens    int           `yaml:"max_tokens" json:"max_tokens" jsonschema:"default=4000,description=Maximum tokens in response"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=300s,description=Request timeout"`
	SystemPrompt string        `yaml:"system_prompt" json:"system_prompt" jsonschema:"description=System prompt for the LLM (optional)"`
}

// ExtractionConfig holds content extraction settings
type ExtractionConfig struct {
	Enabled       bool          `yaml:"enabled" json:"enabled" jsonschema:"default=false,description=Fetch full content for items that arrive without body text"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=Extraction timeout per item"`
	UserAgent     string        `yaml:"user_agent" json:"user_agent" jsonschema:"default=Digestscope/1.0,description=User agent for HTTP requests"`
	MinTextLength int           `yaml:"min_text_length" json:"min_text_length" jsonschema:"default=100,description=Minimum text length to consider valid"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the built-in configuration, used when no file is given
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// GetServerConfig returns the HTTP server listen address and timeout
func (c *Config) GetServerConfig() (listen string, timeout time.Duration) {
	return c.Server.Listen, c.Server.Timeout
}

func (c *Config) setDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Server.Timeout == 0 {
		c.Server.Timeout = 30 * time.Second
	}

	if c.Database.DSN == "" {
		c.Database.DSN = "file:digestscope.db?cache=shared&mode=rwc&_txlock=immediate"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 3600
	}

	if c.Schedule.Interval == 0 {
		c.Schedule.Interval = 6 * time.Hour
	}
	if c.Schedule.SourceTimeout == 0 {
		c.Schedule.SourceTimeout = 2 * time.Minute
	}
	if c.Schedule.MaxWorkers == 0 {
		c.Schedule.MaxWorkers = 5
	}

	if c.Research.TargetItems == 0 {
		c.Research.TargetItems = 12
	}
	if c.Research.MinItems == 0 {
		c.Research.MinItems = 3
	}
	if c.Research.MaxItems == 0 {
		c.Research.MaxItems = 18
	}
	if c.Research.LookbackDays == 0 {
		c.Research.LookbackDays = 7
	}
	if c.Research.SupplementLimit == 0 {
		c.Research.SupplementLimit = 20
	}

	if c.Dedup.TitleSimilarity == 0 {
		c.Dedup.TitleSimilarity = 0.85
	}

	if c.Scoring.Weights == (ScoringWeights{}) {
		c.Scoring.Weights = ScoringWeights{Keyword: 0.30, Source: 0.20, Engagement: 0.20, Recency: 0.15, Novelty: 0.15}
	}
	if len(c.Scoring.Keywords) == 0 {
		c.Scoring.Keywords = defaultKeywords()
	}
	if c.Scoring.KeywordSaturation == 0 {
		c.Scoring.KeywordSaturation = 3
	}
	if len(c.Scoring.SourceTiers) == 0 {
		c.Scoring.SourceTiers = map[string]float64{
			"arxiv":      1.0,
			"anthropic":  1.0,
			"openai":     1.0,
			"deepmind":   1.0,
			"hackernews": 0.8,
			"rss":        0.7,
			"blog":       0.7,
		}
	}
	if len(c.Scoring.RecencyHalflife) == 0 {
		// reference material ages slowly, announcements do not
		c.Scoring.RecencyHalflife = map[string]time.Duration{
			"paper": 7 * 24 * time.Hour,
			"news":  24 * time.Hour,
		}
	}
	if c.Scoring.DefaultHalflife == 0 {
		c.Scoring.DefaultHalflife = 24 * time.Hour
	}
	if c.Scoring.NoveltyThreshold == 0 {
		c.Scoring.NoveltyThreshold = 0.7
	}

	if c.Select.MaxPerSource == 0 {
		c.Select.MaxPerSource = 3
	}

	if c.Sources.HackerNews.MaxItems == 0 {
		c.Sources.HackerNews.MaxItems = 30
	}
	if len(c.Sources.HackerNews.Endpoints) == 0 {
		c.Sources.HackerNews.Endpoints = []string{"topstories"}
	}
	if c.Sources.HackerNews.Category == "" {
		c.Sources.HackerNews.Category = "news"
	}

	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.3
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 4000
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 300 * time.Second
	}

	if c.Extraction.Timeout == 0 {
		c.Extraction.Timeout = 30 * time.Second
	}
	if c.Extraction.UserAgent == "" {
		c.Extraction.UserAgent = "Digestscope/1.0"
	}
	if c.Extraction.MinTextLength == 0 {
		c.Extraction.MinTextLength = 100
	}

	if c.Output.Dir == "" {
		c.Output.Dir = "./digests"
	}
}

// Validate rejects configurations the pipeline cannot run with
func (c *Config) Validate() error {
	w := c.Scoring.Weights
	sum := w.Keyword + w.Source + w.Engagement + w.Recency + w.Novelty
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("scoring weights must sum to 1.0, got %.4f", sum)
	}

	if c.Dedup.TitleSimilarity < 0 || c.Dedup.TitleSimilarity > 1 {
		return fmt.Errorf("dedup.title_similarity must be in [0,1], got %v", c.Dedup.TitleSimilarity)
	}

	if c.Research.MinItems > c.Research.TargetItems {
		return fmt.Errorf("research.min_items (%d) cannot exceed research.target_items (%d)",
			c.Research.MinItems, c.Research.TargetItems)
	}
	if c.Research.TargetItems > c.Research.MaxItems {
		return fmt.Errorf("research.target_items (%d) cannot exceed research.max_items (%d)",
			c.Research.TargetItems, c.Research.MaxItems)
	}

	for _, m := range c.Select.CategoryMinimums {
		if m.Category == "" {
			return fmt.Errorf("selection.category_minimums entry with empty category")
		}
		if m.Min < 0 {
			return fmt.Errorf("selection minimum for %q is negative", m.Category)
		}
	}

	if c.LLM.Enabled && c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required when llm is enabled")
	}

	return nil
}

// defaultKeywords covers both practitioner and academic phrasing, formal
// abstracts under-rank badly with an informal-only dictionary
func defaultKeywords() []string {
	return []string{
		"multi-agent", "agent", "rlhf", "alignment", "prompt engineering",
		"tool use", "autonomous", "framework", "production", "benchmark",
		"llm", "transformer", "in-context", "chain-of-thought",
		"large language model", "reinforcement learning", "human feedback",
		"neural network", "language model", "emergent", "fine-tuning",
		"instruction tuning", "retrieval-augmented",
	}
}
