package kgchat

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/brunobiangulo/kgchat/llm"
	"github.com/brunobiangulo/kgchat/match"
	"github.com/brunobiangulo/kgchat/resolve"
)

// Graph modes.
const (
	ModeRelation = "relation" // triples extracted from a corpus
	ModeQA       = "qa"       // question -> answer pairs from a dataset
)

// Config holds all configuration for a Bot.
type Config struct {
	// Name identifies the graph in the store. Defaults to the corpus or
	// dataset file name without extension.
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	Store      StoreConfig      `json:"store" yaml:"store" mapstructure:"store"`
	Corpus     CorpusConfig     `json:"corpus" yaml:"corpus" mapstructure:"corpus"`
	Graph      GraphConfig      `json:"graph" yaml:"graph" mapstructure:"graph"`
	Extraction ExtractionConfig `json:"extraction" yaml:"extraction" mapstructure:"extraction"`
	Matcher    MatcherConfig    `json:"matcher" yaml:"matcher" mapstructure:"matcher"`
	Synthesis  SynthesisConfig  `json:"synthesis" yaml:"synthesis" mapstructure:"synthesis"`
	Spelling   SpellingConfig   `json:"spelling" yaml:"spelling" mapstructure:"spelling"`

	// LLM providers. Chat serves the LLM clause matcher, synthesis and the
	// eval judge; Embedding serves the embedding matcher.
	Chat      llm.Config `json:"chat" yaml:"chat" mapstructure:"chat"`
	Embedding llm.Config `json:"embedding" yaml:"embedding" mapstructure:"embedding"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	// DBPath is the full path to the SQLite database file. If empty it is
	// derived from DBName and StorageDir.
	DBPath string `json:"db_path" yaml:"db_path" mapstructure:"db_path"`
	DBName string `json:"db_name" yaml:"db_name" mapstructure:"db_name"`
	// StorageDir is "home" (~/.kgchat/) or "local" (working directory).
	StorageDir string `json:"storage_dir" yaml:"storage_dir" mapstructure:"storage_dir"`
	// EmbeddingDim must match the embedding model.
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim" mapstructure:"embedding_dim"`
	// LogQueries records every answered question in the query log.
	LogQueries bool `json:"log_queries" yaml:"log_queries" mapstructure:"log_queries"`
}

// CorpusConfig locates the text a relation graph is built from.
type CorpusConfig struct {
	Path string `json:"path" yaml:"path" mapstructure:"path"`
	// Topic is fetched from Wikipedia when Path does not exist.
	Topic        string        `json:"topic" yaml:"topic" mapstructure:"topic"`
	WikipediaURL string        `json:"wikipedia_url" yaml:"wikipedia_url" mapstructure:"wikipedia_url"`
	FetchTimeout time.Duration `json:"fetch_timeout" yaml:"fetch_timeout" mapstructure:"fetch_timeout"`
}

// GraphConfig controls graph construction.
type GraphConfig struct {
	Mode           string `json:"mode" yaml:"mode" mapstructure:"mode"`
	DominantFilter bool   `json:"dominant_filter" yaml:"dominant_filter" mapstructure:"dominant_filter"`
	SynonymsPath   string `json:"synonyms_path" yaml:"synonyms_path" mapstructure:"synonyms_path"`
	QAPath         string `json:"qa_path" yaml:"qa_path" mapstructure:"qa_path"`
	// Rebuild ignores a saved graph and constructs it again.
	Rebuild bool `json:"rebuild" yaml:"rebuild" mapstructure:"rebuild"`
}

// ExtractionConfig selects the relation extraction components.
type ExtractionConfig struct {
	Analyzer      string `json:"analyzer" yaml:"analyzer" mapstructure:"analyzer"`                   // prose, plain
	ClauseMatcher string `json:"clause_matcher" yaml:"clause_matcher" mapstructure:"clause_matcher"` // pattern, llm
	Coreference   string `json:"coreference" yaml:"coreference" mapstructure:"coreference"`          // heuristic, aliases, none
	// Aliases maps surface forms to antecedents for the "aliases" resolver.
	Aliases map[string][]string `json:"aliases" yaml:"aliases" mapstructure:"aliases"`
}

// MatcherConfig selects and tunes the similarity matcher.
type MatcherConfig struct {
	Strategy string `json:"strategy" yaml:"strategy" mapstructure:"strategy"`
	// MinScore overrides the acceptance threshold. When unset, lexical
	// matching uses 0.5, embedding matching 0.5 on QA graphs and 0 otherwise.
	MinScore    *float64 `json:"min_score,omitempty" yaml:"min_score,omitempty" mapstructure:"min_score"`
	BatchSize   int      `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`
	Concurrency int      `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`
}

// SynthesisConfig controls sentence synthesis from triples.
type SynthesisConfig struct {
	Enabled    bool                     `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Generation resolve.GenerationConfig `json:"generation" yaml:"generation" mapstructure:"generation"`
}

// SpellingConfig controls query spelling correction against the graph
// vocabulary.
type SpellingConfig struct {
	Enabled     bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	MaxDistance int  `json:"max_distance" yaml:"max_distance" mapstructure:"max_distance"`
}

// DefaultConfig returns a Config with sensible defaults for local inference.
// Database is stored in ~/.kgchat/kgchat.db by default.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			DBName:       "kgchat",
			StorageDir:   "home",
			EmbeddingDim: 768,
			LogQueries:   true,
		},
		Corpus: CorpusConfig{
			Path:         "corpus/knowledge.txt",
			FetchTimeout: 30 * time.Second,
		},
		Graph: GraphConfig{
			Mode: ModeRelation,
		},
		Extraction: ExtractionConfig{
			Analyzer:      "prose",
			ClauseMatcher: "pattern",
			Coreference:   "heuristic",
		},
		Matcher: MatcherConfig{
			Strategy:    match.StrategyEmbedding,
			BatchSize:   64,
			Concurrency: 4,
		},
		Synthesis: SynthesisConfig{
			Enabled:    true,
			Generation: resolve.DefaultGenerationConfig(),
		},
		Spelling: SpellingConfig{
			MaxDistance: 2,
		},
		Chat: llm.Config{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
		},
		Embedding: llm.Config{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
	}
}

// Validate checks field values. Errors wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.Wrapf(ErrInvalidConfig, format, args...)
	}

	switch c.Graph.Mode {
	case ModeRelation:
		if c.Corpus.Path == "" {
			return invalid("corpus.path is required in %s mode", ModeRelation)
		}
	case ModeQA:
		if c.Graph.QAPath == "" {
			return invalid("graph.qa_path is required in %s mode", ModeQA)
		}
	default:
		return invalid("graph.mode must be %q or %q, got %q", ModeRelation, ModeQA, c.Graph.Mode)
	}

	switch c.Matcher.Strategy {
	case match.StrategyLexical:
	case match.StrategyEmbedding:
		if c.Embedding.Provider == "" {
			return invalid("embedding.provider is required by the %s matcher", match.StrategyEmbedding)
		}
	default:
		return invalid("matcher.strategy must be %q or %q, got %q",
			match.StrategyEmbedding, match.StrategyLexical, c.Matcher.Strategy)
	}
	if s := c.Matcher.MinScore; s != nil && (*s < -1 || *s > 1) {
		return invalid("matcher.min_score must be within [-1, 1], got %g", *s)
	}

	switch c.Extraction.Analyzer {
	case "prose", "plain":
	default:
		return invalid("extraction.analyzer must be \"prose\" or \"plain\", got %q", c.Extraction.Analyzer)
	}
	switch c.Extraction.ClauseMatcher {
	case "pattern":
		if c.Graph.Mode == ModeRelation && c.Extraction.Analyzer == "plain" {
			return invalid("extraction.clause_matcher \"pattern\" needs part-of-speech tags; use analyzer \"prose\"")
		}
	case "llm":
		if c.Chat.Provider == "" {
			return invalid("chat.provider is required by the llm clause matcher")
		}
	default:
		return invalid("extraction.clause_matcher must be \"pattern\" or \"llm\", got %q", c.Extraction.ClauseMatcher)
	}
	switch c.Extraction.Coreference {
	case "heuristic", "none", "":
	case "aliases":
		if len(c.Extraction.Aliases) == 0 {
			return invalid("extraction.aliases is empty")
		}
	default:
		return invalid("extraction.coreference must be \"heuristic\", \"aliases\" or \"none\", got %q", c.Extraction.Coreference)
	}

	if c.Synthesis.Enabled && c.Chat.Provider == "" {
		return invalid("chat.provider is required when synthesis is enabled")
	}
	if c.Synthesis.Generation.MaxNewTokens < 0 || c.Synthesis.Generation.NumBeams < 0 {
		return invalid("synthesis.generation values must not be negative")
	}
	if c.Spelling.MaxDistance < 0 {
		return invalid("spelling.max_distance must not be negative")
	}
	if c.Store.EmbeddingDim <= 0 {
		return invalid("store.embedding_dim must be positive")
	}
	return nil
}

// graphName returns Name, or the base name of the graph's source file.
func (c *Config) graphName() string {
	if c.Name != "" {
		return c.Name
	}
	src := c.Corpus.Path
	if c.Graph.Mode == ModeQA {
		src = c.Graph.QAPath
	}
	base := filepath.Base(src)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// minScore returns the acceptance threshold for the configured strategy and
// mode.
func (c *Config) minScore() float64 {
	if c.Matcher.MinScore != nil {
		return *c.Matcher.MinScore
	}
	if c.Matcher.Strategy == match.StrategyLexical || c.Graph.Mode == ModeQA {
		return match.DefaultLexicalMinScore
	}
	return 0
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.Store.DBPath != "" {
		return c.Store.DBPath
	}

	name := c.Store.DBName
	if name == "" {
		name = "kgchat"
	}

	switch c.Store.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		return filepath.Join(home, ".kgchat", name+".db")
	}
}

// SetDefaults registers DefaultConfig on v so that every key can be
// overridden from the environment.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("name", d.Name)

	v.SetDefault("store.db_path", d.Store.DBPath)
	v.SetDefault("store.db_name", d.Store.DBName)
	v.SetDefault("store.storage_dir", d.Store.StorageDir)
	v.SetDefault("store.embedding_dim", d.Store.EmbeddingDim)
	v.SetDefault("store.log_queries", d.Store.LogQueries)

	v.SetDefault("corpus.path", d.Corpus.Path)
	v.SetDefault("corpus.topic", d.Corpus.Topic)
	v.SetDefault("corpus.wikipedia_url", d.Corpus.WikipediaURL)
	v.SetDefault("corpus.fetch_timeout", d.Corpus.FetchTimeout)

	v.SetDefault("graph.mode", d.Graph.Mode)
	v.SetDefault("graph.dominant_filter", d.Graph.DominantFilter)
	v.SetDefault("graph.synonyms_path", d.Graph.SynonymsPath)
	v.SetDefault("graph.qa_path", d.Graph.QAPath)
	v.SetDefault("graph.rebuild", d.Graph.Rebuild)

	v.SetDefault("extraction.analyzer", d.Extraction.Analyzer)
	v.SetDefault("extraction.clause_matcher", d.Extraction.ClauseMatcher)
	v.SetDefault("extraction.coreference", d.Extraction.Coreference)

	v.SetDefault("matcher.strategy", d.Matcher.Strategy)
	v.SetDefault("matcher.batch_size", d.Matcher.BatchSize)
	v.SetDefault("matcher.concurrency", d.Matcher.Concurrency)

	v.SetDefault("synthesis.enabled", d.Synthesis.Enabled)
	v.SetDefault("synthesis.generation.do_sample", d.Synthesis.Generation.DoSample)
	v.SetDefault("synthesis.generation.num_beams", d.Synthesis.Generation.NumBeams)
	v.SetDefault("synthesis.generation.no_repeat_ngram_size", d.Synthesis.Generation.NoRepeatNgramSize)
	v.SetDefault("synthesis.generation.early_stopping", d.Synthesis.Generation.EarlyStopping)
	v.SetDefault("synthesis.generation.max_new_tokens", d.Synthesis.Generation.MaxNewTokens)

	v.SetDefault("spelling.enabled", d.Spelling.Enabled)
	v.SetDefault("spelling.max_distance", d.Spelling.MaxDistance)

	for prefix, l := range map[string]llm.Config{"chat": d.Chat, "embedding": d.Embedding} {
		v.SetDefault(prefix+".provider", l.Provider)
		v.SetDefault(prefix+".model", l.Model)
		v.SetDefault(prefix+".base_url", l.BaseURL)
		v.SetDefault(prefix+".api_key", l.APIKey)
		v.SetDefault(prefix+".timeout", l.Timeout)
		v.SetDefault(prefix+".max_retries", l.MaxRetries)
	}
}

// providerKeyEnv lists the well-known API key variables of hosted providers.
var providerKeyEnv = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
	"groq":       "GROQ_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"xai":        "XAI_API_KEY",
}

// applyProviderKey fills an empty APIKey from the provider's own variable.
func applyProviderKey(c *llm.Config) {
	if c.APIKey != "" {
		return
	}
	if name, ok := providerKeyEnv[c.Provider]; ok {
		c.APIKey = os.Getenv(name)
	}
}

// LoadConfig reads configuration into a Config. Sources, lowest precedence
// first: defaults, the config file at path (yaml, json or toml; skipped when
// path is empty), a .env file in the working directory, and KGCHAT_*
// environment variables (KGCHAT_MATCHER_STRATEGY sets matcher.strategy).
// An empty chat or embedding api_key falls back to the provider's usual
// variable, such as GROQ_API_KEY.
func LoadConfig(v *viper.Viper, path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, errors.Wrap(err, "loading .env")
	}

	v.SetEnvPrefix("KGCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	// min_score has no default, so AutomaticEnv alone never looks it up.
	// An unset value means "depends on strategy and mode".
	if err := v.BindEnv("matcher.min_score"); err != nil {
		return Config{}, errors.Wrap(err, "binding matcher.min_score")
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "reading config file %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "unmarshalling config")
	}
	applyProviderKey(&cfg.Chat)
	applyProviderKey(&cfg.Embedding)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
