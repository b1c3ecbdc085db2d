package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration.
// Field names map to environment variables with the THEMELINE_ prefix.
// Nested structs use underscore delimiter (e.g., THEMELINE_EMBEDDING_ENDPOINT_BASE_URL).
type EnvConfig struct {
	// DataDir is the data directory path.
	// Env: THEMELINE_DATA_DIR
	// Default: ~/.themeline
	DataDir string `envconfig:"DATA_DIR"`

	// DBURL is the database connection URL.
	// Env: THEMELINE_DB_URL
	// Default: sqlite:///{data_dir}/themeline.db
	DBURL string `envconfig:"DB_URL"`

	// LogLevel is the log verbosity level.
	// Env: THEMELINE_LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (pretty or json).
	// Env: THEMELINE_LOG_FORMAT (default: pretty)
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// EmbeddingEndpoint configures the embedding AI service.
	EmbeddingEndpoint EndpointEnv `envconfig:"EMBEDDING_ENDPOINT"`

	// GenerationEndpoint configures the text-generation AI service.
	GenerationEndpoint EndpointEnv `envconfig:"GENERATION_ENDPOINT"`

	// Thresholds configures theme evolution behavior.
	Thresholds ThresholdsEnv `envconfig:"THRESHOLD"`

	// Ngrams configures keyword highlighting.
	Ngrams NgramsEnv `envconfig:"NGRAM"`

	// EmbeddingDimension is the backend embedding vector dimension.
	// Env: THEMELINE_EMBEDDING_DIMENSION (default: 768)
	EmbeddingDimension int `envconfig:"EMBEDDING_DIMENSION" default:"768"`

	// BatchChunkSize is the embedding request chunk size.
	// Env: THEMELINE_BATCH_CHUNK_SIZE (default: 10)
	BatchChunkSize int `envconfig:"BATCH_CHUNK_SIZE" default:"10"`

	// EmbedParallelism bounds concurrent embedding calls within one chunk.
	// Env: THEMELINE_EMBED_PARALLELISM (default: 4)
	EmbedParallelism int `envconfig:"EMBED_PARALLELISM" default:"4"`
}

// EndpointEnv holds environment configuration for an AI endpoint.
type EndpointEnv struct {
	// BaseURL is the base URL for the endpoint.
	// Env: *_BASE_URL
	BaseURL string `envconfig:"BASE_URL"`

	// Model is the model identifier.
	// Env: *_MODEL
	Model string `envconfig:"MODEL"`

	// APIKey is the API key for authentication.
	// Env: *_API_KEY
	APIKey string `envconfig:"API_KEY"`

	// Timeout is the request timeout in seconds.
	// Env: *_TIMEOUT (default: 60)
	Timeout float64 `envconfig:"TIMEOUT" default:"60"`

	// MaxRetries is the maximum number of retries.
	// Env: *_MAX_RETRIES (default: 5)
	MaxRetries int `envconfig:"MAX_RETRIES" default:"5"`

	// InitialDelay is the initial retry delay in seconds.
	// Env: *_INITIAL_DELAY (default: 2.0)
	InitialDelay float64 `envconfig:"INITIAL_DELAY" default:"2.0"`

	// BackoffFactor is the retry backoff multiplier.
	// Env: *_BACKOFF_FACTOR (default: 2.0)
	BackoffFactor float64 `envconfig:"BACKOFF_FACTOR" default:"2.0"`
}

// ThresholdsEnv holds environment configuration for evolution thresholds.
type ThresholdsEnv struct {
	// SimilarityExistingTheme matches responses to existing themes.
	// Env: THEMELINE_THRESHOLD_SIMILARITY_EXISTING_THEME (default: 0.60)
	SimilarityExistingTheme float64 `envconfig:"SIMILARITY_EXISTING_THEME" default:"0.60"`

	// SimilarityMergeThemes flags theme pairs as merge candidates.
	// Env: THEMELINE_THRESHOLD_SIMILARITY_MERGE_THEMES (default: 0.85)
	SimilarityMergeThemes float64 `envconfig:"SIMILARITY_MERGE_THEMES" default:"0.85"`

	// ThemeSplitVariance accepts a split when cluster separation exceeds it.
	// Env: THEMELINE_THRESHOLD_THEME_SPLIT_VARIANCE (default: 0.40)
	ThemeSplitVariance float64 `envconfig:"THEME_SPLIT_VARIANCE" default:"0.40"`

	// EmbeddingShiftRecompute replaces a theme embedding when exceeded.
	// Env: THEMELINE_THRESHOLD_EMBEDDING_SHIFT_RECOMPUTE (default: 0.30)
	EmbeddingShiftRecompute float64 `envconfig:"EMBEDDING_SHIFT_RECOMPUTE" default:"0.30"`

	// ThemeUpdateDrift triggers a description refresh when exceeded.
	// Env: THEMELINE_THRESHOLD_THEME_UPDATE_DRIFT (default: 0.20)
	ThemeUpdateDrift float64 `envconfig:"THEME_UPDATE_DRIFT" default:"0.20"`

	// MinResponsesPerTheme is the minimum split sub-cluster size.
	// Env: THEMELINE_THRESHOLD_MIN_RESPONSES_PER_THEME (default: 3)
	MinResponsesPerTheme int `envconfig:"MIN_RESPONSES_PER_THEME" default:"3"`

	// KeywordContribution is the minimum highlighted keyword score.
	// Env: THEMELINE_THRESHOLD_KEYWORD_CONTRIBUTION (default: 0.01)
	KeywordContribution float64 `envconfig:"KEYWORD_CONTRIBUTION" default:"0.01"`
}

// NgramsEnv holds environment configuration for keyword highlighting.
type NgramsEnv struct {
	// UseUnigrams toggles single-word candidates.
	// Env: THEMELINE_NGRAM_USE_UNIGRAMS (default: true)
	UseUnigrams bool `envconfig:"USE_UNIGRAMS" default:"true"`

	// UseBigrams toggles two-word candidates.
	// Env: THEMELINE_NGRAM_USE_BIGRAMS (default: true)
	UseBigrams bool `envconfig:"USE_BIGRAMS" default:"true"`

	// UseTrigrams toggles three-word candidates.
	// Env: THEMELINE_NGRAM_USE_TRIGRAMS (default: true)
	UseTrigrams bool `envconfig:"USE_TRIGRAMS" default:"true"`

	// MinWordLength is the minimum unigram length.
	// Env: THEMELINE_NGRAM_MIN_WORD_LENGTH (default: 3)
	MinWordLength int `envconfig:"MIN_WORD_LENGTH" default:"3"`

	// MaxStopwordsInGram is the stop-word tolerance for trigrams.
	// Env: THEMELINE_NGRAM_MAX_STOPWORDS (default: 1)
	MaxStopwordsInGram int `envconfig:"MAX_STOPWORDS" default:"1"`

	// MaxKeywordsPerResponse caps highlighted keywords per response.
	// Env: THEMELINE_NGRAM_MAX_KEYWORDS_PER_RESPONSE (default: 10)
	MaxKeywordsPerResponse int `envconfig:"MAX_KEYWORDS_PER_RESPONSE" default:"10"`
}

// LoadFromEnv loads configuration from THEMELINE_-prefixed environment variables.
func LoadFromEnv() (EnvConfig, error) {
	return LoadFromEnvWithPrefix("THEMELINE")
}

// LoadFromEnvWithPrefix loads configuration with a custom prefix.
func LoadFromEnvWithPrefix(prefix string) (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// ToAppConfig converts EnvConfig to AppConfig.
func (e EnvConfig) ToAppConfig() AppConfig {
	cfg := NewAppConfig()

	if e.DataDir != "" {
		cfg = cfg.Apply(WithDataDir(e.DataDir))
	}
	if e.DBURL != "" {
		cfg = cfg.Apply(WithDBURL(e.DBURL))
	}
	if e.LogLevel != "" {
		cfg = cfg.Apply(WithLogLevel(e.LogLevel))
	}
	if e.LogFormat != "" {
		cfg = cfg.Apply(WithLogFormat(ParseLogFormat(e.LogFormat)))
	}

	if e.EmbeddingEndpoint.IsConfigured() {
		cfg = cfg.Apply(WithEmbeddingEndpoint(e.EmbeddingEndpoint.ToEndpoint()))
	}
	if e.GenerationEndpoint.IsConfigured() {
		cfg = cfg.Apply(WithGenerationEndpoint(e.GenerationEndpoint.ToEndpoint()))
	}

	cfg = cfg.Apply(WithThresholds(e.Thresholds.ToThresholds()))
	cfg = cfg.Apply(WithNgrams(e.Ngrams.ToNgrams()))

	if e.EmbeddingDimension > 0 {
		cfg = cfg.Apply(WithEmbeddingDimension(e.EmbeddingDimension))
	}
	if e.BatchChunkSize > 0 {
		cfg = cfg.Apply(WithBatchChunkSize(e.BatchChunkSize))
	}
	if e.EmbedParallelism > 0 {
		cfg = cfg.Apply(WithEmbedParallelism(e.EmbedParallelism))
	}

	return cfg
}

// IsConfigured returns true if the endpoint has a model configured.
func (e EndpointEnv) IsConfigured() bool {
	return e.Model != ""
}

// ToEndpoint converts EndpointEnv to Endpoint.
func (e EndpointEnv) ToEndpoint() Endpoint {
	opts := []EndpointOption{
		WithModel(e.Model),
		WithTimeout(time.Duration(e.Timeout * float64(time.Second))),
		WithMaxRetries(e.MaxRetries),
		WithInitialDelay(time.Duration(e.InitialDelay * float64(time.Second))),
		WithBackoffFactor(e.BackoffFactor),
	}

	if e.BaseURL != "" {
		opts = append(opts, WithBaseURL(e.BaseURL))
	}
	if e.APIKey != "" {
		opts = append(opts, WithAPIKey(e.APIKey))
	}

	return NewEndpointWithOptions(opts...)
}

// ToThresholds converts ThresholdsEnv to Thresholds.
func (t ThresholdsEnv) ToThresholds() Thresholds {
	return NewThresholdsWithOptions(
		WithSimilarityExistingTheme(t.SimilarityExistingTheme),
		WithSimilarityMergeThemes(t.SimilarityMergeThemes),
		WithThemeSplitVariance(t.ThemeSplitVariance),
		WithEmbeddingShiftRecompute(t.EmbeddingShiftRecompute),
		WithThemeUpdateDrift(t.ThemeUpdateDrift),
		WithMinResponsesPerTheme(t.MinResponsesPerTheme),
		WithKeywordContribution(t.KeywordContribution),
	)
}

// ToNgrams converts NgramsEnv to Ngrams.
func (n NgramsEnv) ToNgrams() Ngrams {
	return NewNgramsWithOptions(
		WithUnigrams(n.UseUnigrams),
		WithBigrams(n.UseBigrams),
		WithTrigrams(n.UseTrigrams),
		WithMinWordLength(n.MinWordLength),
		WithMaxStopwordsInGram(n.MaxStopwordsInGram),
		WithMaxKeywordsPerResponse(n.MaxKeywordsPerResponse),
	)
}

// ParseLogFormat parses a log format string.
func ParseLogFormat(s string) LogFormat {
	switch strings.ToLower(s) {
	case "json":
		return LogFormatJSON
	default:
		return LogFormatPretty
	}
}
