// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Default configuration values.
const (
	DefaultLogLevel                = "INFO"
	DefaultEmbeddingDimension      = 768
	DefaultBatchChunkSize          = 10
	DefaultEmbeddingTimeout        = 60 * time.Second
	DefaultGenerationTimeout       = 120 * time.Second
	DefaultMaxRetries              = 5
	DefaultInitialDelay            = 2 * time.Second
	DefaultBackoffFactor           = 2.0
	DefaultEmbedParallelism        = 4
	DefaultSimilarityExistingTheme = 0.60
	DefaultSimilarityMergeThemes   = 0.85
	DefaultThemeSplitVariance      = 0.40
	DefaultEmbeddingShiftRecompute = 0.30
	DefaultThemeUpdateDrift        = 0.20
	DefaultMinResponsesPerTheme    = 3
	DefaultKeywordContribution     = 0.01
	DefaultMinWordLength           = 3
	DefaultMaxStopwordsInPhrase    = 1
	DefaultMaxKeywordsPerResponse  = 10
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// Endpoint configures an AI backend endpoint.
type Endpoint struct {
	baseURL       string
	model         string
	apiKey        string
	timeout       time.Duration
	maxRetries    int
	initialDelay  time.Duration
	backoffFactor float64
}

// NewEndpoint creates a new Endpoint with defaults.
func NewEndpoint() Endpoint {
	return Endpoint{
		timeout:       DefaultEmbeddingTimeout,
		maxRetries:    DefaultMaxRetries,
		initialDelay:  DefaultInitialDelay,
		backoffFactor: DefaultBackoffFactor,
	}
}

// BaseURL returns the base URL for the endpoint.
func (e Endpoint) BaseURL() string { return e.baseURL }

// Model returns the model identifier.
func (e Endpoint) Model() string { return e.model }

// APIKey returns the API key.
func (e Endpoint) APIKey() string { return e.apiKey }

// Timeout returns the per-call deadline.
func (e Endpoint) Timeout() time.Duration { return e.timeout }

// MaxRetries returns the maximum retry count.
func (e Endpoint) MaxRetries() int { return e.maxRetries }

// InitialDelay returns the initial retry delay.
func (e Endpoint) InitialDelay() time.Duration { return e.initialDelay }

// BackoffFactor returns the retry backoff multiplier.
func (e Endpoint) BackoffFactor() float64 { return e.backoffFactor }

// IsConfigured returns true if the endpoint has required configuration.
func (e Endpoint) IsConfigured() bool {
	return e.model != ""
}

// EndpointOption is a functional option for Endpoint.
type EndpointOption func(*Endpoint)

// WithBaseURL sets the base URL.
func WithBaseURL(url string) EndpointOption {
	return func(e *Endpoint) { e.baseURL = url }
}

// WithModel sets the model.
func WithModel(model string) EndpointOption {
	return func(e *Endpoint) { e.model = model }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) EndpointOption {
	return func(e *Endpoint) { e.apiKey = key }
}

// WithTimeout sets the per-call deadline.
func WithTimeout(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.timeout = d }
}

// WithMaxRetries sets the maximum retry count.
func WithMaxRetries(n int) EndpointOption {
	return func(e *Endpoint) { e.maxRetries = n }
}

// WithInitialDelay sets the initial retry delay.
func WithInitialDelay(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.initialDelay = d }
}

// WithBackoffFactor sets the retry backoff multiplier.
func WithBackoffFactor(f float64) EndpointOption {
	return func(e *Endpoint) { e.backoffFactor = f }
}

// NewEndpointWithOptions creates an Endpoint with functional options.
func NewEndpointWithOptions(opts ...EndpointOption) Endpoint {
	e := NewEndpoint()
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// Thresholds holds the similarity and evolution thresholds consumed by the
// theme evolution engine. A single typed struct replaces the loosely-typed
// configuration dictionary of earlier iterations; Validate runs once at startup.
type Thresholds struct {
	similarityExistingTheme float64
	similarityMergeThemes   float64
	themeSplitVariance      float64
	embeddingShiftRecompute float64
	themeUpdateDrift        float64
	minResponsesPerTheme    int
	keywordContribution     float64
}

// NewThresholds creates Thresholds with defaults.
func NewThresholds() Thresholds {
	return Thresholds{
		similarityExistingTheme: DefaultSimilarityExistingTheme,
		similarityMergeThemes:   DefaultSimilarityMergeThemes,
		themeSplitVariance:      DefaultThemeSplitVariance,
		embeddingShiftRecompute: DefaultEmbeddingShiftRecompute,
		themeUpdateDrift:        DefaultThemeUpdateDrift,
		minResponsesPerTheme:    DefaultMinResponsesPerTheme,
		keywordContribution:     DefaultKeywordContribution,
	}
}

// SimilarityExistingTheme is the minimum similarity for matching a response
// to an existing theme.
func (t Thresholds) SimilarityExistingTheme() float64 { return t.similarityExistingTheme }

// SimilarityMergeThemes is the minimum pairwise similarity for a merge candidate.
func (t Thresholds) SimilarityMergeThemes() float64 { return t.similarityMergeThemes }

// ThemeSplitVariance is the minimum cluster-separation score to accept a split.
func (t Thresholds) ThemeSplitVariance() float64 { return t.themeSplitVariance }

// EmbeddingShiftRecompute is the minimum angular shift that replaces a theme's
// embedding after a description update.
func (t Thresholds) EmbeddingShiftRecompute() float64 { return t.embeddingShiftRecompute }

// ThemeUpdateDrift is the minimum drift that triggers a description update.
func (t Thresholds) ThemeUpdateDrift() float64 { return t.themeUpdateDrift }

// MinResponsesPerTheme is the minimum size of a split sub-cluster.
func (t Thresholds) MinResponsesPerTheme() int { return t.minResponsesPerTheme }

// KeywordContribution is the minimum contribution score for a highlighted keyword.
func (t Thresholds) KeywordContribution() float64 { return t.keywordContribution }

// ThresholdsOption is a functional option for Thresholds.
type ThresholdsOption func(*Thresholds)

// WithSimilarityExistingTheme sets the response-to-theme match threshold.
func WithSimilarityExistingTheme(v float64) ThresholdsOption {
	return func(t *Thresholds) { t.similarityExistingTheme = v }
}

// WithSimilarityMergeThemes sets the merge candidate threshold.
func WithSimilarityMergeThemes(v float64) ThresholdsOption {
	return func(t *Thresholds) { t.similarityMergeThemes = v }
}

// WithThemeSplitVariance sets the split acceptance threshold.
func WithThemeSplitVariance(v float64) ThresholdsOption {
	return func(t *Thresholds) { t.themeSplitVariance = v }
}

// WithEmbeddingShiftRecompute sets the embedding replacement threshold.
func WithEmbeddingShiftRecompute(v float64) ThresholdsOption {
	return func(t *Thresholds) { t.embeddingShiftRecompute = v }
}

// WithThemeUpdateDrift sets the drift threshold for description updates.
func WithThemeUpdateDrift(v float64) ThresholdsOption {
	return func(t *Thresholds) { t.themeUpdateDrift = v }
}

// WithMinResponsesPerTheme sets the minimum split sub-cluster size.
func WithMinResponsesPerTheme(n int) ThresholdsOption {
	return func(t *Thresholds) { t.minResponsesPerTheme = n }
}

// WithKeywordContribution sets the keyword contribution threshold.
func WithKeywordContribution(v float64) ThresholdsOption {
	return func(t *Thresholds) { t.keywordContribution = v }
}

// NewThresholdsWithOptions creates Thresholds with functional options.
func NewThresholdsWithOptions(opts ...ThresholdsOption) Thresholds {
	t := NewThresholds()
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// Ngrams configures candidate-phrase generation for keyword highlighting.
type Ngrams struct {
	useUnigrams         bool
	useBigrams          bool
	useTrigrams         bool
	minWordLength       int
	maxStopwordsInGram  int
	maxKeywordsPerReply int
}

// NewNgrams creates an Ngrams config with defaults.
func NewNgrams() Ngrams {
	return Ngrams{
		useUnigrams:         true,
		useBigrams:          true,
		useTrigrams:         true,
		minWordLength:       DefaultMinWordLength,
		maxStopwordsInGram:  DefaultMaxStopwordsInPhrase,
		maxKeywordsPerReply: DefaultMaxKeywordsPerResponse,
	}
}

// UseUnigrams returns whether single-word candidates are generated.
func (n Ngrams) UseUnigrams() bool { return n.useUnigrams }

// UseBigrams returns whether two-word candidates are generated.
func (n Ngrams) UseBigrams() bool { return n.useBigrams }

// UseTrigrams returns whether three-word candidates are generated.
func (n Ngrams) UseTrigrams() bool { return n.useTrigrams }

// MinWordLength returns the minimum unigram length.
func (n Ngrams) MinWordLength() int { return n.minWordLength }

// MaxStopwordsInGram returns the stop-word tolerance for trigrams.
func (n Ngrams) MaxStopwordsInGram() int { return n.maxStopwordsInGram }

// MaxKeywordsPerResponse returns the highlighted keyword cap per response.
func (n Ngrams) MaxKeywordsPerResponse() int { return n.maxKeywordsPerReply }

// NgramsOption is a functional option for Ngrams.
type NgramsOption func(*Ngrams)

// WithUnigrams toggles unigram candidates.
func WithUnigrams(enabled bool) NgramsOption {
	return func(n *Ngrams) { n.useUnigrams = enabled }
}

// WithBigrams toggles bigram candidates.
func WithBigrams(enabled bool) NgramsOption {
	return func(n *Ngrams) { n.useBigrams = enabled }
}

// WithTrigrams toggles trigram candidates.
func WithTrigrams(enabled bool) NgramsOption {
	return func(n *Ngrams) { n.useTrigrams = enabled }
}

// WithMinWordLength sets the minimum unigram length.
func WithMinWordLength(l int) NgramsOption {
	return func(n *Ngrams) { n.minWordLength = l }
}

// WithMaxStopwordsInGram sets the stop-word tolerance for trigrams.
func WithMaxStopwordsInGram(m int) NgramsOption {
	return func(n *Ngrams) { n.maxStopwordsInGram = m }
}

// WithMaxKeywordsPerResponse sets the highlighted keyword cap.
func WithMaxKeywordsPerResponse(m int) NgramsOption {
	return func(n *Ngrams) { n.maxKeywordsPerReply = m }
}

// NewNgramsWithOptions creates an Ngrams config with functional options.
func NewNgramsWithOptions(opts ...NgramsOption) Ngrams {
	n := NewNgrams()
	for _, opt := range opts {
		opt(&n)
	}
	return n
}

// AppConfig holds the main application configuration.
type AppConfig struct {
	dataDir            string
	dbURL              string
	logLevel           string
	logFormat          LogFormat
	embeddingEndpoint  Endpoint
	generationEndpoint Endpoint
	thresholds         Thresholds
	ngrams             Ngrams
	embeddingDimension int
	batchChunkSize     int
	embedParallelism   int
}

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".themeline"
	}
	return filepath.Join(home, ".themeline")
}

// NewAppConfig creates a new AppConfig with defaults.
func NewAppConfig() AppConfig {
	dataDir := DefaultDataDir()
	return AppConfig{
		dataDir:            dataDir,
		dbURL:              "sqlite:///" + filepath.Join(dataDir, "themeline.db"),
		logLevel:           DefaultLogLevel,
		logFormat:          LogFormatPretty,
		embeddingEndpoint:  NewEndpoint(),
		generationEndpoint: NewEndpointWithOptions(WithTimeout(DefaultGenerationTimeout)),
		thresholds:         NewThresholds(),
		ngrams:             NewNgrams(),
		embeddingDimension: DefaultEmbeddingDimension,
		batchChunkSize:     DefaultBatchChunkSize,
		embedParallelism:   DefaultEmbedParallelism,
	}
}

// DataDir returns the data directory path.
func (c AppConfig) DataDir() string { return c.dataDir }

// DBURL returns the database connection URL.
func (c AppConfig) DBURL() string { return c.dbURL }

// LogLevel returns the log level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// EmbeddingEndpoint returns the embedding backend config.
func (c AppConfig) EmbeddingEndpoint() Endpoint { return c.embeddingEndpoint }

// GenerationEndpoint returns the generation backend config.
func (c AppConfig) GenerationEndpoint() Endpoint { return c.generationEndpoint }

// Thresholds returns the evolution thresholds.
func (c AppConfig) Thresholds() Thresholds { return c.thresholds }

// Ngrams returns the keyword highlighting config.
func (c AppConfig) Ngrams() Ngrams { return c.ngrams }

// EmbeddingDimension returns the backend's embedding vector dimension.
// Used for the zero-vector degenerate case on empty text.
func (c AppConfig) EmbeddingDimension() int { return c.embeddingDimension }

// BatchChunkSize returns the embedding request chunk size.
func (c AppConfig) BatchChunkSize() int { return c.batchChunkSize }

// EmbedParallelism returns the bounded parallelism for per-text embedding
// within one chunk.
func (c AppConfig) EmbedParallelism() int { return c.embedParallelism }

// EnsureDataDir creates the data directory if it doesn't exist.
func (c AppConfig) EnsureDataDir() error {
	return os.MkdirAll(c.dataDir, 0o755)
}

// Validate checks all configuration values once at startup.
func (c AppConfig) Validate() error {
	inUnit := func(name string, v float64) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("config: %s %v outside [0,1]", name, v)
		}
		return nil
	}
	checks := []error{
		inUnit("similarity_existing_theme", c.thresholds.similarityExistingTheme),
		inUnit("similarity_merge_themes", c.thresholds.similarityMergeThemes),
		inUnit("theme_split_variance", c.thresholds.themeSplitVariance),
		inUnit("embedding_shift_recompute", c.thresholds.embeddingShiftRecompute),
		inUnit("theme_update_drift_threshold", c.thresholds.themeUpdateDrift),
		inUnit("keyword_contribution", c.thresholds.keywordContribution),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	if c.thresholds.minResponsesPerTheme < 1 {
		return fmt.Errorf("config: min_responses_per_theme must be >= 1, got %d", c.thresholds.minResponsesPerTheme)
	}
	if c.embeddingDimension < 1 {
		return fmt.Errorf("config: embedding_dimension must be >= 1, got %d", c.embeddingDimension)
	}
	if c.batchChunkSize < 1 {
		return fmt.Errorf("config: batch_chunk_size must be >= 1, got %d", c.batchChunkSize)
	}
	if c.embedParallelism < 1 {
		return fmt.Errorf("config: embed_parallelism must be >= 1, got %d", c.embedParallelism)
	}
	if c.dbURL == "" {
		return fmt.Errorf("config: db_url must not be empty")
	}
	return nil
}

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithDataDir sets the data directory.
func WithDataDir(dir string) AppConfigOption {
	return func(c *AppConfig) {
		c.dataDir = dir
		c.dbURL = "sqlite:///" + filepath.Join(dir, "themeline.db")
	}
}

// WithDBURL sets the database URL.
func WithDBURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.dbURL = url }
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) { c.logLevel = level }
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// WithEmbeddingEndpoint sets the embedding backend config.
func WithEmbeddingEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.embeddingEndpoint = e }
}

// WithGenerationEndpoint sets the generation backend config.
func WithGenerationEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.generationEndpoint = e }
}

// WithThresholds sets the evolution thresholds.
func WithThresholds(t Thresholds) AppConfigOption {
	return func(c *AppConfig) { c.thresholds = t }
}

// WithNgrams sets the keyword highlighting config.
func WithNgrams(n Ngrams) AppConfigOption {
	return func(c *AppConfig) { c.ngrams = n }
}

// WithEmbeddingDimension sets the embedding vector dimension.
func WithEmbeddingDimension(d int) AppConfigOption {
	return func(c *AppConfig) { c.embeddingDimension = d }
}

// WithBatchChunkSize sets the embedding request chunk size.
func WithBatchChunkSize(n int) AppConfigOption {
	return func(c *AppConfig) { c.batchChunkSize = n }
}

// WithEmbedParallelism sets the bounded per-chunk embedding parallelism.
func WithEmbedParallelism(n int) AppConfigOption {
	return func(c *AppConfig) { c.embedParallelism = n }
}

// NewAppConfigWithOptions creates an AppConfig with functional options.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	c := NewAppConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Apply returns a new AppConfig with the given options applied.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// LogAttrs returns slog attributes for logging the configuration.
// Sensitive values like API keys are omitted.
func (c AppConfig) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("data_dir", c.dataDir),
		slog.String("log_level", c.logLevel),
		slog.String("db_url", c.maskedDBURL()),
		slog.String("embedding_model", c.embeddingEndpoint.Model()),
		slog.String("generation_model", c.generationEndpoint.Model()),
		slog.Int("embedding_dimension", c.embeddingDimension),
		slog.Int("batch_chunk_size", c.batchChunkSize),
		slog.Float64("similarity_existing_theme", c.thresholds.similarityExistingTheme),
		slog.Float64("similarity_merge_themes", c.thresholds.similarityMergeThemes),
	}
}

func (c AppConfig) maskedDBURL() string {
	if c.dbURL == "" {
		return "(default)"
	}
	if len(c.dbURL) >= 7 && c.dbURL[:7] == "sqlite:" {
		return c.dbURL
	}
	return "postgres://***@***"
}
