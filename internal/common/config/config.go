// internal/common/config/config.go
package config

import (
	"fmt"

	"qa-autoresponder/internal/answering"
	"qa-autoresponder/internal/models"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Oracle        OracleConfig            `mapstructure:"oracle"`
	Answering     AnsweringConfig         `mapstructure:"answering"`
	Catalog       CatalogConfig           `mapstructure:"catalog"`
	Decisions     DecisionsConfig         `mapstructure:"decisions"`
	Marketplace   MarketplaceConfig       `mapstructure:"marketplace"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Observability ObservabilityConfig     `mapstructure:"observability"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	HTTPPort    int    `mapstructure:"http_port"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"` // single address shorthand
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	MaxJobsActive  int  `mapstructure:"max_jobs_active"`
	Timeout        int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries     int  `mapstructure:"max_retries"` // For error handling
	InlineDispatch bool `mapstructure:"inline_dispatch"`
}

// --- Pipeline Configuration ---

// OracleConfig selects and tunes the reasoning oracle provider.
type OracleConfig struct {
	Provider    string  `mapstructure:"provider"` // "http" or "gemini"
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Timeout     int     `mapstructure:"timeout"` // milliseconds, per call
	MaxRetries  int     `mapstructure:"max_retries"`
	BaseDelay   int     `mapstructure:"base_delay"` // milliseconds
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

type AnsweringConfig struct {
	Thresholds struct {
		Low    float64 `mapstructure:"low"`
		Review float64 `mapstructure:"review"`
	} `mapstructure:"thresholds"`
	Weights              models.Weights `mapstructure:"weights"`
	ShapeSaturationWords int            `mapstructure:"shape_saturation_words"`
	DegradedCeiling      float64        `mapstructure:"degraded_ceiling"`
	MaxAnswerChars       int            `mapstructure:"max_answer_chars"`
	Voter                struct {
		Count            int     `mapstructure:"count"`
		Bonus            float64 `mapstructure:"bonus"`
		MaxConfidence    float64 `mapstructure:"max_confidence"`
		AmbiguousBand    float64 `mapstructure:"ambiguous_band"`
		Strategy         string  `mapstructure:"strategy"`
		Parallel         *bool   `mapstructure:"parallel"`
		DraftForCritical *bool   `mapstructure:"draft_for_critical"`
	} `mapstructure:"voter"`
	CriticalTopics       map[string][]string `mapstructure:"critical_topics"`
	ProductSearchPhrases []string            `mapstructure:"product_search_phrases"`
	ComparisonPhrases    []string            `mapstructure:"comparison_phrases"`
	Parallelism          int                 `mapstructure:"parallelism"`
}

// Settings builds the immutable pipeline settings. Unset fields keep their defaults and
// configured critical topics extend the built-in vocabulary.
func (a AnsweringConfig) Settings(oracle OracleConfig) answering.Settings {
	s := answering.DefaultSettings()

	if a.Thresholds.Low != 0 {
		s.Thresholds.Low = a.Thresholds.Low
	}
	if a.Thresholds.Review != 0 {
		s.Thresholds.Review = a.Thresholds.Review
	}
	if a.Weights.Sum() != 0 {
		s.Weights = a.Weights
	}
	if a.ShapeSaturationWords != 0 {
		s.ShapeSaturationWords = a.ShapeSaturationWords
	}
	if a.DegradedCeiling != 0 {
		s.DegradedCeiling = a.DegradedCeiling
	}
	if a.MaxAnswerChars != 0 {
		s.MaxAnswerChars = a.MaxAnswerChars
	}

	if a.Voter.Count != 0 {
		s.Voter.Count = a.Voter.Count
	}
	if a.Voter.Bonus != 0 {
		s.Voter.Bonus = a.Voter.Bonus
	}
	if a.Voter.MaxConfidence != 0 {
		s.Voter.MaxConfidence = a.Voter.MaxConfidence
	}
	if a.Voter.AmbiguousBand != 0 {
		s.Voter.AmbiguousBand = a.Voter.AmbiguousBand
	}
	if a.Voter.Strategy != "" {
		s.Voter.Strategy = a.Voter.Strategy
	}
	if a.Voter.Parallel != nil {
		s.Voter.Parallel = *a.Voter.Parallel
	}
	if a.Voter.DraftForCritical != nil {
		s.Voter.DraftForCritical = *a.Voter.DraftForCritical
	}

	if len(a.CriticalTopics) > 0 {
		extra := make(map[models.CriticalCategory][]string, len(a.CriticalTopics))
		for cat, phrases := range a.CriticalTopics {
			extra[models.CriticalCategory(cat)] = phrases
		}
		s.CriticalTopics = answering.MergeCriticalTopics(extra)
	}
	if len(a.ProductSearchPhrases) > 0 {
		s.ProductSearchPhrases = a.ProductSearchPhrases
	}
	if len(a.ComparisonPhrases) > 0 {
		s.ComparisonPhrases = a.ComparisonPhrases
	}

	if oracle.MaxTokens > 0 {
		s.Reason.MaxTokens = oracle.MaxTokens
	}
	if oracle.Temperature > 0 {
		s.Reason.Temperature = oracle.Temperature
	}
	return s
}

// CatalogConfig configures the product-context store chain.
type CatalogConfig struct {
	CuratedTable   string `mapstructure:"curated_table"`
	RawIndex       string `mapstructure:"raw_index"`
	RefreshEnabled bool   `mapstructure:"refresh_enabled"`
	ContextTTL     int    `mapstructure:"context_ttl"` // seconds
}

// DecisionsConfig configures the decided-question store.
type DecisionsConfig struct {
	Backend   string `mapstructure:"backend"` // "redis" or "memory"
	KeyPrefix string `mapstructure:"key_prefix"`
	TTL       int    `mapstructure:"ttl"` // seconds
}

// MarketplaceConfig holds the marketplace API used for answer delivery and product refresh.
type MarketplaceConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

// NotificationConfig holds settings for the notify-escalation worker.
type NotificationConfig struct {
	Email struct {
		Enabled   bool     `mapstructure:"enabled"`
		FromEmail string   `mapstructure:"from_email"`
		To        []string `mapstructure:"to"`
	} `mapstructure:"email"`
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type ObservabilityConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
}
