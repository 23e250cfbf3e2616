package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// generateConsumerID creates a unique consumer ID using hostname and PID.
func generateConsumerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "triage"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string
	Mode        string // api, worker, all

	// Database
	DatabaseURL string
	MongoDBURL  string
	MongoDBName string
	RedisURL    string

	// Neo4j
	Neo4jURL      string
	Neo4jUsername string
	Neo4jPassword string

	// Auth
	JWTSecret     string
	WebhookSecret string

	// OpenAI
	OpenAIAPIKey   string
	LLMModel       string
	EmbeddingModel string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMTimeoutSec  int

	// Chat-ops channel
	ChatOpsURL        string
	ChatOpsToken      string
	DraftChannel      string
	EscalationChannel string
	ReviewChannel     string

	// CRM
	CRMBaseURL string
	CRMAPIKey  string

	// Routing thresholds
	Tier1MinConfidence         float64
	Tier2MinConfidence         float64
	ConfidenceFloor            float64
	NegativeSentimentThreshold float64
	HighValueDealThreshold     float64

	// Drafts
	DraftTimeoutMin int

	// Idempotency cache
	ResultCacheTTLHour int

	// Worker
	ConsumerID         string
	ConsumerGroup      string
	WorkerMax          int
	WorkerQueueSize    int
	WorkerRatePerSec   int
	ConsumerMaxRetries int

	// CORS
	AllowedOrigins []string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		Mode:        getEnv("MODE", "all"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "triage"),
		RedisURL:    getEnv("REDIS_URL", ""),

		// Neo4j
		Neo4jURL:      getEnv("NEO4J_URL", ""),
		Neo4jUsername: getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPassword: getEnv("NEO4J_PASSWORD", ""),

		// Auth
		JWTSecret:     getEnv("JWT_SECRET", ""),
		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),

		// OpenAI
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 1024),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.0),
		LLMTimeoutSec:  getEnvInt("LLM_TIMEOUT_SEC", 30),

		// Chat-ops
		ChatOpsURL:        getEnv("CHATOPS_URL", ""),
		ChatOpsToken:      getEnv("CHATOPS_TOKEN", ""),
		DraftChannel:      getEnv("DRAFT_CHANNEL", "#reply-approvals"),
		EscalationChannel: getEnv("ESCALATION_CHANNEL", "#sales-escalations"),
		ReviewChannel:     getEnv("REVIEW_CHANNEL", "#manual-review"),

		// CRM
		CRMBaseURL: getEnv("CRM_BASE_URL", ""),
		CRMAPIKey:  getEnv("CRM_API_KEY", ""),

		// Routing
		Tier1MinConfidence:         getEnvFloat("TIER1_MIN_CONFIDENCE", 0.85),
		Tier2MinConfidence:         getEnvFloat("TIER2_MIN_CONFIDENCE", 0.50),
		ConfidenceFloor:            getEnvFloat("CONFIDENCE_FLOOR", 0.70),
		NegativeSentimentThreshold: getEnvFloat("NEGATIVE_SENTIMENT_THRESHOLD", -0.5),
		HighValueDealThreshold:     getEnvFloat("HIGH_VALUE_DEAL_THRESHOLD", 50000),

		// Drafts
		DraftTimeoutMin: getEnvInt("DRAFT_TIMEOUT_MIN", 30),

		// Cache
		ResultCacheTTLHour: getEnvInt("RESULT_CACHE_TTL_HOUR", 24),

		// Worker
		ConsumerID:         getEnv("CONSUMER_ID", generateConsumerID()),
		ConsumerGroup:      getEnv("CONSUMER_GROUP", "triage-workers"),
		WorkerMax:          getEnvInt("WORKER_MAX", 10),
		WorkerQueueSize:    getEnvInt("WORKER_QUEUE_SIZE", 1000),
		WorkerRatePerSec:   getEnvInt("WORKER_RATE_PER_SEC", 100),
		ConsumerMaxRetries: getEnvInt("CONSUMER_MAX_RETRIES", 3),

		// CORS
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.MongoDBURL == "" {
		return nil, fmt.Errorf("MONGODB_URL is required")
	}
	if cfg.Neo4jURL == "" {
		return nil, fmt.Errorf("NEO4J_URL is required")
	}
	return cfg, nil
}

// DraftTimeout returns the approval deadline as a duration.
func (c *Config) DraftTimeout() time.Duration {
	return time.Duration(c.DraftTimeoutMin) * time.Minute
}

// ResultCacheTTL returns the idempotency cache TTL as a duration.
func (c *Config) ResultCacheTTL() time.Duration {
	return time.Duration(c.ResultCacheTTLHour) * time.Hour
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
