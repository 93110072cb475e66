package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	// Postgres note store and pgvector index. When empty, the service
	// falls back to the JSON file store and the in-process index.
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// File-backed fallback paths
	NoteDBPath   string `envconfig:"NOTE_DB_PATH" default:"notes_db.json"`
	VectorDBPath string `envconfig:"VECTOR_DB_PATH" default:"vector_store.json"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`
	ChatModel     string `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`

	RerankAPIKey   string `envconfig:"RERANK_API_KEY"`
	RerankEndpoint string `envconfig:"RERANK_ENDPOINT" default:"https://dashscope.aliyuncs.com/api/v1/services/rerank/text-rerank/text-rerank"`
	RerankModel    string `envconfig:"RERANK_MODEL" default:"gte-rerank"`

	// Merge decision tuning
	MergeThreshold float64 `envconfig:"MERGE_THRESHOLD" default:"0.6"`
	RetrieveTopK   int     `envconfig:"RETRIEVE_TOP_K" default:"10"`

	// Ingestion worker pool
	QueueCapacity int           `envconfig:"QUEUE_CAPACITY" default:"64"`
	WorkerCount   int           `envconfig:"WORKER_COUNT" default:"1"`
	CallTimeout   time.Duration `envconfig:"CALL_TIMEOUT" default:"60s"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("AINOTE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasReranker() bool {
	return c.RerankAPIKey != ""
}
