package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AppPort       string
	AppMode       string
	LogMode       string
	DBHost        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBPort        string
	CatalogDSN    string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	SearchIndexName      string
	SearchDocPrefix      string
	SearchLanguage       string
	SearchPrimaryTimeout time.Duration

	QueuePollInterval time.Duration
	QueueConcurrency  map[string]int

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Endpoint  string

	JaegerEndpoint string

	DefaultWeights map[string]float64
}

// fileOverlay is the optional YAML file pointed to by CONFIG_FILE. Only the
// settings that are awkward to express as flat env vars live there.
type fileOverlay struct {
	Queues struct {
		Concurrency map[string]int `yaml:"concurrency"`
	} `yaml:"queues"`
	Search struct {
		DefaultWeights map[string]float64 `yaml:"defaultWeights"`
	} `yaml:"search"`
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		AppPort:       getEnv("APP_PORT", "8080"),
		AppMode:       getEnv("APP_MODE", "debug"),
		LogMode:       getEnv("LOG_MODE", "development"),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBUser:        getEnv("DB_USER", "postgres"),
		DBPassword:    getEnv("DB_PASSWORD", "postgres"),
		DBName:        getEnv("DB_NAME", "catalog"),
		DBPort:        getEnv("DB_PORT", "5432"),
		CatalogDSN:    getEnv("CATALOG_DSN", ""),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		SearchIndexName:      getEnv("SEARCH_INDEX_NAME", "products-idx"),
		SearchDocPrefix:      getEnv("SEARCH_DOC_PREFIX", "product:"),
		SearchLanguage:       getEnv("SEARCH_LANGUAGE", "english"),
		SearchPrimaryTimeout: getEnvAsDuration("SEARCH_PRIMARY_TIMEOUT", 800*time.Millisecond),

		QueuePollInterval: getEnvAsDuration("QUEUE_POLL_INTERVAL", time.Second),
		QueueConcurrency:  map[string]int{},

		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "catalog.changes"),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "catalog-search-sync"),

		S3Region:    getEnv("S3_REGION", ""),
		S3Bucket:    getEnv("S3_BUCKET", ""),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3Endpoint:  getEnv("S3_ENDPOINT", ""),

		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			log.Printf("Ignoring config file %s: %v", path, err)
		}
	}
	return cfg
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var overlay fileOverlay
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return err
	}
	for name, n := range overlay.Queues.Concurrency {
		c.QueueConcurrency[name] = n
	}
	if len(overlay.Search.DefaultWeights) > 0 {
		c.DefaultWeights = overlay.Search.DefaultWeights
	}
	return nil
}

// DSN is the connection string of the owned database.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// CatalogConnString falls back to the owned database when the catalog read
// model shares it.
func (c *Config) CatalogConnString() string {
	if c.CatalogDSN != "" {
		return c.CatalogDSN
	}
	return c.DSN()
}

// ConcurrencyFor returns the number of worker slots for a queue.
func (c *Config) ConcurrencyFor(queueName string) int {
	if n, ok := c.QueueConcurrency[queueName]; ok && n > 0 {
		return n
	}
	return getEnvAsInt("QUEUE_CONCURRENCY", 4)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
