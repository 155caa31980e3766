package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort int
	AppBaseURL string
	Database   DatabaseConfig
	JWT        JWTConfig
	MQ         MQConfig
	ReaperSpec string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

type JWTConfig struct {
	Secret     string
	SessionTTL time.Duration
	ResetTTL   time.Duration
	// ShortTTL backs a reserved short-lived token type; nothing issues it yet.
	ShortTTL time.Duration
}

type MQConfig struct {
	// Backend selects the broker: "rabbitmq", "pubsub" or "none".
	Backend  string
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "classtrack"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "classtrack_db"),
		UseSSL:   getEnvBool("DB_USE_SSL", false),
	}

	jwtConfig := JWTConfig{
		Secret:     getEnv("JWT_SECRET", ""),
		SessionTTL: getEnvDuration("SESSION_TOKEN_TTL", 7*24*time.Hour),
		ResetTTL:   getEnvDuration("RESET_TOKEN_TTL", 60*time.Minute),
		ShortTTL:   getEnvDuration("SHORT_TOKEN_TTL", 10*time.Minute),
	}

	mqConfig := MQConfig{
		Backend: getEnv("MQ_BACKEND", "none"),
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
			QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH_COUNT", 0),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
	}

	return Config{
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		AppBaseURL: getEnv("APP_BASE_URL", "http://localhost:5173"),
		Database:   dbConfig,
		JWT:        jwtConfig,
		MQ:         mqConfig,
		ReaperSpec: getEnv("RESET_REAPER_SPEC", "@every 10m"),
	}
}

// PostgresURL builds the connection string used by both the pool and the
// migration runner.
func (c Config) PostgresURL() string {
	sslmode := "disable"
	if c.Database.UseSSL {
		sslmode = "require"
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		User:   url.UserPassword(c.Database.User, c.Database.Password),
		Path:   c.Database.DBName,
	}
	q := u.Query()
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()
	return u.String()
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		return valueStr == "true" || valueStr == "1"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		if parsed, err := time.ParseDuration(valueStr); err == nil {
			return parsed
		}
	}
	return defaultValue
}
