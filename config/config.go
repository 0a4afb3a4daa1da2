package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env        string
	ServerPort int
	Database   DatabaseConfig
	JWT        JWTConfig
	Chain      ChainConfig
	MQ         MQConfig
	Storage    StorageConfig
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
	Secret   string
	TokenTTL time.Duration
}

// ChainConfig describes the blockchain node and the deployed contracts.
type ChainConfig struct {
	RPCURL          string
	ChainID         int64
	RolesController string
	CarbonRegistry  string
	Retirement      string

	// AdminKey is the hex-encoded private key used to sign role-grant
	// transactions server-side.
	AdminKey string

	// TxWait bounds how long a submitted transaction is awaited before
	// the wait is reported as a timeout.
	TxWait time.Duration
}

type MQConfig struct {
	// Backend selects the broker: "rabbitmq" or "pubsub". Empty disables
	// event publishing.
	Backend  string
	Channel  string
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

type StorageConfig struct {
	// Backend selects the object store: "minio" or "gcs".
	Backend string
	Minio   MinioConfig
	GCS     GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "registry"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "registry_db"),
		UseSSL:   getEnvBool("DB_USE_SSL", false),
	}

	chainConfig := ChainConfig{
		RPCURL:          getEnv("CHAIN_RPC_URL", "http://localhost:8545"),
		ChainID:         int64(getEnvInt("CHAIN_ID", 80002)),
		RolesController: getEnv("ROLES_CONTROLLER_ADDRESS", ""),
		CarbonRegistry:  getEnv("CARBON_REGISTRY_ADDRESS", ""),
		Retirement:      getEnv("RETIREMENT_ADDRESS", ""),
		AdminKey:        getEnv("CHAIN_ADMIN_KEY", ""),
		TxWait:          getEnvDuration("CHAIN_TX_WAIT", 2*time.Minute),
	}

	mqConfig := MQConfig{
		Backend: getEnv("MQ_BACKEND", ""),
		Channel: getEnv("MQ_CHANNEL", "registry.events"),
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
			QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH_COUNT", 8),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
	}

	storageConfig := StorageConfig{
		Backend: getEnv("STORAGE_BACKEND", "minio"),
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "proof-evidence"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
	}

	return Config{
		Env:        getEnv("ENV", "prod"),
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		Database:   dbConfig,
		JWT: JWTConfig{
			Secret:   getEnv("JWT_SECRET", ""),
			TokenTTL: getEnvDuration("JWT_TOKEN_TTL", 24*time.Hour),
		},
		Chain:   chainConfig,
		MQ:      mqConfig,
		Storage: storageConfig,
	}
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
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := time.ParseDuration(strings.TrimSpace(valueStr))
		if err == nil {
			return value
		}
	}
	return defaultValue
}
