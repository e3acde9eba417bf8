package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	Search    SearchConfig
	Files     FilesConfig
	R2        R2Config
	JWT       JWTConfig
	Gateway   GatewayConfig
	RateLimit RateLimitConfig
	Schemas   SchemasConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type StoreConfig struct {
	Driver          string // redis, postgres or memory
	Prefix          string
	DefaultPriority int
	DefaultAttempts int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	DSN string
}

type SearchConfig struct {
	Driver string // redis or memory
}

type FilesConfig struct {
	Root string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
}

type JWTConfig struct {
	Secret string
}

type GatewayConfig struct {
	Enabled bool
	Secret  string
}

type RateLimitConfig struct {
	CreatePerMin int
}

// SchemasConfig points at a JSON document mapping job types to payload rules.
type SchemasConfig struct {
	Path string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("POSTGRES_DSN")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("JWT_SECRET")
	readSecret("GATEWAY_SECRET")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("store.driver", "STORE_DRIVER")
	_ = viper.BindEnv("store.prefix", "STORE_PREFIX")
	_ = viper.BindEnv("store.default_priority", "STORE_DEFAULT_PRIORITY")
	_ = viper.BindEnv("store.default_attempts", "STORE_DEFAULT_ATTEMPTS")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("postgres.dsn", "POSTGRES_DSN")
	_ = viper.BindEnv("search.driver", "SEARCH_DRIVER")
	_ = viper.BindEnv("files.root", "FILES_ROOT")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = viper.BindEnv("gateway.secret", "GATEWAY_SECRET")
	_ = viper.BindEnv("ratelimit.create_per_min", "RATELIMIT_CREATE_PER_MIN")
	_ = viper.BindEnv("schemas.path", "SCHEMAS_PATH")

	// Defaults
	viper.SetDefault("server.port", "3000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("store.driver", "redis")
	viper.SetDefault("store.prefix", "q")
	viper.SetDefault("store.default_priority", 0)
	viper.SetDefault("store.default_attempts", 1)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("search.driver", "redis")
	viper.SetDefault("jwt.secret", "")
	viper.SetDefault("gateway.enabled", false)
	viper.SetDefault("gateway.secret", "")
	viper.SetDefault("ratelimit.create_per_min", 60)
	viper.SetDefault("schemas.path", "schemas.json")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Store: StoreConfig{
			Driver:          viper.GetString("store.driver"),
			Prefix:          viper.GetString("store.prefix"),
			DefaultPriority: viper.GetInt("store.default_priority"),
			DefaultAttempts: viper.GetInt("store.default_attempts"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Postgres: PostgresConfig{
			DSN: viper.GetString("postgres.dsn"),
		},
		Search: SearchConfig{
			Driver: viper.GetString("search.driver"),
		},
		Files: FilesConfig{
			Root: viper.GetString("files.root"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
			Secret:  viper.GetString("gateway.secret"),
		},
		RateLimit: RateLimitConfig{
			CreatePerMin: viper.GetInt("ratelimit.create_per_min"),
		},
		Schemas: SchemasConfig{
			Path: viper.GetString("schemas.path"),
		},
	}

	return cfg, nil
}
