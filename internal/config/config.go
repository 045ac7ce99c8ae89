package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"8001" validate:"min=1000,max=65535"`

	AuthAPIURL         string `env:"AUTH_API_URL"         envDefault:"http://localhost:8000" validate:"url"`
	AuthTimeoutSeconds uint   `env:"AUTH_TIMEOUT_SECONDS" envDefault:"5"                     validate:"min=1,max=60"`

	// TOKEN_CACHE_TTL_SECONDS=0 disables the Redis-backed token cache.
	TokenCacheTTLSeconds uint   `env:"TOKEN_CACHE_TTL_SECONDS" envDefault:"0" validate:"max=3600"`
	RedisChatHost        string `env:"REDIS_CHAT_HOST" envDefault:"localhost"`
	RedisChatPort        uint16 `env:"REDIS_CHAT_PORT" envDefault:"6379"      validate:"min=1000,max=65535"`

	HistoryEnabled   bool   `env:"HISTORY_ENABLED"   envDefault:"false"`
	PostgresHost     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"chat_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"chat_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"chat_db"`

	MaxMessageSize int64 `env:"MAX_MESSAGE_SIZE" envDefault:"4096" validate:"min=64"`
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	// Parse config from environment variables
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	// Validate the config
	validate := validator.New()
	err = validate.Struct(cfg)
	if err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}
