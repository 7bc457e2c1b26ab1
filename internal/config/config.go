package config

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Host                string        `env:"HOST,default=0.0.0.0"`
	Port                int           `env:"PORT,default=8080" validate:"gt=0,lt=65536"`
	LogLevel            string        `env:"LOG_LEVEL,default=info" validate:"oneof=trace debug info warn error"`
	LogJSON             bool          `env:"LOG_JSON,default=false"`
	Store               string        `env:"STORE,default=badger" validate:"oneof=badger memory"`
	BadgerPath          string        `env:"BADGER_PATH,default=./data"`
	StaticDir           string        `env:"STATIC_DIR,default=./static"`
	HistoryDefaultLimit int           `env:"HISTORY_DEFAULT_LIMIT,default=50" validate:"gt=0"`
	HistoryMaxLimit     int           `env:"HISTORY_MAX_LIMIT,default=200" validate:"gtefield=HistoryDefaultLimit"`
	SendBufferSize      int           `env:"SEND_BUFFER_SIZE,default=64" validate:"gt=0"`
	EventRate           float64       `env:"EVENT_RATE,default=20" validate:"gt=0"`
	EventBurst          int           `env:"EVENT_BURST,default=40" validate:"gt=0"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT,default=5s"`
	AllowedOrigins      string        `env:"ALLOWED_ORIGINS"`
}

// Load reads an optional .env file, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := validator.New().Struct(config); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Origins returns the allowed websocket origins. Empty means any origin.
func (c Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
