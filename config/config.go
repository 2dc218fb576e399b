package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del watcher.
type Config struct {
	Backend   BackendConfig   `yaml:"backend"`
	Engine    EngineConfig    `yaml:"engine"`
	FillWatch FillWatchConfig `yaml:"fill_watch"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// BackendConfig contiene el base URL del run backend y la política de retries.
type BackendConfig struct {
	BaseURL        string `yaml:"base_url"`
	MaxRetries     int    `yaml:"max_retries"`     // reintentos tras el primer intento
	TimeoutSeconds int    `yaml:"timeout_seconds"` // timeout por request HTTP
}

// EngineConfig controla el poll de estado de runs.
type EngineConfig struct {
	PollIntervalMS int `yaml:"poll_interval_ms"`
}

// FillWatchConfig controla la confirmación de fills.
type FillWatchConfig struct {
	IntervalMS     int `yaml:"interval_ms"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// StorageConfig controla dónde se persiste el historial.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, ":memory:", o "" para desactivar
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// PollInterval devuelve el intervalo de poll como time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Engine.PollIntervalMS) * time.Millisecond
}

// FillInterval devuelve el intervalo de fill-watch como time.Duration.
func (c *Config) FillInterval() time.Duration {
	return time.Duration(c.FillWatch.IntervalMS) * time.Millisecond
}

// FillTimeout devuelve el deadline de fill-watch como time.Duration.
func (c *Config) FillTimeout() time.Duration {
	return time.Duration(c.FillWatch.TimeoutSeconds) * time.Second
}

// BackendTimeout devuelve el timeout HTTP como time.Duration.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RUNWATCH_BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = "http://localhost:8080"
	}
	if cfg.Backend.MaxRetries <= 0 {
		cfg.Backend.MaxRetries = 2
	}
	if cfg.Backend.TimeoutSeconds <= 0 {
		cfg.Backend.TimeoutSeconds = 10
	}
	if cfg.Engine.PollIntervalMS <= 0 {
		cfg.Engine.PollIntervalMS = 2000
	}
	if cfg.FillWatch.IntervalMS <= 0 {
		cfg.FillWatch.IntervalMS = 500
	}
	if cfg.FillWatch.TimeoutSeconds <= 0 {
		cfg.FillWatch.TimeoutSeconds = 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
