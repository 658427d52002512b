package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig возвращается из Validate
var ErrInvalidConfig = errors.New("некорректная конфигурация")

// Config корневая структура конфигурации приложения
type Config struct {
	Level     LevelConfig     `yaml:"level"`
	Apertures AperturesConfig `yaml:"apertures"`
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Vec3Config тройка целых для YAML
type Vec3Config struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	Z int `yaml:"z"`
}

type LevelConfig struct {
	Bounds            Vec3Config `yaml:"bounds"` // Размер уровня в чанках
	Seed              int64      `yaml:"seed"`
	SavePath          string     `yaml:"save_path"`
	StorageKind       string     `yaml:"storage_kind"` // flat, sparse, jagged
	Terrain           string     `yaml:"terrain"`      // perlin, flat
	SpawnInitialFocus bool       `yaml:"spawn_initial_focus"`
}

// ApertureConfig радиусы и параллелизм одного яруса
type ApertureConfig struct {
	Radius         int `yaml:"radius"`
	HeightRadius   int `yaml:"height_radius"`
	MaxConcurrency int `yaml:"max_concurrency"`
}

type AperturesConfig struct {
	Loaded  ApertureConfig `yaml:"loaded"`
	Meshed  ApertureConfig `yaml:"meshed"`
	Visible ApertureConfig `yaml:"visible"`
}

type StorageConfig struct {
	Backend     string `yaml:"backend"` // file, badger, sqlite, maria, mongo, memory
	BadgerPath  string `yaml:"badger_path"`
	SQLitePath  string `yaml:"sqlite_path"`
	MariaDSN    string `yaml:"maria_dsn"`
	MongoURI    string `yaml:"mongo_uri"`
	MongoDB     string `yaml:"mongo_db"`
	Compression bool   `yaml:"compression"`
}

type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	RedisURL string `yaml:"redis_url"`
	TTL      int    `yaml:"ttl_seconds"`
}

// TTLDuration возвращает TTL кэша
func (c CacheConfig) TTLDuration() time.Duration {
	if c.TTL <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.TTL) * time.Second
}

type EventBusConfig struct {
	URL          string `yaml:"url"` // пусто = шина в памяти
	Stream       string `yaml:"stream"`
	Retention    int    `yaml:"retention_hours"`
	MemoryBuffer int    `yaml:"memory_buffer"`
}

type ServerConfig struct {
	RESTPort    int `yaml:"rest_port"`
	MetricsPort int `yaml:"metrics_port"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
	Endpoint    string `yaml:"endpoint"`
}

type AuthConfig struct {
	JWTSecret     string           `yaml:"jwt_secret"` // base64, не меньше 32 байт; пусто = случайный
	TokenTTLHours int              `yaml:"token_ttl_hours"`
	Operators     []OperatorConfig `yaml:"operators"`
}

// OperatorConfig учетная запись оператора управляющего API
type OperatorConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
}

// TokenTTL возвращает время жизни токена
func (a AuthConfig) TokenTTL() time.Duration {
	if a.TokenTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(a.TokenTTLHours) * time.Hour
}

type LoggingConfig struct {
	Dir          string `yaml:"dir"`
	ConsoleLevel string `yaml:"console_level"`
	FileLevel    string `yaml:"file_level"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Level: LevelConfig{
			Bounds:            Vec3Config{X: 100, Y: 5, Z: 100},
			Seed:              1234,
			SavePath:          "leveldata",
			StorageKind:       "flat",
			Terrain:           "perlin",
			SpawnInitialFocus: true,
		},
		Apertures: AperturesConfig{
			Loaded:  ApertureConfig{Radius: 10, HeightRadius: 2, MaxConcurrency: 25},
			Meshed:  ApertureConfig{Radius: 5, HeightRadius: 1, MaxConcurrency: 20},
			Visible: ApertureConfig{Radius: 3, HeightRadius: 1, MaxConcurrency: 20},
		},
		Storage: StorageConfig{
			Backend:     "file",
			BadgerPath:  "data/chunks",
			SQLitePath:  "data/chunks.db",
			MongoDB:     "voxel",
			Compression: true,
		},
		Cache: CacheConfig{TTL: 600},
		EventBus: EventBusConfig{
			Stream:       "VOXEL_EVENTS",
			Retention:    24,
			MemoryBuffer: 1024,
		},
		Telemetry: TelemetryConfig{ServiceName: "voxel-stream"},
		Auth:      AuthConfig{TokenTTLHours: 24},
		Logging:   LoggingConfig{Dir: "logs", ConsoleLevel: "INFO", FileLevel: "DEBUG"},
	}
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "VOXEL_REST_PORT", 8088)
}

// GetMetricsPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "VOXEL_METRICS_PORT", 2112)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	// Если порт задан в конфиге и больше 0, используем его
	if configPort > 0 {
		return configPort
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать из ENV VOXEL_CONFIG или возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("VOXEL_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения конфигурации %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора конфигурации %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет согласованность значений
func (c *Config) Validate() error {
	b := c.Level.Bounds
	if b.X <= 0 || b.Y <= 0 || b.Z <= 0 {
		return fmt.Errorf("%w: границы уровня должны быть положительными, получено (%d, %d, %d)", ErrInvalidConfig, b.X, b.Y, b.Z)
	}

	for name, a := range map[string]ApertureConfig{
		"loaded":  c.Apertures.Loaded,
		"meshed":  c.Apertures.Meshed,
		"visible": c.Apertures.Visible,
	} {
		if a.Radius < 0 || a.HeightRadius < 0 {
			return fmt.Errorf("%w: отрицательный радиус яруса %s", ErrInvalidConfig, name)
		}
		if a.MaxConcurrency < 0 {
			return fmt.Errorf("%w: отрицательный параллелизм яруса %s", ErrInvalidConfig, name)
		}
	}

	switch c.Storage.Backend {
	case "file", "badger", "sqlite", "maria", "mongo", "memory":
	default:
		return fmt.Errorf("%w: неизвестное хранилище %q", ErrInvalidConfig, c.Storage.Backend)
	}
	if c.Storage.Backend == "maria" && c.Storage.MariaDSN == "" {
		return fmt.Errorf("%w: для maria нужен maria_dsn", ErrInvalidConfig)
	}
	if c.Storage.Backend == "mongo" && c.Storage.MongoURI == "" {
		return fmt.Errorf("%w: для mongo нужен mongo_uri", ErrInvalidConfig)
	}

	switch c.Level.Terrain {
	case "perlin", "flat":
	default:
		return fmt.Errorf("%w: неизвестный ландшафт %q", ErrInvalidConfig, c.Level.Terrain)
	}

	for i, op := range c.Auth.Operators {
		if op.Username == "" || op.PasswordHash == "" {
			return fmt.Errorf("%w: оператор #%d без имени или хэша пароля", ErrInvalidConfig, i)
		}
	}

	if c.Cache.Enabled && c.Cache.RedisURL == "" {
		return fmt.Errorf("%w: кэш включен без redis_url", ErrInvalidConfig)
	}
	return nil
}
