package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Matching MatchingConfig `yaml:"matching"`
	Review   ReviewConfig   `yaml:"review"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port        int           `yaml:"port"`
	APIKey      string        `yaml:"api_key"`
	ScanTimeout time.Duration `yaml:"scan_timeout"`
	MetricsPort int           `yaml:"metrics_port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	AccessKey     string        `yaml:"access_key"`
	SecretKey     string        `yaml:"secret_key"`
	UseSSL        bool          `yaml:"use_ssl"`
	Buckets       BucketsConfig `yaml:"buckets"`
	PublicBaseURL string        `yaml:"public_base_url"` // when set, public URLs are joined instead of presigned
	PresignExpiry time.Duration `yaml:"presign_expiry"`
}

// BucketsConfig names the three storage areas used by scans.
type BucketsConfig struct {
	Dataset  string `yaml:"dataset"`
	Reports  string `yaml:"reports"`
	Evidence string `yaml:"evidence"`
}

// All returns every configured bucket name.
func (b BucketsConfig) All() []string {
	return []string{b.Dataset, b.Reports, b.Evidence}
}

type MatchingConfig struct {
	Scorer        string      `yaml:"scorer"` // heuristic | embedding
	ModelsDir     string      `yaml:"models_dir"`
	Concurrency   int         `yaml:"concurrency"`
	TopK          int         `yaml:"top_k"`
	Threshold     float64     `yaml:"threshold"`
	HighThreshold float64     `yaml:"high_threshold"`
	LowThreshold  float64     `yaml:"low_threshold"`
	ImageMode     string      `yaml:"image_mode"` // single | dual
	SweepMode     string      `yaml:"sweep_mode"`
	Noise         NoiseConfig `yaml:"noise"`
	WorkerCount   int         `yaml:"worker_count"`

	// FaceDetect crops to the detected face before embedding. Embedding scorer only.
	FaceDetect    bool    `yaml:"face_detect"`
	FaceThreshold float64 `yaml:"face_threshold"`
}

type NoiseConfig struct {
	Enabled   *bool   `yaml:"enabled"`
	Amplitude float64 `yaml:"amplitude"`
	Seed      uint64  `yaml:"seed"` // 0 seeds from the clock
}

// NoiseEnabled reports whether score perturbation is on. It defaults to on.
func (n NoiseConfig) NoiseEnabled() bool {
	return n.Enabled == nil || *n.Enabled
}

type ReviewConfig struct {
	SuppressAfterRejections int           `yaml:"suppress_after_rejections"` // 0 disables suppression
	RejectionCooldown       time.Duration `yaml:"rejection_cooldown"`        // 0 means rejections never expire
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
// A .env file in the working directory is loaded first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the matching pipeline cannot run with.
func (c *Config) Validate() error {
	for _, mode := range []string{c.Matching.ImageMode, c.Matching.SweepMode} {
		if mode != "single" && mode != "dual" {
			return fmt.Errorf("invalid ranking mode %q (want single or dual)", mode)
		}
	}
	if c.Matching.Scorer != "heuristic" && c.Matching.Scorer != "embedding" {
		return fmt.Errorf("invalid scorer %q (want heuristic or embedding)", c.Matching.Scorer)
	}
	if c.Matching.LowThreshold > c.Matching.HighThreshold {
		return fmt.Errorf("low_threshold %.1f above high_threshold %.1f",
			c.Matching.LowThreshold, c.Matching.HighThreshold)
	}
	if c.Review.SuppressAfterRejections < 0 {
		return fmt.Errorf("suppress_after_rejections must not be negative")
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ScanTimeout == 0 {
		cfg.Server.ScanTimeout = 2 * time.Minute
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 8082
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.MinIO.Buckets.Dataset == "" {
		cfg.MinIO.Buckets.Dataset = "police-dataset"
	}
	if cfg.MinIO.Buckets.Reports == "" {
		cfg.MinIO.Buckets.Reports = "missing-person-photos"
	}
	if cfg.MinIO.Buckets.Evidence == "" {
		cfg.MinIO.Buckets.Evidence = "scan-evidence"
	}
	if cfg.MinIO.PresignExpiry == 0 {
		cfg.MinIO.PresignExpiry = 24 * time.Hour
	}
	if cfg.Matching.Scorer == "" {
		cfg.Matching.Scorer = "heuristic"
	}
	if cfg.Matching.Concurrency == 0 {
		cfg.Matching.Concurrency = 8
	}
	if cfg.Matching.TopK == 0 {
		cfg.Matching.TopK = 5
	}
	if cfg.Matching.Threshold == 0 {
		cfg.Matching.Threshold = 60
	}
	if cfg.Matching.HighThreshold == 0 {
		cfg.Matching.HighThreshold = 80
	}
	if cfg.Matching.LowThreshold == 0 {
		cfg.Matching.LowThreshold = 50
	}
	if cfg.Matching.ImageMode == "" {
		cfg.Matching.ImageMode = "dual"
	}
	if cfg.Matching.SweepMode == "" {
		cfg.Matching.SweepMode = "single"
	}
	if cfg.Matching.Noise.Amplitude == 0 {
		cfg.Matching.Noise.Amplitude = 5
	}
	if cfg.Matching.FaceThreshold == 0 {
		cfg.Matching.FaceThreshold = 0.5
	}
	if cfg.Matching.WorkerCount == 0 {
		cfg.Matching.WorkerCount = 2
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MPR_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MPR_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("MPR_SCAN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ScanTimeout = d
		}
	}
	if v := os.Getenv("MPR_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("MPR_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("MPR_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("MPR_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("MPR_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("MPR_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("MPR_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("MPR_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("MPR_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("MPR_MINIO_PUBLIC_BASE_URL"); v != "" {
		cfg.MinIO.PublicBaseURL = v
	}
	if v := os.Getenv("MPR_MODELS_DIR"); v != "" {
		cfg.Matching.ModelsDir = v
	}
	if v := os.Getenv("MPR_SCORER"); v != "" {
		cfg.Matching.Scorer = v
	}
	if v := os.Getenv("MPR_MATCH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Matching.Concurrency = n
		}
	}
	if v := os.Getenv("MPR_NOISE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Matching.Noise.Enabled = &b
		}
	}
	if v := os.Getenv("MPR_NOISE_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Matching.Noise.Seed = n
		}
	}
	if v := os.Getenv("MPR_SUPPRESS_AFTER_REJECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Review.SuppressAfterRejections = n
		}
	}
	if v := os.Getenv("MPR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
