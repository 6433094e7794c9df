// Package config loads the scheduler's runtime configuration from a YAML
// file, then lets every field be overridden from the environment — the
// convention the teacher follows for container deployment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	GIS       GISConfig       `yaml:"gis"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

type HTTPConfig struct {
	Address    string `yaml:"address"`
	SwaggerDir string `yaml:"swagger_dir"`
}

type GRPCConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	NotifyTopic  string   `yaml:"notify_topic"`
	NotifyGroup  string   `yaml:"notify_group"`
}

// GISConfig points at the routing/geo-intersection adapter (C-external).
type GISConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// SchedulerConfig carries the tunables specific to the dispatcher core:
// pairing windows, deadhead caps, task lifetimes and pop timeouts.
type SchedulerConfig struct {
	DefaultTaskTTL    time.Duration `yaml:"default_task_ttl"`
	MaxDeadhead       time.Duration `yaml:"max_deadhead"`
	MinPadBlock       time.Duration `yaml:"min_pad_block"`
	TaskPopTimeout    time.Duration `yaml:"task_pop_timeout"`
	MaxPairingWindow  time.Duration `yaml:"max_pairing_window"`
	RevalidationSlack time.Duration `yaml:"revalidation_slack"`
	Environment       string        `yaml:"environment"`
}

// LoadConfig reads path as YAML and then applies any ENV overrides using
// the SCHEDULER_ prefix, so every value can be supplied without a mounted
// config file in a container deployment.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides walks a fixed set of SCHEDULER_-prefixed environment
// variables and, when present, overwrites the corresponding field. Values
// that fail to parse are left at whatever LoadConfig already set.
func applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("SCHEDULER_HTTP_ADDRESS", &cfg.HTTP.Address)
	str("SCHEDULER_GRPC_ADDRESS", &cfg.GRPC.Address)

	str("SCHEDULER_DB_HOST", &cfg.Database.Host)
	num("SCHEDULER_DB_PORT", &cfg.Database.Port)
	str("SCHEDULER_DB_USER", &cfg.Database.User)
	str("SCHEDULER_DB_PASSWORD", &cfg.Database.Password)
	str("SCHEDULER_DB_NAME", &cfg.Database.Name)
	str("SCHEDULER_DB_SSL_MODE", &cfg.Database.SSLMode)

	str("SCHEDULER_REDIS_ADDR", &cfg.Redis.Addr)
	str("SCHEDULER_REDIS_PASSWORD", &cfg.Redis.Password)
	num("SCHEDULER_REDIS_DB", &cfg.Redis.DB)

	if v, ok := os.LookupEnv("SCHEDULER_KAFKA_BROKERS"); ok && v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	str("SCHEDULER_KAFKA_NOTIFY_TOPIC", &cfg.Kafka.NotifyTopic)
	str("SCHEDULER_KAFKA_NOTIFY_GROUP", &cfg.Kafka.NotifyGroup)

	str("SCHEDULER_GIS_BASE_URL", &cfg.GIS.BaseURL)
	dur("SCHEDULER_GIS_TIMEOUT", &cfg.GIS.Timeout)

	dur("SCHEDULER_DEFAULT_TASK_TTL", &cfg.Scheduler.DefaultTaskTTL)
	dur("SCHEDULER_MAX_DEADHEAD", &cfg.Scheduler.MaxDeadhead)
	dur("SCHEDULER_MIN_PAD_BLOCK", &cfg.Scheduler.MinPadBlock)
	dur("SCHEDULER_TASK_POP_TIMEOUT", &cfg.Scheduler.TaskPopTimeout)
	dur("SCHEDULER_MAX_PAIRING_WINDOW", &cfg.Scheduler.MaxPairingWindow)
	dur("SCHEDULER_REVALIDATION_SLACK", &cfg.Scheduler.RevalidationSlack)
	str("SCHEDULER_ENVIRONMENT", &cfg.Scheduler.Environment)
}
