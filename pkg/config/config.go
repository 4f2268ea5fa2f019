// Package config holds the server settings. Every flag falls back to an
// environment variable so the binary runs unchanged under compose files.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"

	"tableorders/pkg/events"
	"tableorders/pkg/worker"
)

const (
	DefaultTables     = 100
	DefaultListenAddr = "127.0.0.1:7878"
	DefaultAdminAddr  = "127.0.0.1:9090"
	DefaultKafkaTopic = "order-events"
)

// Config is everything the server reads at startup.
type Config struct {
	Tables     int
	Workers    int
	ListenAddr string
	AdminAddr  string
	LogLevel   string

	// Event sinks. Each one is enabled when its address is set.
	DatabaseURL  string
	RedisAddr    string
	KafkaBrokers []string
	KafkaTopic   string
	AMQPURL      string
	// PublishTimeout caps how long a request waits on the event sinks.
	PublishTimeout time.Duration

	OtelHost        string
	OtelProbability float64
}

// FromEnv returns the defaults overridden by the environment.
func FromEnv() Config {
	return Config{
		Tables:          envInt("TABLES", DefaultTables),
		Workers:         envInt("WORKERS", worker.DefaultWorkers),
		ListenAddr:      envString("LISTEN_ADDR", DefaultListenAddr),
		AdminAddr:       envString("ADMIN_ADDR", DefaultAdminAddr),
		LogLevel:        envString("LOG_LEVEL", "info"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		KafkaBrokers:    splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:      envString("KAFKA_TOPIC", DefaultKafkaTopic),
		AMQPURL:         os.Getenv("AMQP_URL"),
		PublishTimeout:  envDuration("PUBLISH_TIMEOUT", events.DefaultPublishTimeout),
		OtelHost:        os.Getenv("OTEL_HOST"),
		OtelProbability: envFloat("OTEL_PROBABILITY", 1.0),
	}
}

// Bind registers flags on fs whose defaults come from the environment.
func Bind(fs *pflag.FlagSet) *Config {
	cfg := FromEnv()
	fs.IntVarP(&cfg.Tables, "tables", "n", cfg.Tables, "number of tables")
	fs.IntVarP(&cfg.Workers, "workers", "w", cfg.Workers, "number of worker goroutines")
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "order server address")
	fs.StringVar(&cfg.AdminAddr, "admin", cfg.AdminAddr, "admin HTTP address, empty disables it")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "postgres URL for the event journal")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "redis address for event pub/sub")
	fs.StringSliceVar(&cfg.KafkaBrokers, "kafka-brokers", cfg.KafkaBrokers, "kafka brokers for order events")
	fs.StringVar(&cfg.KafkaTopic, "kafka-topic", cfg.KafkaTopic, "kafka topic for order events")
	fs.StringVar(&cfg.AMQPURL, "amqp-url", cfg.AMQPURL, "rabbitmq URL for order events")
	fs.DurationVar(&cfg.PublishTimeout, "publish-timeout", cfg.PublishTimeout, "deadline for publishing one order event")
	fs.StringVar(&cfg.OtelHost, "otel-host", cfg.OtelHost, "OTLP gRPC collector endpoint")
	fs.Float64Var(&cfg.OtelProbability, "otel-probability", cfg.OtelProbability, "trace sampling ratio")
	return &cfg
}

// Validate reports every setting the server cannot start with.
func (c Config) Validate() error {
	var err error
	if c.Tables <= 0 {
		err = errors.CombineErrors(err, errors.Newf("tables must be positive, got %d", c.Tables))
	}
	if c.Workers <= 0 {
		err = errors.CombineErrors(err, errors.Newf("workers must be positive, got %d", c.Workers))
	}
	if c.PublishTimeout <= 0 {
		err = errors.CombineErrors(err, errors.Newf("publish timeout must be positive, got %s", c.PublishTimeout))
	}
	if c.ListenAddr == "" {
		err = errors.CombineErrors(err, errors.New("listen address is required"))
	}
	if c.OtelProbability < 0 || c.OtelProbability > 1 {
		err = errors.CombineErrors(err, errors.Newf("otel probability %v out of range [0,1]", c.OtelProbability))
	}
	return err
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func envFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
