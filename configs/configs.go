// Package configs provides application configuration loaded from environment variables.
// All configuration is externalized via environment variables for 12-factor app compliance.
package configs

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig holds all application configuration.
// Load it once at startup using AppLoad().
type AppConfig struct {
	// StartDate is the first day to archive.
	StartDate Date `envconfig:"START_DATE"`

	// EndDate is exclusive: the last archived day is EndDate - 1.
	EndDate Date `envconfig:"END_DATE"`

	// AcceptedTickers restricts the stored symbols. Empty accepts all.
	AcceptedTickers SymbolList `envconfig:"ACCEPTED_TICKERS"`

	// Source is "http" (download) or "dir" (already downloaded archives).
	Source        string        `envconfig:"SOURCE" default:"http" validate:"oneof=http dir"`
	SourceBaseURL string        `envconfig:"SOURCE_BASE_URL" validate:"omitempty,url"`
	SourceDir     string        `envconfig:"SOURCE_DIR" validate:"required_if=Source dir"`
	SourceRPS     float64       `envconfig:"SOURCE_RPS" default:"2" validate:"gt=0"`
	SourceTimeout time.Duration `envconfig:"SOURCE_TIMEOUT" default:"10m" validate:"gt=0"`
	SourceRetries int           `envconfig:"SOURCE_RETRIES" default:"5" validate:"min=1,max=20"`

	// Sink selects the storage backend.
	Sink string `envconfig:"SINK" default:"csv" validate:"oneof=csv parquet json clickhouse postgres kafka"`

	// OutputDir receives per-day files and the resume checkpoint.
	OutputDir string `envconfig:"OUTPUT_DIR" default:"data" validate:"required"`

	// ClickHouseDSN overrides the connection string built from the CLICKHOUSE_* parts.
	ClickHouseDSN      string `envconfig:"CLICKHOUSE_DSN"`
	ClickHouseUser     string `envconfig:"CLICKHOUSE_USER" default:"user"`
	ClickHousePassword string `envconfig:"CLICKHOUSE_PASSWORD" default:"password"`
	ClickHouseHost     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	ClickHousePort     string `envconfig:"CLICKHOUSE_TCP_PORT" default:"9000"`
	ClickHouseDB       string `envconfig:"CLICKHOUSE_DB" default:"db"`

	// PostgresDSN is the pgx connection string.
	PostgresDSN string `envconfig:"POSTGRES_DSN" validate:"required_if=Sink postgres"`

	// KafkaBroker is the Kafka broker address (e.g., "localhost:9092").
	KafkaBroker string `envconfig:"KAFKA_BROKER" default:"localhost:9092" validate:"required_if=Sink kafka"`

	// KafkaTopic receives one message per tick.
	KafkaTopic string `envconfig:"KAFKA_TOPIC" default:"tickarchive_ticks" validate:"required_if=Sink kafka"`

	// OnDayError is "abort" (stop the range) or "skip" (record and continue).
	OnDayError string `envconfig:"ON_DAY_ERROR" default:"abort" validate:"oneof=abort skip"`

	// Resume continues after the last checkpointed day in OutputDir.
	Resume bool `envconfig:"RESUME" default:"false"`

	// SaveRetries bounds the attempts of the per-day persistence step.
	SaveRetries int `envconfig:"SAVE_RETRIES" default:"3" validate:"min=1,max=20"`

	// MetricsAddr serves /metrics when set, e.g. ":9102".
	MetricsAddr string `envconfig:"METRICS_ADDR" validate:"omitempty,hostname_port"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn warning error"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`
}

// DatabaseDSN returns the ClickHouse DSN.
func (c *AppConfig) DatabaseDSN() string {
	if c.ClickHouseDSN != "" {
		return c.ClickHouseDSN
	}
	return fmt.Sprintf(
		"clickhouse://%s:%s@%s:%s/%s?dial_timeout=10s&read_timeout=20s",
		c.ClickHouseUser, c.ClickHousePassword, c.ClickHouseHost, c.ClickHousePort, c.ClickHouseDB,
	)
}

// AppLoad loads all application configuration from environment variables.
// It attempts to load a .env file first (for local development).
// Call this once at application startup.
func AppLoad() (*AppConfig, error) {
	_ = godotenv.Load() // Ignore error - .env is optional
	return FromEnv()
}

// FromEnv reads and validates the configuration from the process environment.
func FromEnv() (*AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints. The date range itself is checked by the
// runner so that command line overrides are taken into account.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Date is a calendar day in UTC, written as YYYY-MM-DD.
type Date struct {
	time.Time
}

// ParseDate parses YYYY-MM-DD as UTC midnight.
func ParseDate(s string) (Date, error) {
	t, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return Date{}, fmt.Errorf("date %q: want YYYY-MM-DD", s)
	}
	return Date{Time: t}, nil
}

// Decode implements envconfig.Decoder.
func (d *Date) Decode(value string) error {
	if strings.TrimSpace(value) == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Set implements flag.Value so dates can be overridden on the command line.
func (d *Date) Set(value string) error { return d.Decode(value) }

func (d *Date) String() string {
	if d == nil || d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

// SymbolList is the accepted ticker allow-list. It decodes either a JSON
// array (["XBTUSD","ETHUSD"]) or a comma separated list.
type SymbolList []string

// Decode implements envconfig.Decoder.
func (s *SymbolList) Decode(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		*s = nil
		return nil
	}
	if strings.HasPrefix(value, "[") {
		var list []string
		if err := json.Unmarshal([]byte(value), &list); err != nil {
			return fmt.Errorf("accepted tickers: %w", err)
		}
		*s = clean(list)
		return nil
	}
	*s = clean(strings.Split(value, ","))
	return nil
}

func clean(list []string) SymbolList {
	var out SymbolList
	for _, v := range list {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
