package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                 = "MAPAVENTAS"
	defaultHTTPAddress        = "0.0.0.0:8080"
	defaultDatabaseDriver     = "sqlite"
	defaultDatabaseDSN        = "mapa-ventas.db"
	defaultLogLevel           = "info"
	defaultLogFormat          = "json"
	defaultAuthIssuer         = "supabase"
	defaultAuthAudience       = "authenticated"
	defaultTimezone           = "America/Argentina/Buenos_Aires"
	defaultInventoryRelation  = "vista_stock_unidades"
	defaultConcurrency        = 1
	defaultGenerationTimeout  = 10 * time.Minute
	defaultDailySchedule      = "55 23 * * *"
	defaultMonthlySchedule    = "50 23 28-31 * *"
	defaultConnMaxLifetime    = 5 * time.Minute
	defaultMaxOpenConnections = 10
	defaultMaxIdleConnections = 2
)

var supportedDrivers = map[string]struct{}{
	"sqlite":   {},
	"postgres": {},
	"mysql":    {},
}

// AppConfig captures runtime configuration for the API server and the snapshot jobs.
type AppConfig struct {
	HTTPAddress string

	DatabaseDriver     string
	DatabaseDSN        string
	MaxOpenConnections int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration

	LogLevel  string
	LogFormat string

	AuthSigningSecret string
	AuthIssuer        string
	AuthAudience      string

	Location          *time.Location
	InventoryRelation string
	Concurrency       int
	GenerationTimeout time.Duration

	SchedulerEnabled bool
	DailySchedule    string
	MonthlySchedule  string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("database.max_open_conns", defaultMaxOpenConnections)
	configViper.SetDefault("database.max_idle_conns", defaultMaxIdleConnections)
	configViper.SetDefault("database.conn_max_lifetime", defaultConnMaxLifetime)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("auth.issuer", defaultAuthIssuer)
	configViper.SetDefault("auth.audience", defaultAuthAudience)
	configViper.SetDefault("snapshots.timezone", defaultTimezone)
	configViper.SetDefault("snapshots.inventory_relation", defaultInventoryRelation)
	configViper.SetDefault("snapshots.concurrency", defaultConcurrency)
	configViper.SetDefault("snapshots.generation_timeout", defaultGenerationTimeout)
	configViper.SetDefault("scheduler.enabled", true)
	configViper.SetDefault("scheduler.daily_spec", defaultDailySchedule)
	configViper.SetDefault("scheduler.monthly_spec", defaultMonthlySchedule)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	timezone := strings.TrimSpace(configViper.GetString("snapshots.timezone"))
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return AppConfig{}, fmt.Errorf("snapshots.timezone %q is invalid: %w", timezone, err)
	}

	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabaseDriver:     strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:        configViper.GetString("database.dsn"),
		MaxOpenConnections: configViper.GetInt("database.max_open_conns"),
		MaxIdleConnections: configViper.GetInt("database.max_idle_conns"),
		ConnMaxLifetime:    configViper.GetDuration("database.conn_max_lifetime"),
		LogLevel:           configViper.GetString("log.level"),
		LogFormat:          configViper.GetString("log.format"),
		AuthSigningSecret:  configViper.GetString("auth.signing_secret"),
		AuthIssuer:         configViper.GetString("auth.issuer"),
		AuthAudience:       configViper.GetString("auth.audience"),
		Location:           location,
		InventoryRelation:  configViper.GetString("snapshots.inventory_relation"),
		Concurrency:        configViper.GetInt("snapshots.concurrency"),
		GenerationTimeout:  configViper.GetDuration("snapshots.generation_timeout"),
		SchedulerEnabled:   configViper.GetBool("scheduler.enabled"),
		DailySchedule:      configViper.GetString("scheduler.daily_spec"),
		MonthlySchedule:    configViper.GetString("scheduler.monthly_spec"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AuthSigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.AuthIssuer) == "" {
		return fmt.Errorf("auth.issuer is required")
	}
	if strings.TrimSpace(c.AuthAudience) == "" {
		return fmt.Errorf("auth.audience is required")
	}
	if _, ok := supportedDrivers[c.DatabaseDriver]; !ok {
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if strings.TrimSpace(c.InventoryRelation) == "" {
		return fmt.Errorf("snapshots.inventory_relation is required")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("snapshots.concurrency must be at least 1")
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("snapshots.generation_timeout must be positive")
	}
	if c.SchedulerEnabled {
		if strings.TrimSpace(c.DailySchedule) == "" {
			return fmt.Errorf("scheduler.daily_spec is required when the scheduler is enabled")
		}
		if strings.TrimSpace(c.MonthlySchedule) == "" {
			return fmt.Errorf("scheduler.monthly_spec is required when the scheduler is enabled")
		}
	}
	return nil
}
