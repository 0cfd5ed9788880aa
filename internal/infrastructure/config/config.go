package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/erp/kksync/internal/domain/integration"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Scheduler SchedulerConfig
	Telemetry TelemetryConfig
	Kinetic   KineticConfig
	Commerce  CommerceConfig
	Sync      SyncConfig
	Storage   StorageConfig
	Relay     RelayConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings. The run lease is disabled
// when Enabled is false.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	Prefix   string
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig holds the settings to validate operator tokens
type JWTConfig struct {
	Secret string
	Issuer string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
	RateLimit        float64 // requests per second per client, 0 disables
	RateBurst        int
}

// SchedulerConfig holds the sync job scheduler configuration
type SchedulerConfig struct {
	Enabled           bool
	MaxConcurrentJobs int
	QueueSize         int
	JobTimeout        time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
	CheckInterval     time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsEnabled    bool
	MetricsInterval   time.Duration
	LogsEnabled       bool
	DBTraceEnabled    bool // Enable database query tracing (otelgorm)
	DBSlowQueryThresh time.Duration
}

// KineticConfig holds the ERP REST settings
type KineticConfig struct {
	URL      string
	Company  string
	APIKey   string
	License  string
	Username string
	Password string
	// ClientCert and ClientKey are base64 encoded PEM blocks for mTLS
	ClientCert         string
	ClientKey          string
	InsecureSkipVerify bool
	Timeout            time.Duration
	ProcessedFunction  string
	Resources          map[string]string
}

// CommerceConfig holds the commerce REST settings
type CommerceConfig struct {
	BaseURL           string
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
	Timeout           time.Duration
	RateLimit         float64 // requests per second, 0 disables limiting
	RateBurst         int
}

// TaskConfig overrides one task definition
type TaskConfig struct {
	PageSize int
	Ceiling  int
	Interval time.Duration // 0 disables scheduled runs
}

// SyncConfig holds the pipeline tunables
type SyncConfig struct {
	Concurrency   int
	StaleRunTTL   time.Duration
	SweepInterval time.Duration
	LeaseTTL      time.Duration
	Tasks         map[string]TaskConfig
}

// StorageConfig holds the S3 settings of the extract archive
type StorageConfig struct {
	ArchiveEnabled bool
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	UsePathStyle   bool
	Prefix         string
}

// RelayConfig holds event relay settings
type RelayConfig struct {
	SharedSecret string
	Webhooks     map[string]string
	Timeout      time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with KKSYNC_ prefix (e.g., KKSYNC_DATABASE_PASSWORD)
// 2. .env file in the working directory
// 3. config.toml
// 4. Built-in defaults
func Load() (*Config, error) {
	// A missing .env file is fine
	_ = godotenv.Load()

	v := viper.New()

	// Set config file settings
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Enable environment variable override
	v.SetEnvPrefix("KKSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Prefix:   v.GetString("redis.prefix"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Issuer: v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
			RateLimit:        v.GetFloat64("http.rate_limit"),
			RateBurst:        v.GetInt("http.rate_burst"),
		},
		Scheduler: SchedulerConfig{
			Enabled:           v.GetBool("scheduler.enabled"),
			MaxConcurrentJobs: v.GetInt("scheduler.max_concurrent_jobs"),
			QueueSize:         v.GetInt("scheduler.queue_size"),
			JobTimeout:        v.GetDuration("scheduler.job_timeout"),
			RetryAttempts:     v.GetInt("scheduler.retry_attempts"),
			RetryDelay:        v.GetDuration("scheduler.retry_delay"),
			CheckInterval:     v.GetDuration("scheduler.check_interval"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
		Kinetic: KineticConfig{
			URL:                v.GetString("kinetic.url"),
			Company:            v.GetString("kinetic.company"),
			APIKey:             v.GetString("kinetic.api_key"),
			License:            v.GetString("kinetic.license"),
			Username:           v.GetString("kinetic.username"),
			Password:           v.GetString("kinetic.password"),
			ClientCert:         v.GetString("kinetic.client_cert"),
			ClientKey:          v.GetString("kinetic.client_key"),
			InsecureSkipVerify: v.GetBool("kinetic.insecure_skip_verify"),
			Timeout:            v.GetDuration("kinetic.timeout"),
			ProcessedFunction:  v.GetString("kinetic.processed_function"),
			Resources:          v.GetStringMapString("kinetic.resources"),
		},
		Commerce: CommerceConfig{
			BaseURL:           v.GetString("commerce.base_url"),
			ConsumerKey:       v.GetString("commerce.consumer_key"),
			ConsumerSecret:    v.GetString("commerce.consumer_secret"),
			AccessToken:       v.GetString("commerce.access_token"),
			AccessTokenSecret: v.GetString("commerce.access_token_secret"),
			Timeout:           v.GetDuration("commerce.timeout"),
			RateLimit:         v.GetFloat64("commerce.rate_limit"),
			RateBurst:         v.GetInt("commerce.rate_burst"),
		},
		Sync: SyncConfig{
			Concurrency:   v.GetInt("sync.concurrency"),
			StaleRunTTL:   v.GetDuration("sync.stale_run_ttl"),
			SweepInterval: v.GetDuration("sync.sweep_interval"),
			LeaseTTL:      v.GetDuration("sync.lease_ttl"),
			Tasks:         loadTasks(v),
		},
		Storage: StorageConfig{
			ArchiveEnabled: v.GetBool("storage.archive_enabled"),
			Endpoint:       v.GetString("storage.endpoint"),
			Region:         v.GetString("storage.region"),
			Bucket:         v.GetString("storage.bucket"),
			AccessKey:      v.GetString("storage.access_key"),
			SecretKey:      v.GetString("storage.secret_key"),
			UsePathStyle:   v.GetBool("storage.use_path_style"),
			Prefix:         v.GetString("storage.prefix"),
		},
		Relay: RelayConfig{
			SharedSecret: v.GetString("relay.shared_secret"),
			Webhooks:     v.GetStringMapString("relay.webhooks"),
			Timeout:      v.GetDuration("relay.timeout"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadTasks reads sync.tasks.<name>.* for every known task. Environment
// variables such as KKSYNC_SYNC_TASKS_PROD_ACSTG_TO_AC_CEILING apply.
func loadTasks(v *viper.Viper) map[string]TaskConfig {
	tasks := make(map[string]TaskConfig)
	for _, name := range integration.SortedTaskNames(integration.DefaultTasks()) {
		key := "sync.tasks." + name
		tasks[name] = TaskConfig{
			PageSize: v.GetInt(key + ".page_size"),
			Ceiling:  v.GetInt(key + ".ceiling"),
			Interval: v.GetDuration(key + ".interval"),
		}
	}
	return tasks
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "kksync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "kksync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "kksync:run:"
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "kksync"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	// Forward runs are synchronous, so the write timeout covers a whole run
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.RateLimit > 0 && cfg.HTTP.RateBurst == 0 {
		cfg.HTTP.RateBurst = 20
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20 // 10MB
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}
	if cfg.Scheduler.MaxConcurrentJobs == 0 {
		cfg.Scheduler.MaxConcurrentJobs = 2
	}
	if cfg.Scheduler.QueueSize == 0 {
		cfg.Scheduler.QueueSize = 50
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 30 * time.Minute
	}
	if cfg.Scheduler.RetryAttempts == 0 {
		cfg.Scheduler.RetryAttempts = 3
	}
	if cfg.Scheduler.RetryDelay == 0 {
		cfg.Scheduler.RetryDelay = time.Minute
	}
	if cfg.Scheduler.CheckInterval == 0 {
		cfg.Scheduler.CheckInterval = 30 * time.Second
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "kksync"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Kinetic.Timeout == 0 {
		cfg.Kinetic.Timeout = 60 * time.Second
	}
	if cfg.Kinetic.ProcessedFunction == "" {
		cfg.Kinetic.ProcessedFunction = "Ice.LIB.RBWebExportSvc/SetStagingTableProcessed"
	}
	if cfg.Commerce.Timeout == 0 {
		cfg.Commerce.Timeout = 30 * time.Second
	}
	if cfg.Commerce.RateBurst == 0 {
		cfg.Commerce.RateBurst = 10
	}
	if cfg.Sync.Concurrency == 0 {
		cfg.Sync.Concurrency = 10
	}
	if cfg.Sync.StaleRunTTL == 0 {
		cfg.Sync.StaleRunTTL = 6 * time.Hour
	}
	if cfg.Sync.SweepInterval == 0 {
		cfg.Sync.SweepInterval = 15 * time.Minute
	}
	if cfg.Sync.LeaseTTL == 0 {
		cfg.Sync.LeaseTTL = 30 * time.Second
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "extracts"
	}
	if cfg.Relay.Timeout == 0 {
		cfg.Relay.Timeout = 30 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	for name, task := range c.Sync.Tasks {
		if task.PageSize < 0 || task.Ceiling < 0 {
			return fmt.Errorf("sync.tasks.%s: page_size and ceiling cannot be negative", name)
		}
	}
	if c.Sync.Concurrency < 0 {
		return fmt.Errorf("sync.concurrency cannot be negative")
	}
	if c.Commerce.RateLimit < 0 {
		return fmt.Errorf("commerce.rate_limit cannot be negative")
	}

	if c.Storage.ArchiveEnabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage.archive_enabled is set")
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Relay.SharedSecret == "" {
			return fmt.Errorf("relay.shared_secret is required in production")
		}
		if c.Kinetic.InsecureSkipVerify {
			return fmt.Errorf("kinetic.insecure_skip_verify must be false in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// TaskDefinitions merges the configured overrides into the built-in task
// definitions.
func (c *Config) TaskDefinitions() map[string]integration.TaskDefinition {
	defs := integration.DefaultTasks()
	for name, override := range c.Sync.Tasks {
		def, ok := defs[name]
		if !ok {
			continue
		}
		if override.PageSize > 0 {
			def.PageSize = override.PageSize
		}
		if override.Ceiling > 0 {
			def.Ceiling = override.Ceiling
		}
		defs[name] = def
	}
	return defs
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
