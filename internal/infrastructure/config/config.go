package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/grf/partitioner/internal/domain/partition"
)

// EnvPrefix is the prefix of environment variable overrides (GRF_PLAN_DAILY_QUOTA, ...)
const EnvPrefix = "GRF"

// Config holds all application configuration
type Config struct {
	App       AppConfig       `key:"app"`
	Log       LogConfig       `key:"log"`
	Job       JobConfig       `key:"job"`
	Plan      PlanConfig      `key:"plan"`
	Sort      SortConfig      `key:"sort"`
	Writer    WriterConfig    `key:"writer"`
	Storage   StorageConfig   `key:"storage"`
	Database  DatabaseConfig  `key:"database"`
	Redis     RedisConfig     `key:"redis"`
	Telemetry TelemetryConfig `key:"telemetry"`
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string `key:"name" validate:"required"`
	Env  string `key:"env" validate:"required"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `key:"level" validate:"oneof=debug info warn error"`
	Format string `key:"format" validate:"oneof=json console"`
	Output string `key:"output" validate:"required"` // stdout, stderr, or file path
}

// JobConfig names the catalog tables a run reads and writes
type JobConfig struct {
	Database       string        `key:"database" validate:"required"`
	InventoryTable string        `key:"inventory_table" validate:"required"`
	FilelistTable  string        `key:"filelist_table" validate:"required"`
	OutputTable    string        `key:"output_table" validate:"required"`
	OutputPrefix   string        `key:"output_prefix" validate:"required"`
	LockTTL        time.Duration `key:"lock_ttl" validate:"gt=0"`
}

// PlanConfig holds the partition sizing inputs.
// They are checked again by the domain before a run starts.
type PlanConfig struct {
	DailyQuota           int64 `key:"daily_quota" validate:"gte=0"`
	ArchiveCount         int64 `key:"archive_count" validate:"gte=0"`
	VaultSize            int64 `key:"vault_size" validate:"gte=0"`
	DefaultPartitionSize int64 `key:"default_partition_size" validate:"gt=0"`
}

// SortConfig tunes the external sort
type SortConfig struct {
	RunSize int    `key:"run_size" validate:"gt=0"` // records per spilled run
	Workers int    `key:"workers" validate:"gt=0"`
	TempDir string `key:"temp_dir"` // empty = os.TempDir()
}

// WriterConfig selects the output format and the number of concurrent partition writers
type WriterConfig struct {
	Format  string `key:"format" validate:"oneof=parquet csv.gz"`
	Workers int    `key:"workers" validate:"gt=0"`
}

// StorageConfig holds object storage settings
type StorageConfig struct {
	Driver       string `key:"driver" validate:"oneof=s3 filesystem memory"`
	Bucket       string `key:"bucket"` // staging bucket
	Region       string `key:"region"`
	Endpoint     string `key:"endpoint"` // custom endpoint (RustFS, MinIO)
	AccessKey    string `key:"access_key"`
	SecretKey    string `key:"secret_key"`
	UsePathStyle bool   `key:"use_path_style"`
	UseSSL       bool   `key:"use_ssl"`
	BasePath     string `key:"base_path"` // root directory of the filesystem driver
}

// DatabaseConfig holds catalog database connection settings
type DatabaseConfig struct {
	Driver          string `key:"driver" validate:"oneof=sqlite postgres"`
	Path            string `key:"path"` // sqlite file, ":memory:" allowed
	Host            string `key:"host"`
	Port            int    `key:"port"`
	User            string `key:"user"`
	Password        string `key:"password"`
	DBName          string `key:"dbname"`
	SSLMode         string `key:"sslmode"`
	MaxOpenConns    int    `key:"max_open_conns" validate:"gt=0"`
	MaxIdleConns    int    `key:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime int    `key:"conn_max_lifetime"` // in minutes
	LogLevel        string `key:"log_level" validate:"oneof=silent error warn info"`
}

// RedisConfig holds Redis connection settings used by the run lock
type RedisConfig struct {
	Enabled  bool   `key:"enabled"`
	Host     string `key:"host"`
	Port     int    `key:"port"`
	Password string `key:"password"`
	DB       int    `key:"db"`
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool          `key:"enabled"`
	CollectorEndpoint string        `key:"collector_endpoint"` // e.g. "localhost:4317"
	SamplingRatio     float64       `key:"sampling_ratio" validate:"gte=0,lte=1"`
	ServiceName       string        `key:"service_name"`
	Insecure          bool          `key:"insecure"` // development only
	MetricsInterval   time.Duration `key:"metrics_interval"`
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with GRF_ prefix (e.g., GRF_PLAN_DAILY_QUOTA)
// 2. partitioner.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	return LoadFrom(viper.New())
}

// LoadFrom loads configuration through v. Callers may bind command line flags
// or point v at an explicit config file before calling it.
func LoadFrom(v *viper.Viper) (*Config, error) {
	if v.ConfigFileUsed() == "" {
		v.SetConfigName("partitioner")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/partitioner")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Job: JobConfig{
			Database:       v.GetString("job.database"),
			InventoryTable: v.GetString("job.inventory_table"),
			FilelistTable:  v.GetString("job.filelist_table"),
			OutputTable:    v.GetString("job.output_table"),
			OutputPrefix:   v.GetString("job.output_prefix"),
			LockTTL:        v.GetDuration("job.lock_ttl"),
		},
		Plan: PlanConfig{
			DailyQuota:           v.GetInt64("plan.daily_quota"),
			ArchiveCount:         v.GetInt64("plan.archive_count"),
			VaultSize:            v.GetInt64("plan.vault_size"),
			DefaultPartitionSize: v.GetInt64("plan.default_partition_size"),
		},
		Sort: SortConfig{
			RunSize: v.GetInt("sort.run_size"),
			Workers: v.GetInt("sort.workers"),
			TempDir: v.GetString("sort.temp_dir"),
		},
		Writer: WriterConfig{
			Format:  v.GetString("writer.format"),
			Workers: v.GetInt("writer.workers"),
		},
		Storage: StorageConfig{
			Driver:       v.GetString("storage.driver"),
			Bucket:       v.GetString("storage.bucket"),
			Region:       v.GetString("storage.region"),
			Endpoint:     v.GetString("storage.endpoint"),
			AccessKey:    v.GetString("storage.access_key"),
			SecretKey:    v.GetString("storage.secret_key"),
			UsePathStyle: v.GetBool("storage.use_path_style"),
			UseSSL:       v.GetBool("storage.use_ssl"),
			BasePath:     v.GetString("storage.base_path"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Path:            v.GetString("database.path"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			LogLevel:        v.GetString("database.log_level"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "partitioner"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
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
	if cfg.Job.Database == "" {
		cfg.Job.Database = "glacier_refreezer"
	}
	if cfg.Job.InventoryTable == "" {
		cfg.Job.InventoryTable = "inventory"
	}
	if cfg.Job.FilelistTable == "" {
		cfg.Job.FilelistTable = "filelist"
	}
	if cfg.Job.OutputTable == "" {
		cfg.Job.OutputTable = "partitioned_inventory"
	}
	if cfg.Job.OutputPrefix == "" {
		cfg.Job.OutputPrefix = "partitioned"
	}
	if cfg.Job.LockTTL == 0 {
		cfg.Job.LockTTL = 6 * time.Hour
	}
	if cfg.Plan.DefaultPartitionSize == 0 {
		cfg.Plan.DefaultPartitionSize = partition.DefaultPartitionSize
	}
	if cfg.Sort.RunSize == 0 {
		cfg.Sort.RunSize = 500_000
	}
	if cfg.Sort.Workers == 0 {
		cfg.Sort.Workers = 4
	}
	if cfg.Writer.Format == "" {
		cfg.Writer.Format = "parquet"
	}
	if cfg.Writer.Workers == 0 {
		cfg.Writer.Workers = 4
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "filesystem"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Driver == "filesystem" && cfg.Storage.BasePath == "" {
		cfg.Storage.BasePath = "./data"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "partitioner.db"
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
		cfg.Database.DBName = "partitioner"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "partitioner"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 15 * time.Second
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report config keys instead of Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("key")
	})
	return v
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fmt.Errorf("invalid configuration: %s", formatFieldError(fieldErrs[0]))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Storage.Driver {
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the s3 driver")
		}
	case "filesystem":
		if c.Storage.BasePath == "" {
			return fmt.Errorf("storage.base_path is required for the filesystem driver")
		}
	}

	if c.App.Env == "production" {
		if c.Storage.Driver == "memory" {
			return fmt.Errorf("storage.driver=memory is not allowed in production")
		}
		if c.Database.Driver == "postgres" {
			if c.Database.Password == "" {
				return fmt.Errorf("database.password is required in production")
			}
			if c.Database.SSLMode == "disable" {
				return fmt.Errorf("database.sslmode cannot be 'disable' in production")
			}
		}
	}

	return nil
}

// formatFieldError renders a validation failure as "section.key: message"
func formatFieldError(e validator.FieldError) string {
	// Namespace is "Config.section.key"
	key := e.Namespace()
	if i := strings.IndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}

	var msg string
	switch e.Tag() {
	case "required":
		msg = "is required"
	case "oneof":
		msg = "must be one of: " + e.Param()
	case "gt":
		msg = "must be greater than " + e.Param()
	case "gte":
		msg = "must be greater than or equal to " + e.Param()
	case "lte":
		msg = "must be less than or equal to " + e.Param()
	default:
		msg = "is invalid"
	}
	return fmt.Sprintf("%s %s (got %v)", key, msg, e.Value())
}

// PlanInput converts the plan section into the domain sizing input
func (c *Config) PlanInput() partition.PlanInput {
	return partition.PlanInput{
		ArchiveCount: c.Plan.ArchiveCount,
		VaultSize:    c.Plan.VaultSize,
		DailyQuota:   c.Plan.DailyQuota,
		DefaultSize:  c.Plan.DefaultPartitionSize,
	}
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
