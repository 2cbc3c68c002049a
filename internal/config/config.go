package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	API       APIConfig
	Recurring RecurringConfig
	Notify    NotifyConfig
}

type ServerConfig struct {
	Port int
	Env  string // "development", "production"
}

type DatabaseConfig struct {
	Driver  string // "mysql", "sqlite"
	Host    string
	Port    string
	Name    string
	User    string
	Pass    string
	Charset string
	Path    string // sqlite file
}

type RedisConfig struct {
	Addr string
	Pass string
	DB   int
}

type APIConfig struct {
	Key      string
	HashFile string
}

// RecurringConfig tunes the sweep and the claim protocol.
type RecurringConfig struct {
	SweepSpec        string // robfig/cron spec with a seconds field
	SweepBatch       int
	SweepConcurrency int
	SweepRate        float64 // executions per second, 0 = unlimited
	SweepMaxCatchUp  int
	ExecTimeout      time.Duration
	ClaimTTL         time.Duration
	ClaimWait        time.Duration
	Timezone         string
	ResumePolicy     string // "skip", "catch_up_once"
}

// Location resolves the business timezone, falling back to UTC.
func (c RecurringConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil || c.Timezone == "" {
		return time.UTC
	}
	return loc
}

// NotifyConfig drives delivery of queued job-created events.
type NotifyConfig struct {
	WebhookURL  string
	Token       string // sent as a bearer token when set
	Timeout     time.Duration
	Spec        string
	MaxAttempts int
}

// Load reads configuration from .env file and environment variables.
func Load() (*Config, error) {
	// Load .env file (ignore error if missing)
	_ = godotenv.Load()

	viper.AutomaticEnv()
	setDefaults()

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetInt("APP_PORT"),
			Env:  viper.GetString("APP_ENV"),
		},
		Database: loadDatabase(),
		Redis: RedisConfig{
			Addr: viper.GetString("REDIS_ADDR"),
			Pass: viper.GetString("REDIS_PASS"),
			DB:   viper.GetInt("REDIS_DB"),
		},
		API: APIConfig{
			Key:      viper.GetString("API_KEY"),
			HashFile: viper.GetString("API_HASH_FILE"),
		},
		Recurring: RecurringConfig{
			SweepSpec:        viper.GetString("SWEEP_SPEC"),
			SweepBatch:       viper.GetInt("SWEEP_BATCH"),
			SweepConcurrency: viper.GetInt("SWEEP_CONCURRENCY"),
			SweepRate:        viper.GetFloat64("SWEEP_RATE"),
			SweepMaxCatchUp:  viper.GetInt("SWEEP_MAX_CATCHUP"),
			ExecTimeout:      viper.GetDuration("EXEC_TIMEOUT"),
			ClaimTTL:         viper.GetDuration("CLAIM_TTL"),
			ClaimWait:        viper.GetDuration("CLAIM_WAIT"),
			Timezone:         viper.GetString("BUSINESS_TIMEZONE"),
			ResumePolicy:     viper.GetString("RESUME_POLICY"),
		},
		Notify: NotifyConfig{
			WebhookURL:  viper.GetString("NOTIFY_WEBHOOK_URL"),
			Token:       viper.GetString("NOTIFY_TOKEN"),
			Timeout:     viper.GetDuration("NOTIFY_TIMEOUT"),
			Spec:        viper.GetString("NOTIFY_SPEC"),
			MaxAttempts: viper.GetInt("NOTIFY_MAX_ATTEMPTS"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.Database.Driver == "mysql" && cfg.Database.Name == "" {
		log.Println("WARNING: DB_NAME is not set")
	}
	if cfg.API.Key == "" {
		log.Println("WARNING: API_KEY is not set")
	}

	return cfg, nil
}

// LoadDatabaseOnly reads just the database settings, for --bootstrap-db.
func LoadDatabaseOnly() (*DatabaseConfig, error) {
	_ = godotenv.Load()
	viper.AutomaticEnv()
	setDefaults()

	db := loadDatabase()
	return &db, nil
}

func setDefaults() {
	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("DB_DRIVER", "mysql")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "3306")
	viper.SetDefault("DB_CHARSET", "utf8mb4")
	viper.SetDefault("DB_PATH", "bizdesk.db")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("API_HASH_FILE", "hash.txt")

	viper.SetDefault("SWEEP_SPEC", "0 * * * * *")
	viper.SetDefault("SWEEP_BATCH", 200)
	viper.SetDefault("SWEEP_CONCURRENCY", 4)
	viper.SetDefault("SWEEP_RATE", 0)
	viper.SetDefault("SWEEP_MAX_CATCHUP", 10)
	viper.SetDefault("EXEC_TIMEOUT", "30s")
	viper.SetDefault("CLAIM_TTL", "2m")
	viper.SetDefault("CLAIM_WAIT", "5s")
	viper.SetDefault("BUSINESS_TIMEZONE", "UTC")
	viper.SetDefault("RESUME_POLICY", "skip")
	viper.SetDefault("NOTIFY_TIMEOUT", "5s")
	viper.SetDefault("NOTIFY_SPEC", "*/15 * * * * *")
	viper.SetDefault("NOTIFY_MAX_ATTEMPTS", 8)
}

func loadDatabase() DatabaseConfig {
	return DatabaseConfig{
		Driver:  viper.GetString("DB_DRIVER"),
		Host:    viper.GetString("DB_HOST"),
		Port:    viper.GetString("DB_PORT"),
		Name:    viper.GetString("DB_NAME"),
		User:    viper.GetString("DB_USER"),
		Pass:    viper.GetString("DB_PASS"),
		Charset: viper.GetString("DB_CHARSET"),
		Path:    viper.GetString("DB_PATH"),
	}
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	switch c.Recurring.ResumePolicy {
	case "skip", "catch_up_once":
	default:
		return fmt.Errorf("unsupported RESUME_POLICY %q", c.Recurring.ResumePolicy)
	}
	if c.Recurring.ExecTimeout <= 0 {
		return fmt.Errorf("EXEC_TIMEOUT must be positive")
	}
	if c.Recurring.ClaimTTL <= c.Recurring.ExecTimeout {
		return fmt.Errorf("CLAIM_TTL (%s) must exceed EXEC_TIMEOUT (%s)", c.Recurring.ClaimTTL, c.Recurring.ExecTimeout)
	}
	if c.Recurring.SweepConcurrency < 1 {
		c.Recurring.SweepConcurrency = 1
	}
	return nil
}

// DSN returns the MySQL DSN string for GORM. Dates are read back in UTC so
// calendar dates round-trip unchanged.
func (d *DatabaseConfig) DSN() string {
	return d.User + ":" + d.Pass + "@tcp(" + d.Host + ":" + d.Port + ")/" + d.Name + "?charset=" + d.Charset + "&parseTime=True&loc=UTC"
}
