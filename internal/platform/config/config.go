package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server    Server
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	PayMongo  PayMongoConfig
	Fee       FeeConfig
	Auth      AuthConfig
	Venue     VenueConfig
	RateLimit RateLimitConfig
	LogLevel  string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	RequestTimeout time.Duration
	PublicBaseURL  string
}

// DatabaseConfig selects Postgres. An empty URL runs the in-memory stores.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	TxTimeout       time.Duration
}

// RedisConfig backs credential blobs and reconciliation locks.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers       []string
	Topic         string
	Partitions    int32
	RelayInterval time.Duration
	RelayBatch    int
}

type PayMongoConfig struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
}

// FeeConfig holds fee policy constants. Amounts are in centavos.
type FeeConfig struct {
	MinOnlineAmount int64
	MaxGroupSize    int
}

type AuthConfig struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
}

// RateLimitConfig bounds requests per sliding window. Zero disables a limit.
type RateLimitConfig struct {
	Window          time.Duration
	APIRequests     int
	WebhookRequests int
}

type VenueConfig struct {
	TimeZone        string
	DomesticCountry string
}

// Location resolves the venue time zone used for visit dates.
func (v VenueConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(v.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load venue time zone %q: %w", v.TimeZone, err)
	}
	return loc, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.requesttimeout", 30*time.Second)
	v.SetDefault("server.publicbaseurl", "http://localhost:8080")

	v.SetDefault("database.maxopenconns", 20)
	v.SetDefault("database.maxidleconns", 5)
	v.SetDefault("database.connmaxlifetime", 30*time.Minute)
	v.SetDefault("database.txtimeout", 5*time.Second)

	v.SetDefault("redis.poolsize", 10)
	v.SetDefault("redis.minidleconns", 2)
	v.SetDefault("redis.dialtimeout", 5*time.Second)
	v.SetDefault("redis.readtimeout", 3*time.Second)
	v.SetDefault("redis.writetimeout", 3*time.Second)

	v.SetDefault("kafka.topic", "entrypass.events")
	v.SetDefault("kafka.partitions", 3)
	v.SetDefault("kafka.relayinterval", 2*time.Second)
	v.SetDefault("kafka.relaybatch", 100)

	v.SetDefault("paymongo.baseurl", "https://api.paymongo.com")
	v.SetDefault("paymongo.timeout", 10*time.Second)

	v.SetDefault("fee.minonlineamount", 10000)
	v.SetDefault("fee.maxgroupsize", 50)

	// Use a default for development - should be overridden in production
	v.SetDefault("auth.jwtsigningkey", "dev-secret-key-change-in-production")
	v.SetDefault("auth.audience", "entrypass")

	v.SetDefault("venue.timezone", "Asia/Manila")
	v.SetDefault("venue.domesticcountry", "Philippines")

	v.SetDefault("ratelimit.window", time.Minute)
	v.SetDefault("ratelimit.apirequests", 120)
	v.SetDefault("ratelimit.webhookrequests", 600)

	v.SetDefault("loglevel", "info")
}

// Load reads defaults, then the optional YAML file named by ENTRYPASS_CONFIG,
// then ENTRYPASS_* environment variables (ENTRYPASS_DATABASE_URL, ...).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ENTRYPASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// AutomaticEnv only resolves keys viper already knows about; Unmarshal needs
// every key bound so env-only settings are visible.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"config",
		"database.url", "redis.url", "kafka.brokers",
		"paymongo.secretkey", "paymongo.webhooksecret",
		"auth.issuer",
	} {
		_ = v.BindEnv(key)
	}
	for _, key := range v.AllKeys() {
		_ = v.BindEnv(key)
	}
}

func (c *Config) Validate() error {
	if c.Auth.JWTSigningKey == "" {
		return fmt.Errorf("auth.jwtsigningkey is required")
	}
	if c.Fee.MinOnlineAmount < 0 {
		return fmt.Errorf("fee.minonlineamount must not be negative")
	}
	if c.Fee.MaxGroupSize <= 0 {
		return fmt.Errorf("fee.maxgroupsize must be positive")
	}
	if c.RateLimit.APIRequests < 0 || c.RateLimit.WebhookRequests < 0 {
		return fmt.Errorf("ratelimit request budgets must not be negative")
	}
	if _, err := c.Venue.Location(); err != nil {
		return err
	}
	return nil
}
