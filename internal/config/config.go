package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	// Kafka brokers for outbound domain events. Empty disables publishing.
	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string   `mapstructure:"KAFKA_TOPIC"`

	// Clinical policy windows. These defaults follow standard blood bank
	// practice and can be tightened per deployment.
	LookbackWindowDays      int `mapstructure:"LOOKBACK_WINDOW_DAYS"`
	ReservationTimeoutHours int `mapstructure:"RESERVATION_TIMEOUT_HOURS"`
	ReturnTimeoutHours      int `mapstructure:"RETURN_TIMEOUT_HOURS"`
	CrossmatchValidityHours int `mapstructure:"CROSSMATCH_VALIDITY_HOURS"`

	// SweepInterval is how often background sweeps (expiry, reservation
	// timeout) run, in minutes.
	SweepIntervalMinutes int `mapstructure:"SWEEP_INTERVAL_MINUTES"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("KAFKA_TOPIC", "bloodbank.events")
	v.SetDefault("LOOKBACK_WINDOW_DAYS", 365)
	v.SetDefault("RESERVATION_TIMEOUT_HOURS", 24)
	v.SetDefault("RETURN_TIMEOUT_HOURS", 4)
	v.SetDefault("CROSSMATCH_VALIDITY_HOURS", 72)
	v.SetDefault("SWEEP_INTERVAL_MINUTES", 15)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("AUTH_SIGNING_KEY")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("KAFKA_BROKERS")
	v.BindEnv("KAFKA_TOPIC")
	v.BindEnv("LOOKBACK_WINDOW_DAYS")
	v.BindEnv("RESERVATION_TIMEOUT_HOURS")
	v.BindEnv("RETURN_TIMEOUT_HOURS")
	v.BindEnv("CROSSMATCH_VALIDITY_HOURS")
	v.BindEnv("SWEEP_INTERVAL_MINUTES")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	if cfg.KafkaBrokers == nil {
		if brokers := v.GetString("KAFKA_BROKERS"); brokers != "" {
			cfg.KafkaBrokers = strings.Split(brokers, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active — all requests get full access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set ENV=production and configure AUTH_SIGNING_KEY.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// mode a signing key is required so real JWT authentication is enforced, and
// the clinical policy windows must be positive.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV=%q; refusing to start without authentication", c.Env)
	}
	if c.LookbackWindowDays <= 0 {
		return fmt.Errorf("LOOKBACK_WINDOW_DAYS must be positive, got %d", c.LookbackWindowDays)
	}
	if c.ReservationTimeoutHours <= 0 {
		return fmt.Errorf("RESERVATION_TIMEOUT_HOURS must be positive, got %d", c.ReservationTimeoutHours)
	}
	if c.ReturnTimeoutHours <= 0 {
		return fmt.Errorf("RETURN_TIMEOUT_HOURS must be positive, got %d", c.ReturnTimeoutHours)
	}
	if c.CrossmatchValidityHours <= 0 {
		return fmt.Errorf("CROSSMATCH_VALIDITY_HOURS must be positive, got %d", c.CrossmatchValidityHours)
	}
	if c.SweepIntervalMinutes <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_MINUTES must be positive, got %d", c.SweepIntervalMinutes)
	}
	return nil
}
