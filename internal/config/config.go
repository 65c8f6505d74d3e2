package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingJWTSecret is returned by Validate when no token signing secret is configured.
var ErrMissingJWTSecret = errors.New("auth.jwtsecret (PORTAL_AUTH_JWTSECRET) is required")

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr           string
		CookieSecure   bool
		TrustedOrigins []string
	}
	Database struct {
		Driver string
		DSN    string
	}
	Storage struct {
		Bucket        string
		Region        string
		Endpoint      string
		PublicBaseURL string
	}
	AWS struct {
		Profile string
	}
	Auth struct {
		JWTSecret       string
		Issuer          string
		SessionTTL      time.Duration
		CleanupInterval time.Duration
		BcryptCost      int
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	RPC struct {
		MaxBatchSize   int
		MaxConcurrency int
		RequestTimeout time.Duration
	}
	Log struct {
		Level  string
		Format string
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("server.cookiesecure", false)
	v.SetDefault("server.trustedorigins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "data/portal.db")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "sa-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.publicbaseurl", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.issuer", "account-portal")
	v.SetDefault("auth.sessionttl", 7*24*time.Hour)
	v.SetDefault("auth.cleanupinterval", 10*time.Minute)
	v.SetDefault("auth.bcryptcost", 10)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("rpc.maxbatchsize", 20)
	v.SetDefault("rpc.maxconcurrency", 8)
	v.SetDefault("rpc.requesttimeout", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return ErrMissingJWTSecret
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	if c.RPC.MaxBatchSize <= 0 || c.RPC.MaxConcurrency <= 0 {
		return errors.New("rpc.maxbatchsize and rpc.maxconcurrency must be positive")
	}
	return nil
}

func loadDotEnv() {
	file, err := os.Open(".env")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		partsIndex := strings.Index(line, "=")
		if partsIndex <= 0 {
			continue
		}

		key := strings.TrimSpace(line[:partsIndex])
		value := strings.TrimSpace(line[partsIndex+1:])
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}
