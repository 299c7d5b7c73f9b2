// Package config loads settings from the environment, an optional .env file
// and built-in defaults. Every key can be set as HANDSUP_<KEY>, with dots
// replaced by underscores, e.g. HANDSUP_DB_DSN.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "HANDSUP"

const devSecret = "dev-secret-change-me"

type Config struct {
	Env        string
	LogLevel   string
	LogBackend string

	HTTPAddr  string
	PublicURL string

	DBDriver string // sqlite, postgres or memory
	DBDSN    string
	Feed     string // local, redis or postgres

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret string
	JWTTTL    time.Duration

	ServerURL string

	TelegramToken  string
	TelegramChatID int64

	ForceLeaveDelay time.Duration
}

func defaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.backend", "")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("public.url", "http://localhost:8080/")
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "handsup.db")
	v.SetDefault("feed", "local")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", devSecret)
	v.SetDefault("jwt.ttl", TokenTTL)
	v.SetDefault("server.url", "http://localhost:8080")
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", 0)
	v.SetDefault("force_leave_delay", ForceLeaveDelay)
}

// Load reads the configuration. envFiles are loaded with godotenv when they
// exist; without arguments ".env" is tried.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("config: stat %s: %w", f, err)
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	defaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Env:             v.GetString("env"),
		LogLevel:        v.GetString("log.level"),
		LogBackend:      v.GetString("log.backend"),
		HTTPAddr:        v.GetString("http.addr"),
		PublicURL:       v.GetString("public.url"),
		DBDriver:        strings.ToLower(v.GetString("db.driver")),
		DBDSN:           v.GetString("db.dsn"),
		Feed:            strings.ToLower(v.GetString("feed")),
		RedisAddr:       v.GetString("redis.addr"),
		RedisPassword:   v.GetString("redis.password"),
		RedisDB:         v.GetInt("redis.db"),
		JWTSecret:       v.GetString("jwt.secret"),
		JWTTTL:          v.GetDuration("jwt.ttl"),
		ServerURL:       v.GetString("server.url"),
		TelegramToken:   v.GetString("telegram.token"),
		TelegramChatID:  v.GetInt64("telegram.chat_id"),
		ForceLeaveDelay: v.GetDuration("force_leave_delay"),
	}
	return cfg, cfg.Validate()
}

// Validate checks the combinations Load cannot default away.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("config: unknown db driver %q", c.DBDriver)
	}
	switch c.Feed {
	case "local", "redis":
	case "postgres":
		if c.DBDriver != "postgres" {
			return errors.New("config: the postgres feed needs the postgres db driver")
		}
	default:
		return fmt.Errorf("config: unknown feed %q", c.Feed)
	}
	if c.IsProd() && c.JWTSecret == devSecret {
		return errors.New("config: HANDSUP_JWT_SECRET must be set in production")
	}
	return nil
}

// IsProd reports whether the configured environment is production.
func (c *Config) IsProd() bool {
	switch strings.ToLower(c.Env) {
	case "prod", "production":
		return true
	}
	return false
}
