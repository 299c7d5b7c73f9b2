// Package logger configures the process-wide log/slog logger.
// Development uses a text handler; staging and production log JSON through zap.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	slogzap "github.com/samber/slog-zap/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Env string

const (
	EnvDev   Env = "dev"
	EnvStage Env = "stage"
	EnvProd  Env = "prod"
)

type Backend string

const (
	BackendStd Backend = "std"
	BackendZap Backend = "zap"
)

// Config describes the logger. Zero values pick sensible defaults.
type Config struct {
	Service    string
	Version    string
	InstanceID string

	Env     Env
	Backend Backend // std in dev, zap elsewhere
	Level   slog.Level
	Debug   bool

	// zap sampling per second: first SampleInitial entries, then every SampleThereafter-th
	SampleInitial    int
	SampleThereafter int

	AddSource bool

	// Output defaults to os.Stdout.
	Output io.Writer
}

// ParseEnv maps common spellings of an environment name to an Env.
// Unknown values are dev.
func ParseEnv(raw string) Env {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "prod", "production":
		return EnvProd
	case "stage", "staging", "preprod":
		return EnvStage
	default:
		return EnvDev
	}
}

// ParseLevel maps debug/info/warn/error to a slog level. Unknown values are info.
func ParseLevel(raw string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Init builds the handler for cfg, installs it as the slog default and returns it.
func Init(cfg Config) *slog.Logger {
	if cfg.Env == "" {
		cfg.Env = ParseEnv(os.Getenv("APP_ENV"))
	}
	if cfg.Service == "" {
		cfg.Service = "handsup"
	}
	if cfg.InstanceID == "" {
		host, _ := os.Hostname()
		cfg.InstanceID = host + "-" + uuid.New().String()[:8]
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendZap
		if cfg.Env == EnvDev {
			cfg.Backend = BackendStd
		}
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Debug && cfg.Level == 0 {
		cfg.Level = slog.LevelDebug
	}

	var h slog.Handler
	switch cfg.Backend {
	case BackendZap:
		h = zapHandler(cfg)
	default:
		h = slog.NewTextHandler(cfg.Output, &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource})
	}
	h = h.WithAttrs([]slog.Attr{
		slog.String("service", cfg.Service),
		slog.String("env", string(cfg.Env)),
		slog.String("version", cfg.Version),
		slog.String("instance_id", cfg.InstanceID),
	})

	l := slog.New(h)
	slog.SetDefault(l)
	return l
}

func zapHandler(cfg Config) slog.Handler {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	if cfg.AddSource {
		enc.EncodeCaller = zapcore.ShortCallerEncoder
	}

	initial, thereafter := cfg.SampleInitial, cfg.SampleThereafter
	if initial <= 0 {
		initial = 100
	}
	if thereafter <= 0 {
		thereafter = 10
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(cfg.Output), zapLevel(cfg.Level))
	core = zapcore.NewSamplerWithOptions(core, time.Second, initial, thereafter)

	z := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return slogzap.Option{Level: cfg.Level, Logger: z}.NewZapHandler()
}

func zapLevel(lvl slog.Level) zapcore.Level {
	switch {
	case lvl <= slog.LevelDebug:
		return zapcore.DebugLevel
	case lvl <= slog.LevelInfo:
		return zapcore.InfoLevel
	case lvl <= slog.LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}
