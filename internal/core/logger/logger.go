package logger

import (
	"fmt"
	"log"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/valkey-io/valkey-glide-php-sub000/internal/core/build"
)

type LogMod string

const (
	DevelopmentMod LogMod = "development"
	ProductionMod  LogMod = "production"
)

// Config is read from LOG_MOD, LOG_LEVEL, LOG_MAPPING (name=level,...) and LOG_SKIP_CALLER.
type Config struct {
	LogMod     LogMod            `env:"LOG_MOD" envDefault:"production"`
	LogLevel   string            `env:"LOG_LEVEL" envDefault:"info"`
	LogMapping map[string]string `env:"LOG_MAPPING" envSeparator:"," envKeyValSeparator:"="`
	SkipCaller bool              `env:"LOG_SKIP_CALLER"`
}

func ConfigFromEnv() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse logger env: %w", err)
	}
	return &cfg, nil
}

var (
	globalLogger  = newDefault()                   //nolint:gochecknoglobals // process-wide logger
	globalMapping = make(map[string]zapcore.Level) //nolint:gochecknoglobals // per-name levels
)

func newDefault(opts ...zap.Option) *zap.Logger {
	logger, err := newZapCfg(DevelopmentMod, zapcore.DebugLevel).Build(opts...)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func newZapCfg(mod LogMod, logLevel zapcore.Level) zap.Config {
	if mod == ProductionMod {
		cfg := zap.NewProductionConfig()
		cfg.Level.SetLevel(logLevel)
		return cfg
	}
	// development config always logs at debug
	return zap.NewDevelopmentConfig()
}

// NewFromConfig builds the global logger and the named-logger level table.
func NewFromConfig(cfg *Config, opts ...zap.Option) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.LogLevel, err)
	}

	mapping := make(map[string]zapcore.Level, len(cfg.LogMapping))
	for name, lvl := range cfg.LogMapping {
		parsed, err := zapcore.ParseLevel(lvl)
		if err != nil {
			return nil, fmt.Errorf("log mapping %s=%s: %w", name, lvl, err)
		}
		mapping[name] = parsed
	}

	logger, err := newZapCfg(cfg.LogMod, level).Build(opts...)
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}

	logger = logger.With(
		zap.String("service", build.ServiceName),
		zap.String("version", build.Version),
		zap.String("instance", build.GlobalInstanceId),
	)
	if cfg.SkipCaller {
		logger = logger.WithOptions(zap.WithCaller(false))
	}

	globalLogger = logger
	globalMapping = mapping

	return globalLogger, nil
}

func NewFromEnv(opts ...zap.Option) (*zap.Logger, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewFromConfig(cfg, opts...)
}

func getNamedLoggerLevel(name string) zapcore.Level {
	if level, ok := globalMapping[name]; ok {
		return level
	}
	return Global().Level()
}

// Global returns the global logger.
func Global() *zap.Logger {
	return globalLogger
}

// Named returns a child logger whose minimum level honours LOG_MAPPING.
func Named(name string) *zap.Logger {
	return globalLogger.Named(name).WithOptions(zap.IncreaseLevel(getNamedLoggerLevel(name)))
}

// StdLog adapts the global logger for APIs that write to a *log.Logger.
func StdLog() *log.Logger {
	stdOutLogger, err := zap.NewStdLogAt(Global(), Global().Level())
	if err != nil {
		return zap.NewStdLog(Global())
	}
	return stdOutLogger
}
