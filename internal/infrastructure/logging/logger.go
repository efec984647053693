package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/GriffinCanCode/imf/internal/shared/strutil"
)

// Logger is the service's root zap logger
type Logger struct {
	*zap.Logger
}

// Config defines logger configuration
type Config struct {
	Level       string // "debug", "info", "warn", "error"
	Development bool
	OutputPaths []string
	// Sample thins repeated production entries: after the first 100 of a
	// message each second only every 100th is kept.
	Sample bool
}

// DefaultConfig is JSON to stdout at info, sampled
func DefaultConfig() Config {
	return Config{
		Level:       "info",
		OutputPaths: []string{"stdout"},
		Sample:      true,
	}
}

// DevelopmentConfig is colored console output at debug
func DevelopmentConfig() Config {
	return Config{
		Level:       "debug",
		Development: true,
		OutputPaths: []string{"stdout"},
	}
}

// New builds a logger from cfg
func New(cfg Config) (*Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = []string{"stdout"}
	}

	zapCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		Encoding:          "json",
		EncoderConfig:     encoderConfig(cfg.Development),
		OutputPaths:       cfg.OutputPaths,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: !cfg.Development,
	}
	if cfg.Development {
		zapCfg.Encoding = "console"
	} else if cfg.Sample {
		zapCfg.Sampling = &zap.SamplingConfig{Initial: 100, Thereafter: 100}
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: logger.Named("imf")}, nil
}

// NewDefault falls back to a no-op logger if the default config fails
func NewDefault() *Logger {
	logger, err := New(DefaultConfig())
	if err != nil {
		return NewNop()
	}
	return logger
}

// NewDevelopment falls back to a no-op logger on error
func NewDevelopment() *Logger {
	logger, err := New(DevelopmentConfig())
	if err != nil {
		return NewNop()
	}
	return logger
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// ForUser returns a child logger tagged with the OS user id
func (l *Logger) ForUser(userID int32) *zap.Logger {
	return l.With(zap.Int32("user_id", userID))
}

// ForIme tags entries with the IME bundle and its process
func ForIme(logger *zap.Logger, bundleName string, pid int32) *zap.Logger {
	return logger.With(zap.String("ime", bundleName), zap.Int32("ime_pid", pid))
}

// ForClient tags entries with an editor process
func ForClient(logger *zap.Logger, pid, uid int32) *zap.Logger {
	return logger.With(zap.Int32("client_pid", pid), zap.Int32("client_uid", uid))
}

// Text logs the size of user text, never the text itself
func Text(key, s string) zap.Field {
	return zap.Int(key+"_chars", strutil.CountUtf16Chars(s))
}

func parseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}

func encoderConfig(development bool) zapcore.EncoderConfig {
	if development {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncodeDuration = zapcore.StringDurationEncoder
		return cfg
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.MessageKey = "message"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.MillisDurationEncoder
	return cfg
}
