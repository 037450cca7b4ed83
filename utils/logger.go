package utils

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/cppla/rewardledger/config"
)

var (
	// Logger is the global structured logger
	Logger *zap.Logger
	// Sugar is a sugared logger for convenience
	Sugar *zap.SugaredLogger
)

var nopSugar = zap.NewNop().Sugar()

// L returns the global sugared logger, or a no-op logger before InitLogger runs.
func L() *zap.SugaredLogger {
	if Sugar == nil {
		return nopSugar
	}
	return Sugar
}

// InitLogger initializes a zap logger with console + rolling file outputs based on configuration.
func InitLogger(cfg config.AppConfig) error {
	level := parseLevel(cfg.LogLevel)
	encoder := zapcore.NewJSONEncoder(encoderConfig())

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level),
	}
	if cfg.LogPath != "" {
		ws, err := rollingWriter(cfg.LogPath, cfg)
		if err != nil {
			return err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), ws, level))
	}

	opts := []zap.Option{zap.AddCaller()}
	if cfg.LogLevel == "debug" {
		opts = append(opts, zap.Development())
	}
	Logger = zap.New(zapcore.NewTee(cores...), opts...)
	Sugar = Logger.Sugar()
	return nil
}

// NewRollingFileLogger builds a file-only logger for HTTP access logs.
// An empty path logs to stdout instead.
func NewRollingFileLogger(path, level string, maxSizeMB, maxBackups, maxAgeDays int, compress bool) (*zap.Logger, error) {
	ws := zapcore.AddSync(os.Stdout)
	if path != "" {
		var err error
		ws, err = rollingWriter(path, config.AppConfig{
			LogMaxSizeMB:  maxSizeMB,
			LogMaxBackups: maxBackups,
			LogMaxAgeDays: maxAgeDays,
			LogCompress:   compress,
		})
		if err != nil {
			return nil, err
		}
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), ws, parseLevel(level))
	return zap.New(core), nil
}

func rollingWriter(path string, cfg config.AppConfig) (zapcore.WriteSyncer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    nz(cfg.LogMaxSizeMB, 100), // megabytes
		MaxBackups: nz(cfg.LogMaxBackups, 3),
		MaxAge:     nz(cfg.LogMaxAgeDays, 7), // days
		Compress:   cfg.LogCompress,
	}), nil
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     timeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05.000"))
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "dpanic":
		return zapcore.DPanicLevel
	case "panic":
		return zapcore.PanicLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func nz(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
