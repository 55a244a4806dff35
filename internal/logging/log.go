// Package logging builds the supervisor's zap logger and carries it through contexts.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LoggerKey struct{}

func NewContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey{}, logger)
}

func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(LoggerKey{}).(*zap.Logger); ok {
		return logger
	}
	return New(zap.DebugLevel, "", false)
}

// New returns a logger writing to stdout and, when logFileName is set, to a
// rotated file. The file always records debug and above.
func New(level zapcore.LevelEnabler, logFileName string, json bool) *zap.Logger {
	return NewWithWriter(os.Stdout, level, logFileName, json)
}

// NewWithWriter is New with the console output redirected to w.
func NewWithWriter(w io.Writer, level zapcore.LevelEnabler, logFileName string, json bool) *zap.Logger {
	var encoder zapcore.Encoder
	if json {
		encoder = zapcore.NewJSONEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}

	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(w)), level)}

	if logFileName != "" {
		fileLogger := &lumberjack.Logger{
			Filename: logFileName,
			MaxSize:  100,
			MaxAge:   28,
			Compress: true,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(fileLogger), zap.DebugLevel))
	}

	return zap.New(zapcore.NewTee(cores...))
}

// ParseLevel maps a config level name to a zap level.
func ParseLevel(s string) (zapcore.Level, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
