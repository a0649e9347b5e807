// Package logging 提供结构化日志
package logging

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options 日志配置
type Options struct {
	Level       string
	File        string
	MaxSizeMB   int
	MaxBackups  int
	MaxAgeDays  int
	Compress    bool
	Development bool
}

// Logger 带可调级别的日志器
type Logger struct {
	*zap.Logger
	level zap.AtomicLevel
	rot   *lumberjack.Logger
}

// New 创建日志器，设置了 File 时同时写入滚动文件
func New(opts Options) (*Logger, error) {
	level := zap.NewAtomicLevel()
	if err := SetLevel(level, opts.Level); err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encCfg)
	if opts.Development {
		devCfg := zap.NewDevelopmentEncoderConfig()
		devCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(devCfg)
	}

	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level)}
	var rot *lumberjack.Logger
	if opts.File != "" {
		rot = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
		fileEnc := zapcore.NewJSONEncoder(encCfg)
		cores = append(cores, zapcore.NewCore(fileEnc, zapcore.AddSync(rot), level))
	}

	zl := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{Logger: zl, level: level, rot: rot}, nil
}

// SetLevel 运行时调整日志级别
func (l *Logger) SetLevel(name string) error {
	return SetLevel(l.level, name)
}

func (l *Logger) Level() zapcore.Level { return l.level.Level() }

// Close 刷新缓冲并关闭滚动文件
func (l *Logger) Close() error {
	_ = l.Logger.Sync()
	if l.rot != nil {
		return l.rot.Close()
	}
	return nil
}

// SetLevel parses name ("debug", "info", "warn", "error") into level.
// An empty name means info.
func SetLevel(level zap.AtomicLevel, name string) error {
	if name == "" {
		name = "info"
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}
	level.SetLevel(lvl)
	return nil
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

// WithRequestID 在上下文中记录请求ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID 从上下文中获取请求ID
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// For returns logger annotated with the request ID carried by ctx, if any.
func For(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if id := RequestID(ctx); id != "" {
		return logger.With(zap.String("request_id", id))
	}
	return logger
}
