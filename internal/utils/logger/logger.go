package logger

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type contextKey string

const LoggerKey = contextKey("logger")

var globalLogger *zap.SugaredLogger

// Init builds the global logger from configuration. Operator-facing output
// is console-encoded: the daemon's per-packet work never logs, so the log
// stream is low-volume control-plane narration and is read by humans far
// more often than by collectors.
// Init 根据配置构建全局日志记录器。面向运维的输出采用 console 编码：
// 守护进程的逐包处理从不打日志，日志流是低频的控制面叙述，被人读的次数
// 远多于被采集器消费。
func Init(cfg LoggingConfig) {
	sink := zapcore.AddSync(os.Stdout)
	if cfg.Enabled && cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			globalLogger = zap.NewExample().Sugar()
			globalLogger.Warnf("[WARN]  Failed to create log directory: %v", err)
		}
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}

	level := parseLevel(cfg.Level)
	core := zapcore.NewCore(consoleEncoder(), sink, level)
	globalLogger = zap.New(core, zap.AddCaller()).Named("cerberus").Sugar()

	globalLogger.Infof("[LOG] Logging initialized (Level: %s, Path: %s)", level, cfg.Path)
}

func consoleEncoder() zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	ec.EncodeCaller = zapcore.ShortCallerEncoder
	ec.EncodeDuration = zapcore.StringDurationEncoder
	ec.ConsoleSeparator = "  "
	return zapcore.NewConsoleEncoder(ec)
}

// parseLevel maps the config string to a zap level; unknown strings mean
// info, never a refused startup.
// parseLevel 将配置字符串映射为 zap 级别；未知字符串按 info 处理，绝不
// 因此拒绝启动。
func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Sync flushes any buffered log entries.
// Sync 刷新所有缓存的日志条目。
func Sync() error {
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}

// Get returns the logger carried by the context, falling back to the global
// logger, falling back to a development logger so call sites never get nil.
// Get 返回 Context 携带的 Logger，依次回退到全局 Logger 和开发用 Logger，
// 调用方永远不会拿到 nil。
func Get(ctx context.Context) *zap.SugaredLogger {
	if ctx != nil {
		if logger, ok := ctx.Value(LoggerKey).(*zap.SugaredLogger); ok {
			return logger
		}
	}
	if globalLogger == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			return zap.NewExample().Sugar()
		}
		return l.Sugar()
	}
	return globalLogger
}

// WithContext adds the logger to the context.
// WithContext 将 Logger 添加到 Context。
func WithContext(ctx context.Context, logger *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}
