package lib

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel defines the severity of log messages
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// LogOptions controls where and how log lines are written
type LogOptions struct {
	Level      LogLevel
	JSON       bool   // JSON encoding (server) instead of console encoding (CLI)
	File       string // Optional rotated log file in addition to stderr
	MaxSizeMB  int
	MaxBackups int
}

// Logger provides structured logging for the application
type Logger struct {
	level zap.AtomicLevel
	sugar *zap.SugaredLogger
}

// NewLogger creates a console logger writing to stderr
func NewLogger(level LogLevel) *Logger {
	return NewLoggerWithOptions(LogOptions{Level: level})
}

// NewLoggerWithOptions builds a zap-backed logger from options
func NewLoggerWithOptions(opts LogOptions) *Logger {
	atom := zap.NewAtomicLevelAt(toZapLevel(opts.Level))

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeDuration = zapcore.StringDurationEncoder

	var enc zapcore.Encoder
	if opts.JSON {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.Lock(os.Stderr), atom)}
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
		fileEnc := zapcore.NewJSONEncoder(encCfg)
		cores = append(cores, zapcore.NewCore(fileEnc, zapcore.AddSync(rotator), atom))
	}

	return &Logger{
		level: atom,
		sugar: zap.New(zapcore.NewTee(cores...)).Sugar(),
	}
}

// NewNopLogger returns a logger that discards everything (tests)
func NewNopLogger() *Logger {
	return &Logger{level: zap.NewAtomicLevel(), sugar: zap.NewNop().Sugar()}
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...interface{}) {
	l.sugar.Debugw(message, fields...)
}

// Info logs an informational message
func (l *Logger) Info(message string, fields ...interface{}) {
	l.sugar.Infow(message, fields...)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...interface{}) {
	l.sugar.Warnw(message, fields...)
}

// Error logs an error message
func (l *Logger) Error(message string, fields ...interface{}) {
	l.sugar.Errorw(message, fields...)
}

// With returns a child logger that always carries the given fields
func (l *Logger) With(fields ...interface{}) *Logger {
	return &Logger{level: l.level, sugar: l.sugar.With(fields...)}
}

// Sync flushes buffered log entries
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

// LogOperation logs the start and completion of an operation
func LogOperation(logger *Logger, operation string, fn func() error) error {
	logger.Info(fmt.Sprintf("Starting: %s", operation))
	start := time.Now()

	err := fn()

	duration := time.Since(start)
	if err != nil {
		logger.Error(fmt.Sprintf("Failed: %s", operation), "duration", duration, "error", err)
		return err
	}

	logger.Info(fmt.Sprintf("Completed: %s", operation), "duration", duration)
	return nil
}

// LogRetry logs retry attempts
func LogRetry(logger *Logger, operation string, attempt int, maxAttempts int, err error) {
	// Remove line breaks from operation to prevent log spoofing
	safeOperation := strings.ReplaceAll(operation, "\n", "")
	safeOperation = strings.ReplaceAll(safeOperation, "\r", "")
	logger.Warn(
		fmt.Sprintf("Retry attempt %d/%d for: %s", attempt+1, maxAttempts, safeOperation),
		"error", err,
	)
}

// LogStepStart logs the start of a pipeline stage
func LogStepStart(logger *Logger, stepName string, jobID string) {
	logger.Info(
		"Stage started",
		"stage", stepName,
		"job_id", jobID,
	)
}

// LogStepComplete logs the completion of a pipeline stage
func LogStepComplete(logger *Logger, stepName string, jobID string, hits int, duration time.Duration) {
	logger.Info(
		"Stage completed",
		"stage", stepName,
		"job_id", jobID,
		"hits", hits,
		"duration", duration,
	)
}

// LogStepSkipped logs a stage that was deliberately not run
func LogStepSkipped(logger *Logger, stepName string, jobID string, reason string) {
	logger.Info(
		"Stage skipped",
		"stage", stepName,
		"job_id", jobID,
		"reason", reason,
	)
}

// LogStepFailed logs a failed pipeline stage
func LogStepFailed(logger *Logger, stepName string, jobID string, err error, fatal bool) {
	logger.Error(
		"Stage failed",
		"stage", stepName,
		"job_id", jobID,
		"error", err,
		"fatal", fatal,
	)
}

// LogJobCreated logs job creation
func LogJobCreated(logger *Logger, jobID string, inputPath string) {
	logger.Info(
		"Job created",
		"job_id", jobID,
		"input", inputPath,
	)
}

// LogJobCompleted logs job completion
func LogJobCompleted(logger *Logger, jobID string, records int, duration time.Duration) {
	logger.Info(
		"Job completed",
		"job_id", jobID,
		"records", records,
		"duration", duration,
	)
}

// LogToolCall logs an external tool invocation
func LogToolCall(logger *Logger, tool string, args []string) {
	logger.Debug(
		"Tool call",
		"tool", tool,
		"args", strings.Join(args, " "),
	)
}

// SetLevel changes the log level
func (l *Logger) SetLevel(level LogLevel) {
	l.level.SetLevel(toZapLevel(level))
}

// ParseLogLevel converts a string to LogLevel
func ParseLogLevel(levelStr string) LogLevel {
	switch strings.ToLower(levelStr) {
	case "debug":
		return LogLevelDebug
	case "info":
		return LogLevelInfo
	case "warn":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func toZapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
