package logger

import (
    "context"
    "fmt"
    "os"
    "time"

    "github.com/sirupsen/logrus"
    "gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps *logrus.Logger with a set of fields that get merged into
// every entry, so call sites can build up context (lead_id, caller_id, ...)
// without passing a logger down through every function signature.
type Logger struct {
    *logrus.Logger
    fields logrus.Fields
}

var defaultLogger *Logger

type Config struct {
    Level  string
    Format string
    Output string
    File   FileConfig
    Fields map[string]interface{}
}

type FileConfig struct {
    Enabled    bool
    Path       string
    MaxSize    int
    MaxBackups int
    MaxAge     int
    Compress   bool
}

// contextKey namespaces the keys WithContext looks for, so this package
// never collides with a caller's own context.WithValue keys.
type contextKey string

const (
    requestIDKey contextKey = "request_id"
    leadIDKey    contextKey = "lead_id"
    callerIDKey  contextKey = "caller_id"
)

func Init(cfg Config) error {
    log := logrus.New()

    level, err := logrus.ParseLevel(cfg.Level)
    if err != nil {
        return fmt.Errorf("invalid log level: %w", err)
    }
    log.SetLevel(level)

    switch cfg.Format {
    case "json":
        log.SetFormatter(&logrus.JSONFormatter{
            TimestampFormat: time.RFC3339Nano,
            FieldMap: logrus.FieldMap{
                logrus.FieldKeyTime:  "@timestamp",
                logrus.FieldKeyLevel: "level",
                logrus.FieldKeyMsg:   "message",
            },
        })
    default:
        log.SetFormatter(&logrus.TextFormatter{
            FullTimestamp:   true,
            TimestampFormat: "2006-01-02 15:04:05.000",
        })
    }

    if cfg.File.Enabled {
        log.SetOutput(&lumberjack.Logger{
            Filename:   cfg.File.Path,
            MaxSize:    cfg.File.MaxSize,
            MaxBackups: cfg.File.MaxBackups,
            MaxAge:     cfg.File.MaxAge,
            Compress:   cfg.File.Compress,
        })
    } else {
        log.SetOutput(os.Stdout)
    }

    fields := logrus.Fields{
        "app": "lead-router-core",
        "pid": os.Getpid(),
    }
    for k, v := range cfg.Fields {
        fields[k] = v
    }

    defaultLogger = &Logger{Logger: log, fields: fields}
    return nil
}

// WithContext pulls request_id/lead_id/caller_id out of ctx, when a caller
// has set them via context.WithValue using this package's own key type, and
// attaches whichever are present to the returned logger.
func WithContext(ctx context.Context) *Logger {
    if defaultLogger == nil {
        panic("logger not initialized")
    }

    fields := logrus.Fields{}
    if reqID := ctx.Value(requestIDKey); reqID != nil {
        fields["request_id"] = reqID
    }
    if leadID := ctx.Value(leadIDKey); leadID != nil {
        fields["lead_id"] = leadID
    }
    if callerID := ctx.Value(callerIDKey); callerID != nil {
        fields["caller_id"] = callerID
    }

    return defaultLogger.WithFields(fields)
}

func (l *Logger) WithFields(fields logrus.Fields) *Logger {
    merged := make(logrus.Fields, len(l.fields)+len(fields))
    for k, v := range l.fields {
        merged[k] = v
    }
    for k, v := range fields {
        merged[k] = v
    }

    return &Logger{Logger: l.Logger, fields: merged}
}

func (l *Logger) WithError(err error) *Logger {
    return l.WithFields(logrus.Fields{
        "error":      err.Error(),
        "error_type": fmt.Sprintf("%T", err),
    })
}

// entry attaches l's accumulated fields to a logrus entry, so the level
// methods below emit them.
func (l *Logger) entry() *logrus.Entry {
    return l.Logger.WithFields(l.fields)
}

func (l *Logger) Debug(args ...interface{}) { l.entry().Debug(args...) }
func (l *Logger) Info(args ...interface{})  { l.entry().Info(args...) }
func (l *Logger) Warn(args ...interface{})  { l.entry().Warn(args...) }
func (l *Logger) Error(args ...interface{}) { l.entry().Error(args...) }
func (l *Logger) Fatal(args ...interface{}) { l.entry().Fatal(args...) }

func Debug(args ...interface{}) {
    defaultLogger.WithFields(defaultLogger.fields).Debug(args...)
}

func Info(args ...interface{}) {
    defaultLogger.WithFields(defaultLogger.fields).Info(args...)
}

func Warn(args ...interface{}) {
    defaultLogger.WithFields(defaultLogger.fields).Warn(args...)
}

func Error(args ...interface{}) {
    defaultLogger.WithFields(defaultLogger.fields).Error(args...)
}

func Fatal(args ...interface{}) {
    defaultLogger.WithFields(defaultLogger.fields).Fatal(args...)
}

func WithField(key string, value interface{}) *Logger {
    return defaultLogger.WithFields(logrus.Fields{key: value})
}

func WithError(err error) *Logger {
    return defaultLogger.WithError(err)
}
