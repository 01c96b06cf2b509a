package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger.
// level: "debug", "info", "warn", "error" (default "info").
// format: "json" or "console" (default "json").
// service is attached to every entry when set.
func New(level, format, service string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	var config zap.Config
	if format == "console" {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	base, err := config.Build()
	if err != nil {
		return nil, err
	}
	if service != "" {
		base = base.With(zap.String("service_name", service))
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		base = base.With(zap.String("hostname", hostname))
	}
	return base, nil
}

// Audit records an admin action on the "audit" logger.
func Audit(l *zap.Logger, userID, action, details string) {
	l.Named("audit").Info(action,
		zap.String("user_id", userID),
		zap.String("details", details),
	)
}
