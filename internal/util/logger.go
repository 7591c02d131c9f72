package util

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger      atomic.Pointer[zap.Logger]
	defaultOnce sync.Once
)

// NewLogger builds a zap logger for the given environment
func NewLogger(env string) (*zap.Logger, error) {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	l, err := config.Build()
	if err != nil {
		return nil, err
	}
	return l.With(zap.String("service", "upsell-service")), nil
}

// InitLogger initializes the global logger
func InitLogger(env string) error {
	l, err := NewLogger(env)
	if err != nil {
		return err
	}

	logger.Store(l)
	zap.ReplaceGlobals(l)
	return nil
}

// GetLogger returns the global logger. Before InitLogger runs it returns a
// development logger built once and shared by every caller.
func GetLogger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	defaultOnce.Do(func() {
		l, err := zap.NewDevelopment()
		if err != nil {
			l = zap.NewNop()
		}
		logger.CompareAndSwap(nil, l)
	})
	return logger.Load()
}

// SyncLogger flushes any buffered log entries
func SyncLogger() {
	if l := logger.Load(); l != nil {
		_ = l.Sync()
	}
}
