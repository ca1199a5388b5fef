// Copyright 2016 Aleksandr Demakin. All rights reserved.

package shf

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	mostVerbose  = zapcore.DebugLevel
	leastVerbose = zapcore.FatalLevel
)

var (
	levelOnce sync.Once
	level     = zap.NewAtomicLevelAt(zapcore.WarnLevel)

	logOnce sync.Once
	log     atomic.Pointer[zap.Logger]
)

// atomicLevel returns the process-wide verbosity, which is set from
// SHF_LOG_LEVEL on first use.
func atomicLevel() zap.AtomicLevel {
	levelOnce.Do(func() {
		if l, err := parseLevel(currentConfig().LogLevel); err == nil {
			level.SetLevel(l)
		}
	})
	return level
}

func logger() *zap.Logger {
	logOnce.Do(func() {
		cfg := currentConfig()
		lg, err := newLogger(cfg.LogDevelopment)
		if err != nil {
			lg = zap.NewNop()
		}
		log.CompareAndSwap(nil, lg)
		configMu.RLock()
		cfgErr := configErr
		configMu.RUnlock()
		if cfgErr != nil {
			lg.Warn("failed to load config from the environment, using defaults", zap.Error(cfgErr))
		}
	})
	return log.Load()
}

func newLogger(development bool) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = atomicLevel()
	zapCfg.DisableStacktrace = !development
	return zapCfg.Build(zap.Fields(zap.String("component", "shf")))
}

// SetLogger replaces the package logger, also for hash files attached before the call.
// Verbosity is still controlled by the package, if the logger core was built with Verbosity().
func SetLogger(l *zap.Logger) {
	logOnce.Do(func() {})
	if l == nil {
		l = zap.NewNop()
	}
	log.Store(l)
}

// Verbosity returns the process-wide log level.
// It can be used as a zap.LevelEnabler for loggers passed to SetLogger.
func Verbosity() zap.AtomicLevel {
	return atomicLevel()
}

// SetVerbosity sets the process-wide log level.
func SetVerbosity(l zapcore.Level) {
	atomicLevel().SetLevel(clampLevel(l))
}

// DebugVerbosityMore makes logging more verbose by one level and returns the new level.
// It is safe to call at any time, including before attach.
func DebugVerbosityMore() zapcore.Level {
	return shiftVerbosity(-1)
}

// DebugVerbosityLess makes logging less verbose by one level and returns the new level.
// It is safe to call at any time, including before attach.
func DebugVerbosityLess() zapcore.Level {
	return shiftVerbosity(1)
}

var shiftMu sync.Mutex

func shiftVerbosity(delta int) zapcore.Level {
	shiftMu.Lock()
	defer shiftMu.Unlock()
	lvl := atomicLevel()
	next := clampLevel(lvl.Level() + zapcore.Level(delta))
	lvl.SetLevel(next)
	return next
}

func clampLevel(l zapcore.Level) zapcore.Level {
	if l < mostVerbose {
		return mostVerbose
	}
	if l > leastVerbose {
		return leastVerbose
	}
	return l
}

func parseLevel(s string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return zapcore.WarnLevel, err
	}
	return l, nil
}
