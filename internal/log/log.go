// Package log provides the process-wide structured logger.
package log

import (
	"sync"
)

type Logger interface {
	Print(args ...interface{})
	Printf(format string, args ...interface{})

	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	Panic(args ...interface{})
	Panicf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

var (
	once   sync.Once
	mu     sync.RWMutex
	logger Logger = newDefaultLogger()
)

// GetLogger returns the process logger. Before Init it writes info and
// above to stderr with the default pattern.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Init configures the process logger once. Later calls are ignored.
func Init(cfg *LoggerConfig) error {
	var err error
	once.Do(func() {
		var l Logger
		l, err = initByConfig(cfg)
		if err != nil {
			return
		}
		mu.Lock()
		logger = l
		mu.Unlock()
	})
	return err
}

// Component returns the process logger tagged with a component name.
func Component(name string) Logger {
	return GetLogger().WithField("component", name)
}
