// Package log provides the logging interface used across the reader.
package log

import (
	"fmt"

	rlog "github.com/retroenv/retrogolib/log"
)

type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Fatal(str string)
}

type logger struct {
	l *rlog.Logger
}

// New returns a Logger backed by a retrogolib structured logger. Debug
// enables debug output, quiet limits output to errors.
func New(debug, quiet bool) Logger {
	cfg := rlog.DefaultConfig()
	if debug {
		cfg.Level = rlog.DebugLevel
	} else if quiet {
		cfg.Level = rlog.ErrorLevel
	}
	return Wrap(rlog.NewWithConfig(cfg))
}

// Wrap adapts an existing retrogolib logger, such as the one returned by
// rlog.NewTestLogger.
func Wrap(l *rlog.Logger) Logger {
	return &logger{l: l}
}

func (l *logger) Infof(format string, args ...interface{}) {
	l.l.Info(fmt.Sprintf(format, args...))
}

func (l *logger) Warnf(format string, args ...interface{}) {
	l.l.Warn(fmt.Sprintf(format, args...))
}

func (l *logger) Errorf(format string, args ...interface{}) {
	l.l.Error(fmt.Sprintf(format, args...), nil)
}

func (l *logger) Debugf(format string, args ...interface{}) {
	l.l.Debug(fmt.Sprintf(format, args...))
}

func (l *logger) Fatal(str string) {
	l.l.Fatal(str)
}
