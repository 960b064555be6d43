package logging

import (
	"github.com/pion/logging"
	log "github.com/sirupsen/logrus"
)

// PionFactory sends pion's ICE, DTLS and SCTP logs through logrus.
type PionFactory struct {
	// Level caps pion's verbosity below the process level. ICE is chatty.
	Level log.Level
}

func (f PionFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{entry: log.WithField("pion", scope), level: f.Level}
}

type pionLogger struct {
	entry *log.Entry
	level log.Level
}

func (l *pionLogger) logf(level log.Level, format string, args ...any) {
	if level > l.level {
		return
	}
	l.entry.Logf(level, format, args...)
}

func (l *pionLogger) Trace(msg string) { l.logf(log.TraceLevel, "%s", msg) }
func (l *pionLogger) Tracef(format string, args ...any) { l.logf(log.TraceLevel, format, args...) }
func (l *pionLogger) Debug(msg string) { l.logf(log.DebugLevel, "%s", msg) }
func (l *pionLogger) Debugf(format string, args ...any) { l.logf(log.DebugLevel, format, args...) }
func (l *pionLogger) Info(msg string) { l.logf(log.InfoLevel, "%s", msg) }
func (l *pionLogger) Infof(format string, args ...any) { l.logf(log.InfoLevel, format, args...) }
func (l *pionLogger) Warn(msg string) { l.logf(log.WarnLevel, "%s", msg) }
func (l *pionLogger) Warnf(format string, args ...any) { l.logf(log.WarnLevel, format, args...) }
func (l *pionLogger) Error(msg string) { l.logf(log.ErrorLevel, "%s", msg) }
func (l *pionLogger) Errorf(format string, args ...any) { l.logf(log.ErrorLevel, format, args...) }
