// Package logging configures logrus for the server and client binaries.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Setup sets the level and formatter of the standard logger. When file is
// set, output goes to stdout and to the file. The returned func closes it.
func Setup(level, file string) (func() error, error) {
	formatter := new(log.TextFormatter)
	formatter.TimestampFormat = time.RFC3339
	formatter.FullTimestamp = true
	log.SetFormatter(formatter)
	log.SetLevel(ParseLevel(level))

	if file == "" {
		log.SetOutput(os.Stdout)
		return func() error { return nil }, nil
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		return nil, errors.Wrapf(err, "open log file %s", file)
	}
	log.SetOutput(io.MultiWriter(os.Stdout, f))
	return f.Close, nil
}

// ParseLevel maps a level name to a logrus level. Unknown names fall back
// to info.
func ParseLevel(level string) log.Level {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}
