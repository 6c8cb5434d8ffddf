// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package build

import (
	"os"

	"github.com/btcsuite/btclog"
)

// LogType denotes the logging configuration selected by build flags.
type LogType byte

const (
	// LogTypeNone indicates no logging.
	LogTypeNone LogType = iota

	// LogTypeStdOut all logging is written directly to stdout.
	LogTypeStdOut

	// LogTypeDefault logs to both stdout and a given io.PipeWriter.
	LogTypeDefault
)

// String returns a human readable identifier for the logging type.
func (t LogType) String() string {
	switch t {
	case LogTypeNone:
		return "none"
	case LogTypeStdOut:
		return "stdout"
	case LogTypeDefault:
		return "default"
	default:
		return "unknown"
	}
}

// stdOutLogger returns a logger for the given subsystem that writes to
// stdout at the log level selected by build flags. Subsystems do not share
// a backend since all output ends up on stdout anyway.
func stdOutLogger(subsystem string) btclog.Logger {
	backend := btclog.NewBackend(os.Stdout)
	logger := backend.Logger(subsystem)

	level, _ := btclog.LevelFromString(LogLevel)
	logger.SetLevel(level)

	return logger
}

// NewSubLogger constructs a new subsystem logger according to the deployment
// and logging configuration the package was built with. The optional
// genSubLogger constructor creates the logger from the primary log backend;
// when it is nil and no stdout fallback applies, logging is disabled.
func NewSubLogger(subsystem string,
	genSubLogger func(string) btclog.Logger) btclog.Logger {

	// Production builds and development builds running as a daemon both
	// derive subsystem loggers from the primary backend.
	if Deployment == Production ||
		(Deployment == Development && LoggingType == LogTypeDefault) {

		if genSubLogger != nil {
			return genSubLogger(subsystem)
		}
		return btclog.Disabled
	}

	// Development builds running under the test harness write straight to
	// stdout so output interleaves with the test log.
	if Deployment == Development && LoggingType == LogTypeStdOut {
		return stdOutLogger(subsystem)
	}

	return btclog.Disabled
}
