package main

import (
	"github.com/sirupsen/logrus"
)

// cliLogger wraps logrus for operator-facing output. Structured engine logs
// go through the zap service; this one keeps command output readable on a
// terminal.
type cliLogger struct {
	*logrus.Logger
}

func newCLILogger(level string) (*cliLogger, error) {
	l := &cliLogger{logrus.New()}
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	l.SetLevel(parsed)
	return l, nil
}

// Failure logs an error with context and returns it for the command to
// propagate.
func (l *cliLogger) Failure(err error, context string) error {
	l.WithError(err).Error(context)
	return err
}
