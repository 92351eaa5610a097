// internal/logging/logging.go
package logging

import (
	"go.uber.org/zap"
)

// New builds the process logger. Development mode logs human-readable
// output at debug level; everything else logs JSON at info level.
func New(service string, development bool) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", service)), nil
}
