package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds the root logger for the given environment. Production gets
// JSON output at info level, everything else gets the console encoder at
// debug. Components derive their own loggers via logger.Named.
func New(env string) (*zap.Logger, error) {
	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
