package main

import (
	"fmt"
	"os"

	"github.com/eduprompt/eduprompt/pkg/config"
	"github.com/eduprompt/eduprompt/pkg/logger"
)

const (
	// LogFileEnvVar is the environment variable name for log file path
	LogFileEnvVar = "LOG_FILE"
	// LogLevelEnvVar is the environment variable name for log level
	LogLevelEnvVar = "LOG_LEVEL"
	// LogFormatEnvVar is the environment variable name for log format
	LogFormatEnvVar = "LOG_FORMAT"
)

// initLogger initializes logging with priority: CLI flags > env vars >
// config file > defaults. Returns a cleanup function when logging goes
// to a file.
func initLogger(cli *CLI, cfg *config.LoggerConfig) (func(), error) {
	logLevel := firstNonEmpty(cli.LogLevel, os.Getenv(LogLevelEnvVar), cfg.Level, "info")
	logFile := firstNonEmpty(cli.LogFile, os.Getenv(LogFileEnvVar), cfg.File)
	logFormat := firstNonEmpty(cli.LogFormat, os.Getenv(LogFormatEnvVar), cfg.Format, "simple")

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	output := os.Stderr
	var cleanup func()
	if logFile != "" {
		file, cleanupFn, err := logger.OpenLogFile(logFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
		cleanup = cleanupFn
	}

	logger.Init(level, output, logFormat)

	return cleanup, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
