package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"fwrelease/internal/config"
	"fwrelease/internal/security"
	"fwrelease/pkg/fileutil"
)

var (
	configFile string
	logFile    string
)

// loadConfig loads --config, else the first fwrelease.yaml on the default
// search paths, else built-in defaults rooted at the working directory.
func loadConfig() (*config.Config, error) {
	path := configFile
	if path == "" {
		path = fileutil.FindConfig(config.ConfigFileName)
	}
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		return config.Default(wd), nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// setupLogging opens logPath for appending and returns a JSON logger on it.
// With echo set records also go to stdout. The caller closes the file.
func setupLogging(logPath string, echo bool) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, security.PermLogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	var w io.Writer = file
	if echo {
		w = io.MultiWriter(os.Stdout, file)
	}
	logger := slog.New(slog.NewJSONHandler(w, nil)).With("pid", os.Getpid())
	return logger, file, nil
}

func getEnvOrDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// getEnvOrDefaultInt ignores values that are not integers.
func getEnvOrDefaultInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}
