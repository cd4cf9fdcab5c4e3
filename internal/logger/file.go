package logger

import (
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultLogPath   = "logs/dispatch.log"
	defaultMaxSizeMB = 100
	defaultMaxFiles  = 5
)

// FileConfig holds configuration for file-based log output with rotation.
type FileConfig struct {
	Path      string
	MaxSizeMB int
	// MaxFiles is the number of rotated files to retain.
	MaxFiles int
}

// NewFileWriter returns a size-rotated log file. Rotated files are gzip
// compressed. Zero fields take package defaults.
func NewFileWriter(cfg FileConfig) *lumberjack.Logger {
	if cfg.Path == "" {
		cfg.Path = defaultLogPath
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = defaultMaxSizeMB
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = defaultMaxFiles
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxFiles,
		Compress:   true,
	}
}
