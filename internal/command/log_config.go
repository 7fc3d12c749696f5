package command

import (
	"github.com/joeycumines/worldgen-panel/internal/config"
	"github.com/joeycumines/worldgen-panel/internal/logging"
)

// resolveLogOptions resolves logging from flags and settings. Flag values
// take precedence; settings are used when a flag is empty.
func resolveLogOptions(flagPath, flagLevel string, s config.Settings) (logging.Options, error) {
	var opts logging.Options

	levelStr := flagLevel
	if levelStr == "" {
		levelStr = s.LogLevel
	}
	level, err := logging.ParseLevel(levelStr)
	if err != nil {
		return opts, err
	}
	opts.Level = level

	opts.BufferSize = s.LogBufferSize
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}

	opts.File = flagPath
	if opts.File == "" {
		opts.File = s.LogFile
	}
	if opts.File != "" {
		opts.MaxSizeMB = s.LogMaxSizeMB
		if opts.MaxSizeMB <= 0 {
			opts.MaxSizeMB = 10
		}
		// zero backups is valid: truncate on rotate
		opts.MaxBackups = s.LogMaxFiles
		if opts.MaxBackups < 0 {
			opts.MaxBackups = 5
		}
	}

	return opts, nil
}
