package logging

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const appName = "dictator"

// New creates a logger that writes to the console and a rotated log file.
func New() zerolog.Logger {
	return NewWithLevel("info")
}

// NewWithLevel is New with the minimum level parsed from level. Unknown
// levels fall back to info.
func NewWithLevel(level string) zerolog.Logger {
	return newLogger(os.Stderr, fileWriter(LogPath()), level)
}

func newLogger(console io.Writer, file io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	multi := zerolog.MultiLevelWriter(
		zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339},
		file,
	)

	return zerolog.New(multi).Level(lvl).With().Timestamp().Caller().Logger()
}

func fileWriter(path string) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
}

// LogPath returns the platform-specific log file path.
func LogPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Logs"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/state"
		}
	}

	return filepath.Join(base, appName, appName+".log")
}
