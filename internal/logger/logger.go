// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package logger provides the process-wide structured logger and its
// command-line flag plumbing.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger. It is usable before Init is called, at the
// default level, writing to stderr.
var Log = newDefaultLogger()

const (
	LevelsFlag        = "log-level"
	LevelsHelp        = "Minimum log level to output."
	LevelsPlaceholder = "(panic|fatal|error|warn|info|debug|trace)"

	FileFlag     = "log-file"
	FileFlagHelp = "Path of the file to write logs to, in addition to stderr."

	ColorFlag         = "log-color"
	ColorFlagHelp     = "Color setting for stderr log output."
	ColorsPlaceholder = "(always|auto|never)"

	defaultLogLevel = logrus.InfoLevel
)

// LogFlags holds the values of the logging command-line flags.
type LogFlags struct {
	LogColor *string
	LogFile  *string
	LogLevel *string
}

var levelColors = map[logrus.Level]*color.Color{
	logrus.PanicLevel: color.New(color.FgRed, color.Bold),
	logrus.FatalLevel: color.New(color.FgRed, color.Bold),
	logrus.ErrorLevel: color.New(color.FgRed),
	logrus.WarnLevel:  color.New(color.FgYellow),
	logrus.InfoLevel:  color.New(color.FgCyan),
	logrus.DebugLevel: color.New(color.FgWhite),
	logrus.TraceLevel: color.New(color.FgHiBlack),
}

// Levels returns the accepted values of the log level flag, in increasing
// order of verbosity.
func Levels() []string {
	levels := []string(nil)
	for _, level := range logrus.AllLevels {
		levels = append(levels, level.String())
	}
	return levels
}

// Colors returns the accepted values of the log color flag.
func Colors() []string {
	return []string{"always", "auto", "never"}
}

type stderrFormatter struct {
	colorize bool
}

func (f *stderrFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	levelText := strings.ToLower(entry.Level.String())
	if f.colorize {
		levelText = levelColors[entry.Level].Sprint(levelText)
	}

	timestamp := entry.Time.Format("2006-01-02T15:04:05Z07:00")
	return []byte(fmt.Sprintf("%s [%s] %s\n", timestamp, levelText, entry.Message)), nil
}

func newDefaultLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(defaultLogLevel)
	log.SetFormatter(&stderrFormatter{colorize: false})
	return log
}

// Init configures the global logger from the provided flags.
func Init(flags *LogFlags) error {
	level := defaultLogLevel
	if flags.LogLevel != nil && *flags.LogLevel != "" {
		parsedLevel, err := logrus.ParseLevel(*flags.LogLevel)
		if err != nil {
			return fmt.Errorf("failed to parse log level (%s):\n%w", *flags.LogLevel, err)
		}
		level = parsedLevel
	}

	colorize := false
	colorSetting := "auto"
	if flags.LogColor != nil && *flags.LogColor != "" {
		colorSetting = *flags.LogColor
	}
	switch colorSetting {
	case "always":
		colorize = true
	case "never":
		colorize = false
	case "auto":
		colorize = !color.NoColor
	default:
		return fmt.Errorf("invalid log color setting (%s)", colorSetting)
	}

	Log.SetLevel(level)
	Log.SetFormatter(&stderrFormatter{colorize: colorize})

	if flags.LogFile != nil && *flags.LogFile != "" {
		logFile, err := os.OpenFile(*flags.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file (%s):\n%w", *flags.LogFile, err)
		}

		Log.SetOutput(io.MultiWriter(os.Stderr, logFile))
	}

	return nil
}

// InitBestEffort configures the global logger from the provided flags,
// downgrading any initialization failure to a warning.
func InitBestEffort(flags *LogFlags) {
	err := Init(flags)
	if err != nil {
		Log.Warnf("Failed to fully configure logging: %v", err)
	}
}
