// Package logger is a thin, colored wrapper around logrus, kept for the
// demo binary's banner/section chrome and leveled log helpers.
package logger

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// ANSI color codes, used only by Section/Banner (logrus owns per-level
// coloring for the leveled helpers below).
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorWhite  = "\033[37m"
	ColorCyan   = "\033[36m"
	ColorGray   = "\033[90m"
)

// Log levels, kept for API compatibility with callers written against the
// old hand-rolled logger.
const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelSuccess
)

var std = logrus.New()

func init() {
	std.SetFormatter(&logrus.TextFormatter{
		ForceColors:     true,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
	std.SetLevel(logrus.InfoLevel)
}

// SetLevel sets the minimum log level using the Level* constants above.
func SetLevel(level int) {
	switch level {
	case LevelDebug:
		std.SetLevel(logrus.DebugLevel)
	case LevelWarn:
		std.SetLevel(logrus.WarnLevel)
	case LevelError:
		std.SetLevel(logrus.ErrorLevel)
	default:
		std.SetLevel(logrus.InfoLevel)
	}
}

// SetTimeFormat sets the timestamp layout used by leveled log lines.
func SetTimeFormat(format string) {
	if f, ok := std.Formatter.(*logrus.TextFormatter); ok {
		f.TimestampFormat = format
	}
}

// ShowTime enables or disables the timestamp prefix on leveled log lines.
func ShowTime(show bool) {
	if f, ok := std.Formatter.(*logrus.TextFormatter); ok {
		f.DisableTimestamp = !show
	}
}

// Debug logs a debug message.
func Debug(format string, args ...interface{}) { std.Debugf(format, args...) }

// Info logs an informational message.
func Info(format string, args ...interface{}) { std.Infof(format, args...) }

// Warn logs a warning message.
func Warn(format string, args ...interface{}) { std.Warnf(format, args...) }

// Error logs an error message.
func Error(format string, args ...interface{}) { std.Errorf(format, args...) }

// Success logs an informational message tagged as a successful outcome.
func Success(format string, args ...interface{}) {
	std.WithField("result", "success").Infof(format, args...)
}

// Fatal logs an error message and exits the process.
func Fatal(format string, args ...interface{}) {
	std.Errorf(format, args...)
	os.Exit(1)
}

// InfoCyan logs an info message flagged as a call-out worth noticing among
// routine info lines.
func InfoCyan(format string, args ...interface{}) {
	std.WithField("highlight", true).Infof(format, args...)
}

// Section prints a boxed section header directly to stdout, bypassing the
// leveled logger: this is terminal chrome, not a log entry.
func Section(title string) {
	border := "═══════════════════════════════════════════════════════════"
	fmt.Printf("\n%s╔%s╗%s\n", ColorCyan, border, ColorReset)
	fmt.Printf("%s║%s %-57s %s║%s\n", ColorCyan, ColorReset, title, ColorCyan, ColorReset)
	fmt.Printf("%s╚%s╝%s\n\n", ColorCyan, border, ColorReset)
}

// Banner prints the application banner directly to stdout.
func Banner(title, version string) {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║   ██████╗ ███████╗██╗     ███╗   ██╗███████╗████████╗    ║
║   ██╔══██╗██╔════╝██║     ████╗  ██║██╔════╝╚══██╔══╝    ║
║   ██████╔╝█████╗  ██║     ██╔██╗ ██║█████╗     ██║       ║
║   ██╔══██╗██╔══╝  ██║     ██║╚██╗██║██╔══╝     ██║       ║
║   ██║  ██║███████╗███████╗██║ ╚████║███████╗   ██║       ║
║   ╚═╝  ╚═╝╚══════╝╚══════╝╚═╝  ╚═══╝╚══════╝   ╚═╝       ║
║                                                           ║
║              %s%-37s%s║
║                    %sVersion %-7s%s                      ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, ColorCyan, title, ColorReset, ColorGreen, version, ColorReset)
}
