package logger

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// Setup configures the logrus standard logger for CLI use. Environment
// variables override the flags: LOG_MODE (quiet|verbose|trace) and
// LOG_FORMAT (json|text).
func Setup(verbose, jsonLogs, quiet bool) {
	trace := false
	switch os.Getenv("LOG_MODE") {
	case "quiet":
		quiet = true
		verbose = false
	case "verbose":
		verbose = true
		quiet = false
	case "trace":
		trace = true
		quiet = false
	}
	switch os.Getenv("LOG_FORMAT") {
	case "json":
		jsonLogs = true
	case "text":
		jsonLogs = false
	}

	log := logrus.StandardLogger()
	log.SetOutput(os.Stderr)

	switch {
	case trace:
		log.SetLevel(logrus.TraceLevel)
	case quiet:
		log.SetLevel(logrus.ErrorLevel)
	case verbose:
		log.SetLevel(logrus.DebugLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	if jsonLogs {
		log.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	log.SetFormatter(&CLIFormatter{
		DisableColors: !isatty.IsTerminal(os.Stderr.Fd()),
	})
}

// L returns the configured logger.
func L() *logrus.Logger {
	return logrus.StandardLogger()
}

// CLIFormatter renders clean single-line output for CLI applications.
type CLIFormatter struct {
	DisableLevel  bool
	DisableColors bool
}

// Format implements logrus.Formatter.
func (f *CLIFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer

	if !f.DisableLevel {
		levelColor := ""
		resetColor := ""
		if !f.DisableColors {
			switch entry.Level {
			case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
				levelColor = "\033[31m" // Red
			case logrus.WarnLevel:
				levelColor = "\033[33m" // Yellow
			case logrus.InfoLevel:
				levelColor = "\033[36m" // Cyan
			default:
				levelColor = "\033[37m" // White
			}
			resetColor = "\033[0m"
		}
		b.WriteString(levelColor)
		b.WriteString(strings.ToUpper(entry.Level.String()))
		b.WriteString(resetColor)
		b.WriteString(": ")
	}

	b.WriteString(entry.Message)

	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(fmt.Sprintf(" %s=%v", k, entry.Data[k]))
		}
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}
