// Package common holds the shared domain types and the logging
// infrastructure for the dependency graph service. Error-level output is
// routed to stderr so container platforms can treat the streams differently;
// everything else goes to stdout.
package common

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes formatted log lines to stderr or stdout based on
// their level marker. It operates on the final formatted output, so it works
// with both the text and JSON formatters.
type OutputSplitter struct{}

// Write implements io.Writer. Lines containing an error-level marker go to
// stderr, everything else to stdout.
func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte(`level=error`)) || bytes.Contains(p, []byte(`"level":"error"`)) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the global logger instance. All packages in the service log
// through it so formatting and routing stay uniform.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}

// ConfigureLogger applies the configured level and format to the global
// logger. Unknown levels fall back to info.
func ConfigureLogger(level, format string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Logger.SetLevel(lvl)

	if format == "json" {
		Logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
