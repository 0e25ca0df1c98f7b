// Package logger provides context-aware structured logging for skillsync
// using logrus. Components attach per-run fields (skill, target, path) to the
// entry carried in the context and retrieve it with G.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Format names a log output format
type Format string

// Supported formats. FormatFmt and FormatText are the same human readable
// output.
const (
	FormatFmt  Format = "fmt"
	FormatText Format = "text"
	FormatJSON Format = "json"
)

var (
	// G is a convenience alias for GetLogger.
	G = GetLogger
	// L is the global entry used when the context carries no logger.
	L = logrus.NewEntry(newLogger())
)

type loggerKey struct{}

// WithLogger attaches an entry to ctx for later retrieval with G.
func WithLogger(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, loggerKey{}, entry.WithContext(ctx))
}

// WithFields returns a context whose logger carries fields on top of the
// ones already present.
func WithFields(ctx context.Context, fields logrus.Fields) context.Context {
	return WithLogger(ctx, GetLogger(ctx).WithFields(fields))
}

// GetLogger returns the entry attached to ctx, or L.
func GetLogger(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return L
	}

	if entry, ok := ctx.Value(loggerKey{}).(*logrus.Entry); ok {
		return entry
	}
	return L.WithContext(ctx)
}

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	setLoggerFormat(l, FormatFmt)
	return l
}

// ParseFormat validates a format name. The empty string selects FormatFmt.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatFmt, nil
	case FormatFmt, FormatText, FormatJSON:
		return f, nil
	default:
		return "", errors.Errorf("unknown log format %q (expected fmt, text or json)", s)
	}
}

func setLoggerFormat(logger *logrus.Logger, format Format) {
	if format == FormatJSON {
		logger.Formatter = &logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "logLevel",
				logrus.FieldKeyMsg:   "message",
			},
			TimestampFormat: time.RFC3339Nano,
		}
		return
	}

	logger.Formatter = &logrus.TextFormatter{
		TimestampFormat: time.RFC3339Nano,
		FullTimestamp:   true,
	}
}

// SetLogLevel sets the level of the global logger
func SetLogLevel(level string) error {
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	L.Logger.SetLevel(logLevel)
	return nil
}

// SetLogFormat sets the format of the global logger. Unknown names fall back
// to the text formatter.
func SetLogFormat(format string) {
	f, err := ParseFormat(format)
	if err != nil {
		f = FormatFmt
	}
	setLoggerFormat(L.Logger, f)
}

// Configure applies level and format to the global logger, rejecting
// unknown values of either.
func Configure(level, format string) error {
	f, err := ParseFormat(format)
	if err != nil {
		return err
	}
	if err := SetLogLevel(level); err != nil {
		return errors.Wrap(err, "invalid log level")
	}
	setLoggerFormat(L.Logger, f)
	return nil
}

// SetLogOutput redirects the global logger
func SetLogOutput(w io.Writer) {
	L.Logger.SetOutput(w)
}
