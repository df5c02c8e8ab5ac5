package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"
)

// Fields carries structured context attached to a log line.
type Fields map[string]interface{}

// Logger is the logging seam of the client. The default implementation
// writes through go-zero's logx; tests may capture lines instead.
type Logger interface {
	Debug(ctx context.Context, msg string, fields Fields)
	Info(ctx context.Context, msg string, fields Fields)
	Warn(ctx context.Context, msg string, fields Fields)
	Error(ctx context.Context, err error, fields Fields)
}

// NewLogger returns the logx-backed Logger and applies the configured level
// process-wide.
func NewLogger(level string) Logger {
	logx.SetLevel(logLevel(level))
	return logxLogger{}
}

type logxLogger struct{}

func (logxLogger) Debug(ctx context.Context, msg string, fields Fields) {
	logx.WithContext(ctx).Debug(formatLine(msg, fields))
}

func (logxLogger) Info(ctx context.Context, msg string, fields Fields) {
	logx.WithContext(ctx).Info(formatLine(msg, fields))
}

func (logxLogger) Warn(ctx context.Context, msg string, fields Fields) {
	logx.WithContext(ctx).Slow(formatLine(msg, fields))
}

func (logxLogger) Error(ctx context.Context, err error, fields Fields) {
	logx.WithContext(ctx).Error(formatLine(err.Error(), fields))
}

func logLevel(level string) uint32 {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logx.DebugLevel
	case "error":
		return logx.ErrorLevel
	case "severe", "fatal":
		return logx.SevereLevel
	default:
		return logx.InfoLevel
	}
}

// formatLine renders fields in key order so repeated events produce stable,
// greppable lines.
func formatLine(msg string, fields Fields) string {
	if len(fields) == 0 {
		return msg
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(msg)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	return b.String()
}
