// Package logging builds the process logger and its terminal formatter.
package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// priorityFields are printed first, in this order, and highlighted.
var priorityFields = map[string]int{
	"operation_id": 1,
	"tx_hash":      2,
	"contract":     3,
	"method":       4,
	"nonce":        5,
	"kind":         6,
	"error":        7,
}

// ColoredJSONFormatter prints one line per entry: time, level, message and
// then the fields as key=value with JSON-encoded values.
type ColoredJSONFormatter struct {
	TimestampFormat string
	SortingFunc     func([]string) []string
	// DisableColors prints plain text, e.g. when output is not a terminal
	DisableColors bool
}

func NewColoredJSONFormatter() *ColoredJSONFormatter {
	return &ColoredJSONFormatter{
		TimestampFormat: time.RFC3339,
		SortingFunc:     defaultFieldSorting,
	}
}

func (f *ColoredJSONFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	if f.SortingFunc != nil {
		keys = f.SortingFunc(keys)
	} else {
		sort.Strings(keys)
	}

	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	paint := func(c *color.Color, s string) string {
		if f.DisableColors {
			return s
		}
		return c.Sprint(s)
	}

	levelColor := getLevelColor(entry.Level)
	b.WriteString(paint(color.New(color.FgYellow), entry.Time.Format(f.TimestampFormat)))
	b.WriteByte(' ')
	b.WriteString(paint(levelColor, fmt.Sprintf("%-7s", strings.ToUpper(entry.Level.String()))))
	b.WriteByte(' ')
	b.WriteString(paint(levelColor, entry.Message))

	for _, k := range keys {
		fieldColor := color.New(color.FgCyan)
		if _, important := priorityFields[k]; important {
			fieldColor = color.New(color.FgGreen)
		}

		b.WriteByte(' ')
		b.WriteString(paint(fieldColor, k+"="))
		b.WriteString(paint(color.New(color.FgWhite), formatValue(entry.Data[k])))
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func formatValue(v interface{}) string {
	switch v := v.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case error:
		return fmt.Sprintf("%q", v.Error())
	case fmt.Stringer:
		return fmt.Sprintf("%q", v.String())
	}

	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(encoded)
}

func getLevelColor(level logrus.Level) *color.Color {
	switch level {
	case logrus.DebugLevel, logrus.TraceLevel:
		return color.New(color.FgBlue)
	case logrus.InfoLevel:
		return color.New(color.FgGreen)
	case logrus.WarnLevel:
		return color.New(color.FgYellow)
	case logrus.ErrorLevel:
		return color.New(color.FgRed)
	case logrus.FatalLevel, logrus.PanicLevel:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgWhite)
	}
}

func defaultFieldSorting(keys []string) []string {
	sort.Slice(keys, func(i, j int) bool {
		iPriority := priorityFields[keys[i]]
		jPriority := priorityFields[keys[j]]
		if iPriority != 0 && jPriority != 0 {
			return iPriority < jPriority
		}
		if iPriority != 0 {
			return true
		}
		if jPriority != 0 {
			return false
		}
		return keys[i] < keys[j]
	})
	return keys
}

// NewLogger builds the process logger. format is "json" for machine output
// or "color" for terminals; level is any logrus level name.
func NewLogger(level, format string, out io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	if out == nil {
		out = os.Stdout
	}
	logger.SetOutput(out)

	switch strings.ToLower(format) {
	case "", "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	case "color", "text":
		formatter := NewColoredJSONFormatter()
		formatter.DisableColors = color.NoColor
		logger.SetFormatter(formatter)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	if level != "" {
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		logger.SetLevel(parsed)
	}

	return logger, nil
}
