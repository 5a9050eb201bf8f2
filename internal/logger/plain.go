package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// PlainWriter converts zerolog JSON events into single text lines of the form
//
//	2026-02-26 12:00:05 WARN  [monitor] service is down attempt=2
//
// matching the log format host operators already grep for.
type PlainWriter struct {
	w io.Writer
}

// NewPlainWriter wraps w with plain-line rendering.
func NewPlainWriter(w io.Writer) *PlainWriter {
	return &PlainWriter{w: w}
}

func (p *PlainWriter) Write(b []byte) (int, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(b, &fields); err != nil {
		// Not a zerolog event, pass through untouched.
		return p.w.Write(b)
	}

	ts := renderTime(stringField(fields, zerologTimeKey))
	level := strings.ToUpper(stringField(fields, zerologLevelKey))
	if level == "" {
		level = "???"
	}
	component := stringField(fields, "component")
	message := stringField(fields, zerologMessageKey)

	delete(fields, zerologTimeKey)
	delete(fields, zerologLevelKey)
	delete(fields, zerologMessageKey)
	delete(fields, "component")

	var sb strings.Builder
	sb.WriteString(ts)
	fmt.Fprintf(&sb, " %-5s", level)
	if component != "" {
		fmt.Fprintf(&sb, " [%s]", component)
	}
	if message != "" {
		sb.WriteByte(' ')
		sb.WriteString(message)
	}
	if extra := renderFields(fields); extra != "" {
		sb.WriteByte(' ')
		sb.WriteString(extra)
	}
	sb.WriteByte('\n')

	if _, err := p.w.Write([]byte(sb.String())); err != nil {
		return 0, err
	}
	// Report the original length so zerolog does not treat the
	// re-rendered line as a short write.
	return len(b), nil
}

const (
	zerologTimeKey    = "time"
	zerologLevelKey   = "level"
	zerologMessageKey = "message"
)

func stringField(fields map[string]interface{}, key string) string {
	v, ok := fields[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func renderTime(raw string) string {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return t.Format("2006-01-02 15:04:05")
}

func renderFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		val := fmt.Sprintf("%v", fields[k])
		if strings.ContainsAny(val, " \t\"") {
			val = fmt.Sprintf("%q", val)
		}
		parts = append(parts, k+"="+val)
	}
	return strings.Join(parts, " ")
}
