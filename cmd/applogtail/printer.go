package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
)

var levelColors = map[string]*color.Color{
	"trace": color.New(color.FgHiBlack),
	"debug": color.New(color.FgCyan),
	"info":  color.New(color.FgGreen),
	"warn":  color.New(color.FgYellow),
	"error": color.New(color.FgHiRed, color.Bold),
}

var (
	originLabel = color.New(color.FgHiMagenta)
	keyLabel    = color.New(color.Faint)
	invalidLine = color.New(color.FgRed)
)

// Keys printed in the fixed columns of a line.
var fixedKeys = map[string]bool{
	"timestamp": true,
	"level":     true,
	"msg":       true,
	"service":   true,
	"component": true,
}

type printer struct {
	out     io.Writer
	noColor bool
	raw     bool
}

func newPrinter(out io.Writer, noColor bool) *printer {
	return &printer{out: out, noColor: noColor}
}

// printLine formats and prints a single JSON line written by applog.
// Lines that are not JSON objects are printed as they are, marked as invalid.
func (p *printer) printLine(line []byte) {
	if p.raw {
		fmt.Fprintln(p.out, string(line))
		return
	}

	var m map[string]any
	if err := json.Unmarshal(line, &m); err != nil {
		p.colored(invalidLine, "⚠️  Invalid JSON: %s\n", string(line))
		return
	}

	level := str(m["level"])
	fmt.Fprintf(p.out, "%s ", str(m["timestamp"]))
	if c, ok := levelColors[levelBase(level)]; ok {
		p.colored(c, "%-5s", strings.ToUpper(level))
	} else {
		fmt.Fprintf(p.out, "%-5s", strings.ToUpper(level))
	}
	p.colored(originLabel, " [%s/%s]", str(m["service"]), str(m["component"]))
	fmt.Fprintf(p.out, " %s", str(m["msg"]))

	keys := make([]string, 0, len(m))
	for k := range m {
		if !fixedKeys[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		p.colored(keyLabel, " %s=", k)
		fmt.Fprint(p.out, value(m[k]))
	}
	fmt.Fprintln(p.out)
}

func (p *printer) colored(c *color.Color, format string, a ...any) {
	if p.noColor {
		fmt.Fprintf(p.out, format, a...)
		return
	}
	c.Fprintf(p.out, format, a...)
}

// levelBase strips an offset such as "+2" from a level name.
func levelBase(level string) string {
	if i := strings.IndexAny(level, "+-"); i > 0 {
		return level[:i]
	}
	return level
}

// str safely converts an interface{} to string, returning empty string if conversion fails
func str(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func value(v any) string {
	switch x := v.(type) {
	case string:
		if strings.ContainsAny(x, " \t\n\"=") {
			return fmt.Sprintf("%q", x)
		}
		return x
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}
