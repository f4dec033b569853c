package applog

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Severity names accepted in levels and filter directives.
const (
	LevelNameTrace = "trace"
	LevelNameDebug = "debug"
	LevelNameInfo  = "info"
	LevelNameWarn  = "warn"
	LevelNameError = "error"
	LevelNameOff   = "off"
)

// LevelTrace sits below slog.LevelDebug the same distance slog keeps between its own levels.
const LevelTrace = slog.LevelDebug - 4

// LevelOff is above every level a record can carry, so a directive using it silences its target.
const LevelOff = slog.Level(math.MaxInt32)

var levelMap = map[string]slog.Level{
	LevelNameTrace: LevelTrace,
	LevelNameDebug: slog.LevelDebug,
	LevelNameInfo:  slog.LevelInfo,
	LevelNameWarn:  slog.LevelWarn,
	LevelNameError: slog.LevelError,
}

// Numeric verbosity, 0 being off and 5 being trace.
var verbosityMap = []slog.Level{LevelOff, slog.LevelError, slog.LevelWarn, slog.LevelInfo, slog.LevelDebug, LevelTrace}

var levelRegexp = regexp.MustCompile(`^([a-z]+)(?:([+\-])(\d+))?$`)

// ParseLevel converts a level name to its slog.Level representation.
// Can be one of ["trace", "debug", "info", "warn", "error", "off"] in any case, or a verbosity
// digit from 0 (off) to 5 (trace).
// Additionally, it accepts the named levels +/- an integer for levels not defined by the log/slog package.
// Example: debug-2 or error+4
func ParseLevel(level string) (slog.Level, error) {
	s := strings.ToLower(strings.TrimSpace(level))
	if s == "" {
		return 0, fmt.Errorf("empty level")
	}
	if s == LevelNameOff {
		return LevelOff, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n >= len(verbosityMap) {
			return 0, fmt.Errorf("verbosity %d out of range 0-%d", n, len(verbosityMap)-1)
		}
		return verbosityMap[n], nil
	}

	matches := levelRegexp.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("unknown level %q", level)
	}
	lvl, ok := levelMap[matches[1]]
	if !ok {
		return 0, fmt.Errorf("unknown level %q", level)
	}
	if matches[3] != "" {
		nb, err := strconv.Atoi(matches[3])
		if err != nil {
			return 0, fmt.Errorf("level offset in %q: %w", level, err)
		}
		if matches[2] == "-" {
			return lvl - slog.Level(nb), nil
		}
		return lvl + slog.Level(nb), nil
	}
	return lvl, nil
}

// LevelName renders lvl the way it appears in log lines and directives: lower case,
// with an offset from the nearest lower named level when it has none of its own.
func LevelName(lvl slog.Level) string {
	if lvl >= LevelOff {
		return LevelNameOff
	}
	base, name := LevelTrace, LevelNameTrace
	for _, n := range []string{LevelNameDebug, LevelNameInfo, LevelNameWarn, LevelNameError} {
		if lvl >= levelMap[n] {
			base, name = levelMap[n], n
		}
	}
	switch {
	case lvl == base:
		return name
	case lvl > base:
		return fmt.Sprintf("%s+%d", name, int(lvl-base))
	default:
		return fmt.Sprintf("%s-%d", name, int(base-lvl))
	}
}

// Directive is a single filter rule. An empty Target sets the default level.
type Directive struct {
	Target string
	Level  slog.Level
}

func (d Directive) String() string {
	if d.Target == "" {
		return LevelName(d.Level)
	}
	return d.Target + "=" + LevelName(d.Level)
}

// ParseDirective parses "target=level" or a bare "level".
func ParseDirective(s string) (Directive, error) {
	s = strings.TrimSpace(s)
	target, level, found := strings.Cut(s, "=")
	if !found {
		lvl, err := ParseLevel(s)
		if err != nil {
			return Directive{}, err
		}
		return Directive{Level: lvl}, nil
	}

	target = strings.TrimSpace(target)
	if target == "" {
		return Directive{}, fmt.Errorf("missing target before %q", "=")
	}
	if strings.ContainsAny(target, " \t\r\n=,") {
		return Directive{}, fmt.Errorf("invalid target %q", target)
	}
	lvl, err := ParseLevel(level)
	if err != nil {
		return Directive{}, err
	}
	return Directive{Target: target, Level: lvl}, nil
}

// Filter decides which records reach the sinks: a default level plus per-target overrides.
// A Filter is built before a backend is installed and is read-only afterwards.
type Filter struct {
	level   slog.Level
	targets map[string]slog.Level
}

// NewFilter returns a Filter admitting info and above from every target.
func NewFilter() *Filter {
	return &Filter{level: slog.LevelInfo, targets: map[string]slog.Level{}}
}

// Add applies d; the last directive for a given target wins.
func (f *Filter) Add(d Directive) *Filter {
	if d.Target == "" {
		f.level = d.Level
		return f
	}
	f.targets[d.Target] = d.Level
	return f
}

// AddDirectives splits s on ",", skips blank entries and adds every directive.
// Nothing is added if any entry fails to parse.
func (f *Filter) AddDirectives(s string) error {
	var ds []Directive
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := ParseDirective(part)
		if err != nil {
			return &ConfigError{Kind: KindDirective, Value: part, Err: err}
		}
		ds = append(ds, d)
	}
	for _, d := range ds {
		f.Add(d)
	}
	return nil
}

// Level returns the default level applied to targets without a directive of their own.
func (f *Filter) Level() slog.Level {
	return f.level
}

// Enabled reports whether a record at lvl from target passes the filter.
// The longest matching target directive wins; without one the default level applies.
func (f *Filter) Enabled(target string, lvl slog.Level) bool {
	threshold, best := f.level, -1
	for t, l := range f.targets {
		if len(t) > best && targetMatches(t, target) {
			threshold, best = l, len(t)
		}
	}
	return lvl >= threshold
}

// MinLevel returns the lowest level admitted for any target.
func (f *Filter) MinLevel() slog.Level {
	lowest := f.level
	for _, l := range f.targets {
		if l < lowest {
			lowest = l
		}
	}
	return lowest
}

func (f *Filter) String() string {
	ds := []string{LevelName(f.level)}
	keys := make([]string, 0, len(f.targets))
	for t := range f.targets {
		keys = append(keys, t)
	}
	sort.Strings(keys)
	for _, t := range keys {
		ds = append(ds, Directive{Target: t, Level: f.targets[t]}.String())
	}
	return strings.Join(ds, ",")
}

// targetMatches reports whether directive target t covers record target r,
// either exactly or as a package path or dotted name prefix.
func targetMatches(t, r string) bool {
	if !strings.HasPrefix(r, t) {
		return false
	}
	if len(r) == len(t) {
		return true
	}
	c := r[len(t)]
	return c == '/' || c == '.'
}
