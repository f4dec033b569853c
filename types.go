package applog

// Settings is the resolved configuration a backend is built from.
type Settings struct {
	Level      string   // Severity applied to every target without a directive of its own.
	Filters    []string // Filter directives, each entry may hold several separated by ",".
	Console    bool     // Write a copy of every record to standard output.
	SpanEvents bool     // Write one record per finished span.
}

// DefaultSettings returns info level, no filters and console output enabled.
func DefaultSettings() Settings {
	return Settings{
		Level:   defaultLogLevel,
		Console: true,
	}
}

// Config is the YAML representation of a logging setup.
type Config struct {
	File       string    `yaml:"file"`
	Service    string    `yaml:"service"`
	Component  string    `yaml:"component"`
	LogLevel   string    `yaml:"log_level"` // Global log level used as default.
	Filters    []string  `yaml:"filters"`
	Packages   []Package `yaml:"packages"`
	Console    *bool     `yaml:"console"`
	SpanEvents bool      `yaml:"span_events"`
}

// Package overrides the log level for a single target, usually a Go package path.
type Package struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}
