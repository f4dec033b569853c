package applog

import (
	"errors"
	"fmt"
)

// ErrAlreadyInstalled is returned by Install when a backend is already in place.
var ErrAlreadyInstalled = errors.New("applog: backend already installed")

// ConfigErrorKind tells which part of the configuration was rejected.
type ConfigErrorKind int

const (
	KindLevel ConfigErrorKind = iota + 1
	KindDirective
	KindEnv
	KindFile
)

func (k ConfigErrorKind) String() string {
	switch k {
	case KindLevel:
		return "log level"
	case KindDirective:
		return "filter directive"
	case KindEnv:
		return EnvFilter + " filter"
	case KindFile:
		return "log file"
	default:
		return "configuration"
	}
}

// ConfigError reports a misconfiguration found while building a backend.
// Value holds the offending level, directive, environment value or file path.
type ConfigError struct {
	Kind  ConfigErrorKind
	Value string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Kind == KindFile {
		return fmt.Sprintf("applog: failed to open log file %q: %v", e.Value, e.Err)
	}
	return fmt.Sprintf("applog: invalid %s %q: %v", e.Kind, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
