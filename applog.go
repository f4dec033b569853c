package applog

import (
	"os"
	"path"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
)

// Constants for defaults and well-known keys.
const (
	defaultLogLevel  = LevelNameInfo
	defaultComponent = "main"

	// EnvFilter names the environment variable holding base filter directives.
	// They are applied before the configured level and filters.
	EnvFilter = "APPLOG_FILTER"

	// TargetKey is the attribute key that binds an explicit filter target to a handler.
	TargetKey = "target"

	// Keys injected into every record and span.
	ServiceKey   = "service"
	ComponentKey = "component"
	TimestampKey = "timestamp"
)

// callInfo describes the function a program counter belongs to.
type callInfo struct {
	FuncName    string
	PackageName string
	Filename    string
	LineNo      int
}

// getCallerInfo resolves pc into its function and package.
// The package name is the full import path, e.g. "github.com/apperia-de/applog".
func getCallerInfo(pc uintptr) callInfo {
	if pc == 0 {
		return callInfo{}
	}
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if frame.Function == "" {
		return callInfo{}
	}

	funcName := frame.Function
	lastSlash := strings.LastIndexByte(funcName, '/')
	if lastSlash < 0 {
		lastSlash = 0
	}
	firstDot := strings.IndexByte(funcName[lastSlash:], '.') + lastSlash

	return callInfo{
		FuncName:    funcName[firstDot+1:],
		PackageName: funcName[:firstDot],
		Filename:    path.Base(frame.File),
		LineNo:      frame.Line,
	}
}

// programName returns the name of the running program: the last element of the
// main module path, or the executable's base name when no build info is present.
var programName = sync.OnceValue(func() string {
	if bi, ok := debug.ReadBuildInfo(); ok {
		p := bi.Main.Path
		if p != "" && p != "command-line-arguments" {
			return path.Base(p)
		}
	}
	if len(os.Args) > 0 && os.Args[0] != "" {
		name := filepath.Base(os.Args[0])
		name = strings.TrimSuffix(name, ".exe")
		name = strings.TrimSuffix(name, ".test")
		if name != "" && name != "." {
			return name
		}
	}
	return "app"
})
