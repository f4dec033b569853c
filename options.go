package applog

// Directives produced by the named framework shortcuts.
const (
	FilterRocketOff = "rocket=off"
	FilterActixOff  = "actix_web=off"
	FilterActixWarn = "actix_web=warn"
	FilterHyperOff  = "hyper=off"
	FilterHyperWarn = "hyper=warn"
	FilterTokioOff  = "tokio=off"
	FilterTokioWarn = "tokio=warn"
)

type optionKind int

const (
	optLevel optionKind = iota
	optFilter
	optConsole
)

// Option adjusts exactly one of the three values resolved into Settings:
// the severity, the filter directive list or the console flag.
type Option struct {
	kind    optionKind
	value   string
	console bool
}

// Severity options. The last one applied wins.
var (
	WithTrace = Option{kind: optLevel, value: LevelNameTrace}
	WithDebug = Option{kind: optLevel, value: LevelNameDebug}
	WithInfo  = Option{kind: optLevel, value: LevelNameInfo}
	WithWarn  = Option{kind: optLevel, value: LevelNameWarn}
	WithError = Option{kind: optLevel, value: LevelNameError}
)

// Framework filter shortcuts. Each one appends its directive.
var (
	WithRocketOff = Option{kind: optFilter, value: FilterRocketOff}
	WithActixOff  = Option{kind: optFilter, value: FilterActixOff}
	WithActixWarn = Option{kind: optFilter, value: FilterActixWarn}
	WithHyperOff  = Option{kind: optFilter, value: FilterHyperOff}
	WithHyperWarn = Option{kind: optFilter, value: FilterHyperWarn}
	WithTokioOff  = Option{kind: optFilter, value: FilterTokioOff}
	WithTokioWarn = Option{kind: optFilter, value: FilterTokioWarn}
)

// Console toggles. The last one applied wins.
var (
	WithConsole    = Option{kind: optConsole, console: true}
	WithoutConsole = Option{kind: optConsole, console: false}
)

// WithFilter appends an arbitrary filter directive. It is not validated until the backend is built.
func WithFilter(directive string) Option {
	return Option{kind: optFilter, value: directive}
}

// Apply mutates the accumulator o is about.
func (o Option) Apply(level *string, filters *[]string, console *bool) {
	switch o.kind {
	case optLevel:
		*level = o.value
	case optFilter:
		*filters = append(*filters, o.value)
	case optConsole:
		*console = o.console
	}
}

func (o Option) String() string {
	switch o.kind {
	case optConsole:
		if o.console {
			return "console"
		}
		return "no-console"
	default:
		return o.value
	}
}

// Resolve applies opts in order on top of the defaults: info level, no filters, console on.
func Resolve(opts ...Option) Settings {
	s := DefaultSettings()
	for _, o := range opts {
		o.Apply(&s.Level, &s.Filters, &s.Console)
	}
	return s
}
