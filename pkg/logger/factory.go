package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Environment names accepted by WithEnvironment
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Format is the output encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config holds overrides read from the environment. Empty values keep the
// environment preset.
type Config struct {
	Level  string `env:"LOG_LEVEL"`
	Format string `env:"LOG_FORMAT"`
}

// Option configures New
type Option func(*options)

type options struct {
	level      slog.Level
	format     Format
	output     io.Writer
	attrs      []slog.Attr
	extractors []ContextExtractor
	addSource  bool
}

type preset struct {
	level  slog.Level
	format Format
}

var presets = map[string]preset{
	EnvDevelopment: {level: slog.LevelDebug, format: FormatText},
	EnvStaging:     {level: slog.LevelInfo, format: FormatJSON},
	EnvProduction:  {level: slog.LevelInfo, format: FormatJSON},
}

// WithEnvironment applies the preset for env and tags records with service and
// env. Unknown environments get the development preset.
func WithEnvironment(env, service string) Option {
	return func(o *options) {
		p, ok := presets[env]
		if !ok {
			env = EnvDevelopment
			p = presets[env]
		}
		o.level = p.level
		o.format = p.format
		if service != "" {
			o.attrs = append(o.attrs, slog.String("service", service))
		}
		o.attrs = append(o.attrs, slog.String("env", env))
	}
}

// WithConfig applies LOG_LEVEL and LOG_FORMAT overrides. Invalid values are
// ignored; call Config.Validate to reject them at startup.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		if lvl, err := ParseLevel(cfg.Level); err == nil && cfg.Level != "" {
			o.level = lvl
		}
		if f := Format(strings.ToLower(cfg.Format)); f == FormatJSON || f == FormatText {
			o.format = f
		}
	}
}

// Validate reports unknown level or format values
func (c Config) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	switch Format(strings.ToLower(c.Format)) {
	case "", FormatJSON, FormatText:
		return nil
	}
	return fmt.Errorf("unknown LOG_FORMAT %q", c.Format)
}

// ParseLevel accepts debug, info, warn and error in any case. An empty string
// is info.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown LOG_LEVEL %q", s)
	}
	return lvl, nil
}

func WithLevel(l slog.Level) Option {
	return func(o *options) { o.level = l }
}

func WithJSONFormatter() Option {
	return func(o *options) { o.format = FormatJSON }
}

func WithTextFormatter() Option {
	return func(o *options) { o.format = FormatText }
}

// WithOutput redirects records; nil keeps stdout
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.output = w
		}
	}
}

// WithAttr adds static attributes to every record
func WithAttr(attrs ...slog.Attr) Option {
	return func(o *options) { o.attrs = append(o.attrs, attrs...) }
}

// WithSource adds the caller position to records
func WithSource() Option {
	return func(o *options) { o.addSource = true }
}

// WithContextExtractors registers functions that add attributes taken from
// the context passed to the *Context logging methods
func WithContextExtractors(extractors ...ContextExtractor) Option {
	return func(o *options) {
		for _, ex := range extractors {
			if ex != nil {
				o.extractors = append(o.extractors, ex)
			}
		}
	}
}

// SetAsDefault installs l as the slog default logger
func SetAsDefault(l *slog.Logger) {
	slog.SetDefault(l)
}

// New builds a logger. Without options it writes JSON at info level to stdout.
func New(opts ...Option) *slog.Logger {
	o := &options{
		level:  slog.LevelInfo,
		format: FormatJSON,
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(o)
	}

	hopts := &slog.HandlerOptions{Level: o.level, AddSource: o.addSource}

	var h slog.Handler
	switch o.format {
	case FormatText:
		h = slog.NewTextHandler(o.output, hopts)
	default:
		h = slog.NewJSONHandler(o.output, hopts)
	}
	if len(o.attrs) > 0 {
		h = h.WithAttrs(o.attrs)
	}
	if len(o.extractors) > 0 {
		h = newContextHandler(h, o.extractors)
	}
	return slog.New(h)
}
