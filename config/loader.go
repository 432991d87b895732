package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	bofryconfig "github.com/Bofry/config"
	"dario.cat/mergo"
	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix is the prefix for environment variable overrides.
const DefaultEnvPrefix = "BEGINNINGS_"

// Loader reads a YAML configuration file, merges its includes, and applies
// environment variable overrides.
type Loader struct {
	path       string
	dotEnvFile string
	envPrefix  string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithDotEnvFile sets a .env file consulted before process environment
// variables. A missing file is skipped silently.
func WithDotEnvFile(path string) LoaderOption {
	return func(l *Loader) {
		l.dotEnvFile = path
	}
}

// WithEnvPrefix overrides the environment variable prefix.
func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) {
		if prefix != "" {
			l.envPrefix = prefix
		}
	}
}

// NewLoader creates a loader for the given configuration file.
func NewLoader(path string, opts ...LoaderOption) *Loader {
	l := &Loader{
		path:      path,
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the main configuration file path.
func (l *Loader) Path() string { return l.path }

// Sources returns every file the loaded configuration came from: the main
// file, its resolved includes, and the environment overlay when one is
// active. The watcher uses this set.
func (l *Loader) Sources() ([]string, error) {
	main, err := l.readFile(l.path)
	if err != nil {
		return nil, err
	}
	sources := []string{l.path}
	for _, inc := range includePaths(main) {
		sources = append(sources, l.resolveInclude(inc))
	}
	if overlay := l.overlayPath(main); overlay != "" {
		sources = append(sources, overlay)
	}
	return sources, nil
}

// Load reads, merges, and validates the configuration. Precedence from
// weakest to strongest: defaults, includes in listed order, the main file,
// the environment overlay, then environment variables.
func (l *Loader) Load() (*Config, error) {
	merged, err := l.readMerged()
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := decode(merged, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := l.applyEnvironment(cfg); err != nil {
		return nil, fmt.Errorf("apply environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// readMerged layers the include files beneath the main file.
func (l *Loader) readMerged() (map[string]any, error) {
	main, err := l.readFile(l.path)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]any)
	for _, inc := range includePaths(main) {
		path := l.resolveInclude(inc)
		m, err := l.readFile(path)
		if err != nil {
			return nil, fmt.Errorf("include %s: %w", inc, err)
		}
		if err := mergo.Map(&merged, m, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge include %s: %w", inc, err)
		}
	}
	if err := mergo.Map(&merged, main, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge config: %w", err)
	}

	if overlay := l.overlayPath(main); overlay != "" {
		m, err := l.readFile(overlay)
		if err != nil {
			return nil, fmt.Errorf("environment overlay: %w", err)
		}
		if err := mergo.Map(&merged, m, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge environment overlay %s: %w", overlay, err)
		}
	}
	return merged, nil
}

// overlayPath returns the <name>.<environment>.yaml overlay for the main
// file, or "" when no environment is set or the file does not exist. The
// environment comes from the process environment first, then from the main
// file's app section.
func (l *Loader) overlayPath(main map[string]any) string {
	env := os.Getenv(l.envPrefix + "APP_ENVIRONMENT")
	if env == "" {
		env = environmentOf(main)
	}
	if env == "" {
		return ""
	}

	ext := filepath.Ext(l.path)
	path := strings.TrimSuffix(l.path, ext) + "." + env + ext
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// environmentOf reads app.environment from a raw mapping.
func environmentOf(m map[string]any) string {
	app, ok := m["app"].(map[string]any)
	if !ok {
		return ""
	}
	env, _ := app["environment"].(string)
	return env
}

func (l *Loader) readFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if m == nil {
		m = make(map[string]any)
	}
	return m, nil
}

func (l *Loader) resolveInclude(inc string) string {
	if filepath.IsAbs(inc) {
		return inc
	}
	return filepath.Join(filepath.Dir(l.path), inc)
}

// includePaths reads the includes list from a raw mapping.
func includePaths(m map[string]any) []string {
	raw, ok := m["includes"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// decode maps a raw configuration mapping onto the typed struct.
func decode(raw map[string]any, cfg *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           cfg,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// applyEnvironment overlays .env file values and process environment
// variables. The Bofry service panics on malformed input, so it runs inside
// a recover wrapper.
func (l *Loader) applyEnvironment(cfg *Config) error {
	var loadErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				if err, ok := r.(error); ok {
					loadErr = err
				} else {
					loadErr = fmt.Errorf("environment loading panic: %v", r)
				}
			}
		}()

		service := bofryconfig.NewConfigurationService(cfg)
		if l.dotEnvFile != "" {
			if _, err := os.Stat(l.dotEnvFile); err == nil {
				service.LoadDotEnvFile(l.dotEnvFile)
			}
		}
		service.LoadEnvironmentVariables(strings.TrimSuffix(l.envPrefix, "_"))
	}()
	if loadErr != nil {
		return loadErr
	}

	// The Bofry service reads flat env tags only; nested sections use the
	// composed SECTION_FIELD names handled here.
	return overlayEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// overlayEnv walks env-tagged struct fields and applies matching variables.
func overlayEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}
		envName := prefix + strings.Split(envTag, ",")[0]

		if field.Kind() == reflect.Struct && fieldType.Type != reflect.TypeOf(time.Duration(0)) {
			if err := overlayEnv(field, envName+"_"); err != nil {
				return err
			}
			continue
		}

		value := os.Getenv(envName)
		if value == "" {
			continue
		}
		if err := setFieldValue(field, value); err != nil {
			return fmt.Errorf("set %s from %s: %w", fieldType.Name, envName, err)
		}
	}
	return nil
}

// setFieldValue assigns a string environment value to a struct field.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("field cannot be set")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.Set(reflect.ValueOf(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			field.Set(reflect.ValueOf(strings.Split(value, ",")))
			return nil
		}
		return fmt.Errorf("unsupported slice type: %s", field.Type())
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}
