package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "labelscan"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "LABELSCAN"
)

// secretEnv lists the extra environment variables consulted for keys that
// are usually provisioned by other tooling.
var secretEnv = map[string][]string{
	"recognizer.fallback.api_key": {"OPENAI_API_KEY"},
}

// LoadOptions controls a single load.
type LoadOptions struct {
	// File is read instead of searching SearchPaths when set.
	File string
	// SkipValidation returns the configuration even when Validate fails.
	SkipValidation bool
}

// Loader merges defaults, the configuration file, LABELSCAN_ environment
// variables and bound flags into a Config.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance so command flags
// bound with viper.BindPFlag take part in the merge.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper creates a loader backed by v instead of the global instance.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load searches SearchPaths for labelscan.yaml and validates the result.
func (l *Loader) Load() (*Config, error) {
	return l.LoadWith(LoadOptions{})
}

// LoadFile reads path and validates the result.
func (l *Loader) LoadFile(path string) (*Config, error) {
	return l.LoadWith(LoadOptions{File: path})
}

// LoadWith performs a load with explicit options.
func (l *Loader) LoadWith(opts LoadOptions) (*Config, error) {
	if err := l.prepare(opts.File); err != nil {
		return nil, err
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if opts.SkipValidation {
		return &cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (l *Loader) prepare(file string) error {
	if file != "" {
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file does not exist: %s", file)
		}
		l.v.SetConfigFile(file)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		for _, p := range SearchPaths() {
			l.v.AddConfigPath(p)
		}
	}

	// LABELSCAN_SERVER_PORT maps to server.port
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	l.v.AutomaticEnv()
	for key, extra := range secretEnv {
		names := append([]string{envName(key)}, extra...)
		if err := l.v.BindEnv(append([]string{key}, names...)...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if err := applyDefaults(l.v); err != nil {
		return err
	}

	err := l.v.ReadInConfig()
	if err == nil {
		return nil
	}
	if file != "" {
		return fmt.Errorf("error reading config file %s: %w", file, err)
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return nil
	}
	return fmt.Errorf("error reading config file: %w", err)
}

// ConfigFileUsed returns the path of the file read by the last load, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Viper returns the underlying viper instance.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Settings returns every merged key, nested by section.
func (l *Loader) Settings() map[string]interface{} {
	return l.v.AllSettings()
}

// applyDefaults registers every leaf of DefaultConfig as a viper default.
// AutomaticEnv only sees keys viper already knows about, so a field missing
// here could not be set from the environment.
func applyDefaults(v *viper.Viper) error {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("decode defaults: %w", err)
	}
	setLeaves(v, "", tree)
	return nil
}

func setLeaves(v *viper.Viper, prefix string, node map[string]interface{}) {
	for key, value := range node {
		if prefix != "" {
			key = prefix + "." + key
		}
		if child, ok := value.(map[string]interface{}); ok {
			setLeaves(v, key, child)
			continue
		}
		v.SetDefault(key, value)
	}
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// WriteDefaultFile writes the default configuration as YAML to filename, or
// to labelscan.yaml when filename is empty.
func WriteDefaultFile(filename string) error {
	v := viper.New()
	if err := applyDefaults(v); err != nil {
		return err
	}
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	return v.WriteConfigAs(filename)
}

// SearchPaths returns the directories searched for labelscan.yaml, most
// specific first.
func SearchPaths() []string {
	paths := []string{"."}

	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		paths = append(paths, home)
	}
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		paths = append(paths, filepath.Join(xdg, ConfigFileName))
	} else if homeErr == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}

	return append(paths, "/etc/"+ConfigFileName)
}
