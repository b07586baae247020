// Package settings loads cradle's layered configuration.
//
// Values are resolved in increasing order of precedence:
//
//  1. Built-in defaults
//  2. The YAML configuration file ($XDG_CONFIG_HOME/cradle/config.yaml)
//  3. Environment variables with the CRADLE_ prefix
//
// Command-line flags are applied by the CLI on top of the loaded values.
//
//	CRADLE_CONTAINERD_ADDRESS     -> containerd.address
//	CRADLE_CONTAINERD_SNAPSHOTTER -> containerd.snapshotter
//	CRADLE_LOG_LEVEL              -> log.level
package settings

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	env "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CRADLE_"

// Holds all configuration.
type Settings struct {
	Containerd Containerd `koanf:"containerd"`
	Log        Log        `koanf:"log"`
	Socket     string     `koanf:"socket"` // Daemon socket path. Empty uses the XDG default.
}

// Containerd connection and execution settings.
type Containerd struct {
	Address     string `koanf:"address"`     // Containerd socket address.
	Namespace   string `koanf:"namespace"`   // Namespace scoping images and containers.
	Snapshotter string `koanf:"snapshotter"` // Snapshotter for container filesystems.
	Runtime     string `koanf:"runtime"`     // OCI runtime shim.
}

// Logging settings.
type Log struct {
	Level  string `koanf:"level"`  // debug, info, warn or error.
	Format string `koanf:"format"` // auto, text or json. Auto is json for the daemon, text otherwise.
}

// Returns the built-in defaults.
//
// fuse-overlayfs provides overlay semantics without mount(2), so cradle can
// run as a regular user.
func Defaults() Settings {
	return Settings{
		Containerd: Containerd{
			Address:     "/run/containerd/containerd.sock",
			Namespace:   "cradle",
			Snapshotter: "fuse-overlayfs",
			Runtime:     "io.containerd.runc.v2",
		},
		Log: Log{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Loads settings from the file at path and the environment.
//
// A missing file is not an error; defaults and environment still apply. An
// empty path skips the file layer.
func Load(path string) (*Settings, error) {
	k := koanf.New(".")

	if path != "" && Exists(path) {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	envLookup := buildEnvLookup()

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			if koanfKey, ok := envLookup[key]; ok {
				return koanfKey, value
			}
			return "", nil
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Returns an error describing every invalid value.
func (s *Settings) Validate() error {
	var errs []error

	if strings.TrimSpace(s.Containerd.Address) == "" {
		errs = append(errs, errors.New("containerd.address must not be empty"))
	}
	if strings.TrimSpace(s.Containerd.Namespace) == "" {
		errs = append(errs, errors.New("containerd.namespace must not be empty"))
	}
	if strings.TrimSpace(s.Containerd.Snapshotter) == "" {
		errs = append(errs, errors.New("containerd.snapshotter must not be empty"))
	}

	switch strings.ToLower(s.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", s.Log.Level))
	}

	switch s.Log.Format {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be one of: auto, text, json; got %q", s.Log.Format))
	}

	return errors.Join(errs...)
}

// Maps env-style keys ("containerd_address") to koanf keys
// ("containerd.address"). Keys are taken from the defaults so that
// underscores inside a field name are never mistaken for nesting.
func buildEnvLookup() map[string]string {
	keys := []string{
		"containerd.address",
		"containerd.namespace",
		"containerd.snapshotter",
		"containerd.runtime",
		"log.level",
		"log.format",
		"socket",
	}
	lookup := make(map[string]string, len(keys))
	for _, key := range keys {
		lookup[strings.ReplaceAll(key, ".", "_")] = key
	}
	return lookup
}

// Reports whether a configuration file exists at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
