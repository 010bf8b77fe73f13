// Package config resolves the default adapter and port names.
//
// A key is looked up in order from an explicit override (Set or the
// environment), then the onewire.properties or onewire.yaml file, then the
// platform smart default. A key none of them provides is unresolved; there
// is no built-in fallback.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Well-known keys.
const (
	KeyAdapter  = "onewire.adapter.default"
	KeyPort     = "onewire.port.default"
	KeyScenario = "onewire.sim.scenario"
)

// FileName is the base name of the key/value file, without extension.
const FileName = "onewire"

// SmartDefault supplies a platform default for key. ok is false when the
// platform has nothing to offer.
type SmartDefault func(key string) (value string, ok bool)

// Config is one resolution context.
type Config struct {
	v     *viper.Viper
	smart SmartDefault
	dirs  []string
	file  string
}

// Option configures New.
type Option func(*Config)

// WithSearchPaths replaces the directories searched for the key/value file.
// The default is the working directory, then the user config directory.
func WithSearchPaths(dirs ...string) Option {
	return func(c *Config) { c.dirs = append([]string(nil), dirs...) }
}

// WithConfigFile reads exactly path instead of searching.
func WithConfigFile(path string) Option {
	return func(c *Config) { c.file = path }
}

// WithSmartDefault installs the last-resort lookup.
func WithSmartDefault(f SmartDefault) Option {
	return func(c *Config) { c.smart = f }
}

func defaultSearchPaths() []string {
	dirs := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(dir, FileName))
	}
	return dirs
}

// New builds a Config and reads the key/value file if one exists. A missing
// file is not an error; an unreadable one is.
func New(opts ...Option) (*Config, error) {
	c := &Config{v: viper.New(), dirs: defaultSearchPaths()}
	for _, opt := range opts {
		opt(c)
	}

	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	c.v.AutomaticEnv()

	if c.file != "" {
		c.v.SetConfigFile(c.file)
	} else {
		c.v.SetConfigName(FileName)
		for _, dir := range c.dirs {
			c.v.AddConfigPath(dir)
		}
	}
	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	return c, nil
}

// File returns the key/value file that was read, or "".
func (c *Config) File() string { return c.v.ConfigFileUsed() }

// Set overrides key for the life of c.
func (c *Config) Set(key, value string) { c.v.Set(key, value) }

// SetSmartDefault replaces the last-resort lookup.
func (c *Config) SetSmartDefault(f SmartDefault) { c.smart = f }

// Lookup resolves key.
func (c *Config) Lookup(key string) (string, bool) {
	if v := strings.TrimSpace(c.v.GetString(key)); v != "" {
		return v, true
	}
	if c.smart != nil {
		return c.smart(key)
	}
	return "", false
}

// DefaultAdapter resolves the default adapter name.
func (c *Config) DefaultAdapter() (string, bool) { return c.Lookup(KeyAdapter) }

// DefaultPort resolves the default port name.
func (c *Config) DefaultPort() (string, bool) { return c.Lookup(KeyPort) }

// Scenario returns the simulator scenario path, or "" for the built-in bus.
func (c *Config) Scenario() string { return c.v.GetString(KeyScenario) }
