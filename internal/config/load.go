package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. AUTOTRACK_LEDGER_BACKEND.
const EnvPrefix = "AUTOTRACK"

// DefaultPath returns ~/.config/autotrack/config.toml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get user home directory")
	}
	return filepath.Join(homeDir, ".config", "autotrack", "config.toml"), nil
}

// Load builds the configuration from defaults, the TOML file at path and
// AUTOTRACK_* environment variables, in increasing priority. A missing
// file is not an error. An empty path means DefaultPath.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v, Default())

	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "failed to stat config file %s", path)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return &cfg, nil
}

// New returns the configuration from the default file and environment,
// falling back to defaults when it cannot be loaded.
func New() *Config {
	cfg, err := Load("")
	if err != nil {
		return Default()
	}
	return cfg
}

// setDefaults registers every key so that AutomaticEnv can resolve it
// during Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("ledger.backend", d.Ledger.Backend)
	v.SetDefault("ledger.category", d.Ledger.Category)
	v.SetDefault("ledger.activity", d.Ledger.Activity)
	v.SetDefault("ledger.call_timeout", d.Ledger.CallTimeout)

	v.SetDefault("session.source", d.Session.Source)
	v.SetDefault("session.bus_interface", d.Session.BusInterface)
	v.SetDefault("session.bus_path", d.Session.BusPath)
	v.SetDefault("session.poll_interval", d.Session.PollInterval)
	v.SetDefault("session.idle_delay", d.Session.IdleDelay)

	v.SetDefault("hamster.bus_name", d.Hamster.BusName)
	v.SetDefault("hamster.bus_path", d.Hamster.BusPath)

	v.SetDefault("daemon.pid_file", d.Daemon.PIDFile)
	v.SetDefault("daemon.log_file", d.Daemon.LogFile)

	v.SetDefault("report.timezone", d.Report.TimeZone)

	v.SetDefault("web.host", d.Web.Host)
	v.SetDefault("web.port", d.Web.Port)

	v.SetDefault("log.level", d.Log.Level)
}
