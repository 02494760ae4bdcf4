package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// Ledger configuration
	Ledger LedgerConfig `mapstructure:"ledger"`

	// Session signal source configuration
	Session SessionConfig `mapstructure:"session"`

	// Hamster service configuration, used by the hamster ledger backend
	Hamster HamsterConfig `mapstructure:"hamster"`

	// Daemon configuration
	Daemon DaemonConfig `mapstructure:"daemon"`

	// Report configuration
	Report ReportConfig `mapstructure:"report"`

	// Web server configuration
	Web WebConfig `mapstructure:"web"`

	// Log configuration
	Log LogConfig `mapstructure:"log"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"` // Path to SQLite database file
}

// LedgerConfig selects where activities are recorded
type LedgerConfig struct {
	Backend     string        `mapstructure:"backend"`      // "sqlite" or "hamster"
	Category    string        `mapstructure:"category"`     // Category of newly created entries
	Activity    string        `mapstructure:"activity"`     // Activity label of newly created entries
	CallTimeout time.Duration `mapstructure:"call_timeout"` // Upper bound for a single ledger command
}

// SessionConfig holds signal source configuration
type SessionConfig struct {
	Source       string        `mapstructure:"source"`        // "gnome", "x11" or "auto"
	BusInterface string        `mapstructure:"bus_interface"` // Screensaver bus name and interface
	BusPath      string        `mapstructure:"bus_path"`      // Screensaver object path
	PollInterval time.Duration `mapstructure:"poll_interval"` // X11 screensaver poll interval
	IdleDelay    time.Duration `mapstructure:"idle_delay"`    // Overrides the system idle delay when > 0
}

// HamsterConfig locates the Hamster service on the session bus
type HamsterConfig struct {
	BusName string `mapstructure:"bus_name"`
	BusPath string `mapstructure:"bus_path"`
}

// DaemonConfig holds daemon process configuration
type DaemonConfig struct {
	PIDFile string `mapstructure:"pid_file"` // Path to PID file for daemon management
	LogFile string `mapstructure:"log_file"` // Daemon log output
}

// ReportConfig holds report generation configuration
type ReportConfig struct {
	TimeZone string `mapstructure:"timezone"`
}

// WebConfig holds web server configuration
type WebConfig struct {
	Host string `mapstructure:"host"` // Host to bind web server to
	Port int    `mapstructure:"port"` // Port for web server
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn or error
}

const (
	BackendSQLite  = "sqlite"
	BackendHamster = "hamster"

	SourceAuto  = "auto"
	SourceGnome = "gnome"
	SourceX11   = "x11"
)

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "", // Empty means use default ~/.config/autotrack/autotrack.db
		},
		Ledger: LedgerConfig{
			Backend:     BackendSQLite,
			Category:    "Work",
			Activity:    "Work",
			CallTimeout: 5 * time.Second,
		},
		Session: SessionConfig{
			Source:       SourceAuto,
			BusInterface: "org.gnome.ScreenSaver",
			BusPath:      "/org/gnome/ScreenSaver",
			PollInterval: 2 * time.Second,
			IdleDelay:    0, // Read from the session settings
		},
		Hamster: HamsterConfig{
			BusName: "org.gnome.Hamster",
			BusPath: "/org/gnome/Hamster",
		},
		Daemon: DaemonConfig{
			PIDFile: fmt.Sprintf("/tmp/autotrack-%d.pid", os.Getuid()),
			LogFile: fmt.Sprintf("/tmp/autotrack-%d.log", os.Getuid()),
		},
		Report: ReportConfig{
			TimeZone: "Local",
		},
		Web: WebConfig{
			Host: "localhost",
			Port: 10000 + os.Getuid(), // Default port based on user ID
		},
		Log: LogConfig{
			Level: "debug",
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Ledger.Backend {
	case BackendSQLite, BackendHamster:
	default:
		return errors.Errorf("unknown ledger backend %q (want %s or %s)", c.Ledger.Backend, BackendSQLite, BackendHamster)
	}

	if c.Ledger.Activity == "" {
		return errors.New("ledger activity cannot be empty")
	}

	if c.Ledger.CallTimeout < 0 {
		return errors.New("ledger call timeout cannot be negative")
	}

	switch c.Session.Source {
	case SourceAuto, SourceGnome, SourceX11:
	default:
		return errors.Errorf("unknown session source %q", c.Session.Source)
	}

	if c.Session.Source != SourceX11 && c.Session.BusInterface == "" {
		return errors.New("screensaver bus interface cannot be empty")
	}

	if c.Session.PollInterval < 100*time.Millisecond {
		return errors.Errorf("poll interval (%v) cannot be less than 100ms", c.Session.PollInterval)
	}

	if c.Session.IdleDelay < 0 {
		return errors.New("idle delay cannot be negative")
	}

	// Validate web config
	if c.Web.Port < 1 || c.Web.Port > 65535 {
		return errors.Errorf("web port must be between 1 and 65535, got %d", c.Web.Port)
	}

	if c.Web.Host == "" {
		return errors.New("web host cannot be empty")
	}

	// Validate daemon config
	if c.Daemon.PIDFile == "" {
		return errors.New("PID file path cannot be empty")
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	return nil
}

// SetWebPort sets the web server port with validation
func (c *Config) SetWebPort(port int) error {
	if port < 1 || port > 65535 {
		return errors.Errorf("port must be between 1 and 65535, got %d", port)
	}
	c.Web.Port = port
	return nil
}

// Location resolves the report time zone
func (c *Config) Location() (*time.Location, error) {
	if c.Report.TimeZone == "" || c.Report.TimeZone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Report.TimeZone)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid report time zone %q", c.Report.TimeZone)
	}
	return loc, nil
}

// TOML renders the configuration in the config file format
func (c *Config) TOML() (string, error) {
	doc := map[string]any{
		"database": map[string]any{
			"path": c.Database.Path,
		},
		"ledger": map[string]any{
			"backend":      c.Ledger.Backend,
			"category":     c.Ledger.Category,
			"activity":     c.Ledger.Activity,
			"call_timeout": c.Ledger.CallTimeout.String(),
		},
		"session": map[string]any{
			"source":        c.Session.Source,
			"bus_interface": c.Session.BusInterface,
			"bus_path":      c.Session.BusPath,
			"poll_interval": c.Session.PollInterval.String(),
			"idle_delay":    c.Session.IdleDelay.String(),
		},
		"hamster": map[string]any{
			"bus_name": c.Hamster.BusName,
			"bus_path": c.Hamster.BusPath,
		},
		"daemon": map[string]any{
			"pid_file": c.Daemon.PIDFile,
			"log_file": c.Daemon.LogFile,
		},
		"report": map[string]any{
			"timezone": c.Report.TimeZone,
		},
		"web": map[string]any{
			"host": c.Web.Host,
			"port": c.Web.Port,
		},
		"log": map[string]any{
			"level": c.Log.Level,
		},
	}

	b, err := toml.Marshal(doc)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode configuration")
	}
	return string(b), nil
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(`Configuration:
  Database:
    Path: %s
  Ledger:
    Backend: %s
    Category: %s
    Activity: %s
    Call Timeout: %v
  Session:
    Source: %s
    Bus Interface: %s
    Poll Interval: %v
    Idle Delay: %v
  Daemon:
    PID File: %s
    Log File: %s
  Web:
    Host: %s
    Port: %d
  Log:
    Level: %s`,
		c.Database.Path,
		c.Ledger.Backend,
		c.Ledger.Category,
		c.Ledger.Activity,
		c.Ledger.CallTimeout,
		c.Session.Source,
		c.Session.BusInterface,
		c.Session.PollInterval,
		c.Session.IdleDelay,
		c.Daemon.PIDFile,
		c.Daemon.LogFile,
		c.Web.Host,
		c.Web.Port,
		c.Log.Level,
	)
}
