// Package config provides Viper-based configuration loading for the
// Roadband simulation server.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// HTTPConfig holds the API and websocket listener settings.
type HTTPConfig struct {
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP listener.
	Port int `mapstructure:"port"`
	// ReadTimeout is the per-request read timeout.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the per-response write timeout.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout bounds graceful drain on exit.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// SimConfig holds simulation pacing settings.
type SimConfig struct {
	// TickInterval is the fixed real-time step of the march loop.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// AutosaveInterval is how often party state is persisted outside
	// combat. Zero disables autosave.
	AutosaveInterval time.Duration `mapstructure:"autosave_interval"`
	// Seed seeds the combat roll stream. Zero selects a crypto-random
	// stream; any other value makes runs replayable.
	Seed int64 `mapstructure:"seed"`
	// BaseActionInterval is the seconds between actions at zero haste.
	BaseActionInterval float64 `mapstructure:"base_action_interval"`
	// ThreatPerDamage scales threat-worthy damage into threat score.
	ThreatPerDamage float64 `mapstructure:"threat_per_damage"`
	// HealingThreatFactor scales healing into threat split across all
	// engaged enemies.
	HealingThreatFactor float64 `mapstructure:"healing_threat_factor"`
	// HealerThreshold is the ally health fraction below which healers act.
	HealerThreshold float64 `mapstructure:"healer_threshold"`
	// EventLogSize bounds the retained combat log per encounter.
	EventLogSize int `mapstructure:"event_log_size"`
	// WaveDelay is the marching time between a wave ending and the next
	// one spawning.
	WaveDelay time.Duration `mapstructure:"wave_delay"`
	// RecoveryFraction is the health fraction downed heroes revive with
	// between waves.
	RecoveryFraction float64 `mapstructure:"recovery_fraction"`
}

// CombatConfig holds the damage-formula constants. All of these are
// balance data, injected rather than hard-coded.
type CombatConfig struct {
	// CritMultiplier scales damage and healing on a critical roll.
	CritMultiplier float64 `mapstructure:"crit_multiplier"`
	// BlockReduction is the damage fraction removed by a block.
	BlockReduction float64 `mapstructure:"block_reduction"`
	// ResistScale is the rating at which mitigation reaches 50%.
	ResistScale float64 `mapstructure:"resist_scale"`
	// MaxMitigation caps the armor/resistance curve.
	MaxMitigation float64 `mapstructure:"max_mitigation"`
}

// ContentConfig points at the authored game data.
type ContentConfig struct {
	// Dir is the root content directory holding abilities/, heroes/,
	// enemies/, and roads/.
	Dir string `mapstructure:"dir"`
	// ScriptsDir holds the Lua encounter scripts.
	ScriptsDir string `mapstructure:"scripts_dir"`
}

// AbilitiesDir returns the ability content directory.
func (c ContentConfig) AbilitiesDir() string { return filepath.Join(c.Dir, "abilities") }

// HeroesDir returns the hero archetype content directory.
func (c ContentConfig) HeroesDir() string { return filepath.Join(c.Dir, "heroes") }

// EnemiesDir returns the enemy template content directory.
func (c ContentConfig) EnemiesDir() string { return filepath.Join(c.Dir, "enemies") }

// RoadsDir returns the road content directory.
func (c ContentConfig) RoadsDir() string { return filepath.Join(c.Dir, "roads") }

// Config is the top-level application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Sim      SimConfig      `mapstructure:"sim"`
	Combat   CombatConfig   `mapstructure:"combat"`
	Content  ContentConfig  `mapstructure:"content"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateDatabase(c.Database); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateHTTP(c.HTTP); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateSim(c.Sim); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateCombat(c.Combat); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateContent(c.Content); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateHTTP(h HTTPConfig) error {
	var errs []string
	if h.Port < 1 || h.Port > 65535 {
		errs = append(errs, fmt.Sprintf("http.port must be 1-65535, got %d", h.Port))
	}
	if h.ReadTimeout < 0 {
		errs = append(errs, "http.read_timeout must not be negative")
	}
	if h.WriteTimeout < 0 {
		errs = append(errs, "http.write_timeout must not be negative")
	}
	if h.ShutdownTimeout < 0 {
		errs = append(errs, "http.shutdown_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateSim(s SimConfig) error {
	var errs []string
	if s.TickInterval <= 0 {
		errs = append(errs, fmt.Sprintf("sim.tick_interval must be positive, got %v", s.TickInterval))
	}
	if s.AutosaveInterval < 0 {
		errs = append(errs, "sim.autosave_interval must not be negative")
	}
	if s.BaseActionInterval <= 0 {
		errs = append(errs, fmt.Sprintf("sim.base_action_interval must be positive, got %v", s.BaseActionInterval))
	}
	if s.ThreatPerDamage < 0 {
		errs = append(errs, "sim.threat_per_damage must not be negative")
	}
	if s.HealingThreatFactor < 0 {
		errs = append(errs, "sim.healing_threat_factor must not be negative")
	}
	if s.HealerThreshold <= 0 || s.HealerThreshold > 1 {
		errs = append(errs, fmt.Sprintf("sim.healer_threshold must be in (0, 1], got %v", s.HealerThreshold))
	}
	if s.EventLogSize < 1 {
		errs = append(errs, fmt.Sprintf("sim.event_log_size must be >= 1, got %d", s.EventLogSize))
	}
	if s.WaveDelay < 0 {
		errs = append(errs, "sim.wave_delay must not be negative")
	}
	if s.RecoveryFraction <= 0 || s.RecoveryFraction > 1 {
		errs = append(errs, fmt.Sprintf("sim.recovery_fraction must be in (0, 1], got %v", s.RecoveryFraction))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateCombat(c CombatConfig) error {
	var errs []string
	if c.CritMultiplier < 1 {
		errs = append(errs, fmt.Sprintf("combat.crit_multiplier must be >= 1, got %v", c.CritMultiplier))
	}
	if c.BlockReduction < 0 || c.BlockReduction >= 1 {
		errs = append(errs, fmt.Sprintf("combat.block_reduction must be in [0, 1), got %v", c.BlockReduction))
	}
	if c.ResistScale <= 0 {
		errs = append(errs, fmt.Sprintf("combat.resist_scale must be positive, got %v", c.ResistScale))
	}
	if c.MaxMitigation < 0 || c.MaxMitigation >= 1 {
		errs = append(errs, fmt.Sprintf("combat.max_mitigation must be in [0, 1), got %v", c.MaxMitigation))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateContent(c ContentConfig) error {
	var errs []string
	if c.Dir == "" {
		errs = append(errs, "content.dir must not be empty")
	}
	if c.ScriptsDir == "" {
		errs = append(errs, "content.scripts_dir must not be empty")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with ROADBAND_ prefix
	v.SetEnvPrefix("ROADBAND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Default returns the built-in configuration: the same values Load applies
// when the file leaves them unset.
//
// Postcondition: Returns a Config that passes Validate.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: defaults failed to unmarshal: %v", err))
	}
	return cfg
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "roadband")
	v.SetDefault("database.password", "roadband")
	v.SetDefault("database.name", "roadband")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "15s")
	v.SetDefault("http.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("sim.tick_interval", "200ms")
	v.SetDefault("sim.autosave_interval", "30s")
	v.SetDefault("sim.seed", 0)
	v.SetDefault("sim.base_action_interval", 2.0)
	v.SetDefault("sim.threat_per_damage", 1.0)
	v.SetDefault("sim.healing_threat_factor", 0.5)
	v.SetDefault("sim.healer_threshold", 0.7)
	v.SetDefault("sim.event_log_size", 256)
	v.SetDefault("sim.wave_delay", "2s")
	v.SetDefault("sim.recovery_fraction", 0.5)

	v.SetDefault("combat.crit_multiplier", 2.0)
	v.SetDefault("combat.block_reduction", 0.3)
	v.SetDefault("combat.resist_scale", 100.0)
	v.SetDefault("combat.max_mitigation", 0.75)

	v.SetDefault("content.dir", "content")
	v.SetDefault("content.scripts_dir", "content/scripts")
}
