// Package config provides Viper-based configuration loading for the skirmish tools.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// CombatConfig holds the starting stats applied to every unit and the round cap.
type CombatConfig struct {
	HitPoints   int `mapstructure:"hit_points"`
	AttackPower int `mapstructure:"attack_power"`
	// MaxRounds stops a combat after this many full rounds. 0 means unlimited.
	MaxRounds int `mapstructure:"max_rounds"`
}

// SearchConfig holds attack power search settings.
type SearchConfig struct {
	// Faction is the faction whose attack power is raised: "elf" or "goblin".
	Faction string `mapstructure:"faction"`
	Floor   int    `mapstructure:"floor"`
	Ceiling int    `mapstructure:"ceiling"`
	// Workers is the number of candidate combats run concurrently.
	Workers int `mapstructure:"workers"`
	// PredicateScript is an optional Lua file defining accept(outcome).
	PredicateScript string `mapstructure:"predicate_script"`
	// InstructionLimit bounds each Lua predicate call. 0 uses the scripting default.
	InstructionLimit int `mapstructure:"instruction_limit"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// Enabled turns on run persistence.
	Enabled         bool          `mapstructure:"enabled"`
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

// SimulatorConfig holds the simulator gRPC service settings.
type SimulatorConfig struct {
	GRPCHost string `mapstructure:"grpc_host"`
	GRPCPort int    `mapstructure:"grpc_port"`
}

// Addr returns the "host:port" gRPC address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s SimulatorConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.GRPCHost, s.GRPCPort)
}

// Config is the top-level application configuration.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Combat    CombatConfig    `mapstructure:"combat"`
	Search    SearchConfig    `mapstructure:"search"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	validators := []func() error{
		func() error { return validateLogging(c.Logging) },
		func() error { return validateCombat(c.Combat) },
		func() error { return validateSearch(c.Search) },
		func() error { return validateDatabase(c.Database) },
		func() error { return validateSimulator(c.Simulator) },
	}
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
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

func validateCombat(c CombatConfig) error {
	var errs []string
	if c.HitPoints < 1 {
		errs = append(errs, fmt.Sprintf("combat.hit_points must be >= 1, got %d", c.HitPoints))
	}
	if c.AttackPower < 1 {
		errs = append(errs, fmt.Sprintf("combat.attack_power must be >= 1, got %d", c.AttackPower))
	}
	if c.MaxRounds < 0 {
		errs = append(errs, fmt.Sprintf("combat.max_rounds must be >= 0, got %d", c.MaxRounds))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateSearch(s SearchConfig) error {
	var errs []string
	if s.Faction != "elf" && s.Faction != "goblin" {
		errs = append(errs, fmt.Sprintf("search.faction must be one of [elf, goblin], got %q", s.Faction))
	}
	if s.Floor < 1 {
		errs = append(errs, fmt.Sprintf("search.floor must be >= 1, got %d", s.Floor))
	}
	if s.Ceiling < s.Floor {
		errs = append(errs, fmt.Sprintf("search.ceiling must be >= search.floor (%d), got %d", s.Floor, s.Ceiling))
	}
	if s.Workers < 1 {
		errs = append(errs, fmt.Sprintf("search.workers must be >= 1, got %d", s.Workers))
	}
	if s.InstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("search.instruction_limit must be >= 0, got %d", s.InstructionLimit))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// validateDatabase only checks connection settings when persistence is enabled.
func validateDatabase(d DatabaseConfig) error {
	if !d.Enabled {
		return nil
	}
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
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateSimulator(s SimulatorConfig) error {
	var errs []string
	if s.GRPCHost == "" {
		errs = append(errs, "simulator.grpc_host must not be empty")
	}
	if s.GRPCPort < 1 || s.GRPCPort > 65535 {
		errs = append(errs, fmt.Sprintf("simulator.grpc_port must be 1-65535, got %d", s.GRPCPort))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path uses defaults and the environment only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}
	return LoadFromViper(v)
}

// Default returns the validated default configuration with environment overrides applied.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Default() (Config, error) {
	return Load("")
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

func newViper() *viper.Viper {
	v := viper.New()
	// Environment variable overrides with SKIRMISH_ prefix
	v.SetEnvPrefix("SKIRMISH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("combat.hit_points", 200)
	v.SetDefault("combat.attack_power", 3)
	v.SetDefault("combat.max_rounds", 0)

	v.SetDefault("search.faction", "elf")
	v.SetDefault("search.floor", 4)
	v.SetDefault("search.ceiling", 200)
	v.SetDefault("search.workers", 1)
	v.SetDefault("search.predicate_script", "")
	v.SetDefault("search.instruction_limit", 100000)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "skirmish")
	v.SetDefault("database.password", "skirmish")
	v.SetDefault("database.name", "skirmish")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("simulator.grpc_host", "127.0.0.1")
	v.SetDefault("simulator.grpc_port", 50061)
}
