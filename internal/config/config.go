package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDriver          = "snowflake"
	DefaultConcurrentTasks = 4
	DefaultTimeoutMinutes  = 10
	DefaultRootRole        = "ACCOUNTADMIN"
)

var ErrMissingConnection = errors.New("connection is required (set url, or account for snowflake, in config or pass --url/--account)")

type Config struct {
	Driver          string   `yaml:"driver"`
	URL             string   `yaml:"url"`
	Account         string   `yaml:"account"`
	User            string   `yaml:"user"`
	Password        string   `yaml:"password"`
	Warehouse       string   `yaml:"warehouse"`
	Role            string   `yaml:"role"`
	ConcurrentTasks int      `yaml:"concurrent_tasks"`
	TimeoutMinutes  int      `yaml:"timeout_minutes"`
	RootRoles       []string `yaml:"root_roles"`
	Format          string   `yaml:"format"`
	LogLevel        string   `yaml:"log_level"`
	LogFormat       string   `yaml:"log_format"`
}

type Flags struct {
	Driver          string
	URL             string
	Account         string
	User            string
	Password        string
	Warehouse       string
	Role            string
	ConcurrentTasks int
	TimeoutMinutes  int
	RootRoles       []string
	Format          string
	LogLevel        string
	LogFormat       string
}

// Connection holds the settings needed to open a catalog source.
type Connection struct {
	Driver    string
	URL       string
	Account   string
	User      string
	Password  string
	Warehouse string
	Role      string
}

// LoadFile reads a properties file when path ends in .properties or .env
// and YAML otherwise.
func LoadFile(path string) (*Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".properties", ".env":
		return LoadProperties(path)
	default:
		return Load(path)
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Driver = expandEnv(cfg.Driver)
	cfg.URL = expandEnv(cfg.URL)
	cfg.Account = expandEnv(cfg.Account)
	cfg.User = expandEnv(cfg.User)
	cfg.Password = expandEnv(cfg.Password)
	cfg.Warehouse = expandEnv(cfg.Warehouse)
	cfg.Role = expandEnv(cfg.Role)
	cfg.Format = expandEnv(cfg.Format)
	cfg.LogLevel = expandEnv(cfg.LogLevel)
	cfg.LogFormat = expandEnv(cfg.LogFormat)
	for i, r := range cfg.RootRoles {
		cfg.RootRoles[i] = expandEnv(r)
	}

	return &cfg, nil
}

// LoadProperties reads a KEY=VALUE file using the key names of the
// original snowreport.properties: URI, USER, PASSWORD, CONCURRENT_TASKS and
// TIMEOUT_MINUTES, plus DRIVER, ACCOUNT, WAREHOUSE, ROLE and ROOT_ROLES.
func LoadProperties(path string) (*Config, error) {
	props, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read properties file: %w", err)
	}

	cfg := Config{
		Driver:    props["DRIVER"],
		URL:       props["URI"],
		Account:   props["ACCOUNT"],
		User:      props["USER"],
		Password:  props["PASSWORD"],
		Warehouse: props["WAREHOUSE"],
		Role:      props["ROLE"],
		Format:    props["FORMAT"],
		LogLevel:  props["LOG_LEVEL"],
		LogFormat: props["LOG_FORMAT"],
	}

	if cfg.ConcurrentTasks, err = atLeastOne(props, "CONCURRENT_TASKS"); err != nil {
		return nil, err
	}
	if cfg.TimeoutMinutes, err = atLeastOne(props, "TIMEOUT_MINUTES"); err != nil {
		return nil, err
	}
	if v := props["ROOT_ROLES"]; v != "" {
		for _, r := range strings.Split(v, ",") {
			if r = strings.TrimSpace(r); r != "" {
				cfg.RootRoles = append(cfg.RootRoles, r)
			}
		}
	}

	return &cfg, nil
}

func atLeastOne(props map[string]string, key string) (int, error) {
	v, ok := props[key]
	if !ok || strings.TrimSpace(v) == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return max(n, 1), nil
}

// LoadEnvFiles loads each existing file into the process environment.
// Variables already set are not overridden and missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}
	return nil
}

func (c *Config) GetDriver(flags *Flags) string {
	if flags != nil && flags.Driver != "" {
		return flags.Driver
	}
	if c.Driver != "" {
		return c.Driver
	}
	return DefaultDriver
}

func (c *Config) GetConnection(flags *Flags) (Connection, error) {
	pick := func(flag, cfg string) string {
		if flag != "" {
			return flag
		}
		return cfg
	}
	if flags == nil {
		flags = &Flags{}
	}

	conn := Connection{
		Driver:    c.GetDriver(flags),
		URL:       pick(flags.URL, c.URL),
		Account:   pick(flags.Account, c.Account),
		User:      pick(flags.User, c.User),
		Password:  pick(flags.Password, c.Password),
		Warehouse: pick(flags.Warehouse, c.Warehouse),
		Role:      pick(flags.Role, c.Role),
	}
	if conn.URL == "" && conn.Account == "" {
		return Connection{}, ErrMissingConnection
	}
	return conn, nil
}

func (c *Config) GetConcurrentTasks(flags *Flags) int {
	if flags != nil && flags.ConcurrentTasks != 0 {
		return max(flags.ConcurrentTasks, 1)
	}
	if c.ConcurrentTasks != 0 {
		return max(c.ConcurrentTasks, 1)
	}
	return DefaultConcurrentTasks
}

func (c *Config) GetTimeout(flags *Flags) time.Duration {
	minutes := DefaultTimeoutMinutes
	if flags != nil && flags.TimeoutMinutes != 0 {
		minutes = flags.TimeoutMinutes
	} else if c.TimeoutMinutes != 0 {
		minutes = c.TimeoutMinutes
	}
	return time.Duration(max(minutes, 1)) * time.Minute
}

func (c *Config) GetRootRoles(flags *Flags) []string {
	if flags != nil && len(flags.RootRoles) > 0 {
		return flags.RootRoles
	}
	if len(c.RootRoles) > 0 {
		return c.RootRoles
	}
	return []string{DefaultRootRole}
}

func (c *Config) GetFormat(flags *Flags) string {
	if flags != nil && flags.Format != "" {
		return flags.Format
	}
	if c.Format != "" {
		return c.Format
	}
	return "json"
}

func (c *Config) GetLogLevel(flags *Flags) string {
	if flags != nil && flags.LogLevel != "" {
		return flags.LogLevel
	}
	if c.LogLevel != "" {
		return c.LogLevel
	}
	return "info"
}

func (c *Config) GetLogFormat(flags *Flags) string {
	if flags != nil && flags.LogFormat != "" {
		return flags.LogFormat
	}
	if c.LogFormat != "" {
		return c.LogFormat
	}
	return "console"
}

func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		envVar := s[2 : len(s)-1]
		return os.Getenv(envVar)
	}
	return os.ExpandEnv(s)
}
