package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	// Project settings
	ProjectPath string `yaml:"project_path"`

	// Output settings
	OutputJSONFile string `yaml:"output_json_file"`
	OutputJSONDir  string `yaml:"output_json_dir"`
	HistoryDB      string `yaml:"history_db"`

	// Logging and serving
	LogLevel   string `yaml:"log_level"`
	ListenAddr string `yaml:"listen_addr"`

	// MySQL server used by database resources
	Database DatabaseConfig `yaml:"database"`

	// Command flags
	Flags Flags `yaml:"-"`
}

// DatabaseConfig holds the MySQL connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Prefix   string `yaml:"prefix"`
}

// Flags holds command-line flags
type Flags struct {
	ConfigFile  string
	ProjectPath string
	NameFilter  string
	Group       string
	LogLevel    string
	Listen      string
	NoHistory   bool
	Progress    bool
	Verbose     bool
	OnlyFailed  bool
	Open        bool
	RunOnStart  bool
	Limit       int
}

// New creates a new Config with defaults
func New() *Config {
	return &Config{
		ProjectPath:    DefaultProjectPath,
		OutputJSONFile: DefaultOutputJSONFile,
		OutputJSONDir:  DefaultOutputJSONDir,
		HistoryDB:      DefaultHistoryDB,
		LogLevel:       DefaultLogLevel,
		ListenAddr:     DefaultListenAddr,
		Database: DatabaseConfig{
			Host:   DefaultDBHost,
			Port:   DefaultDBPort,
			User:   DefaultDBUser,
			Prefix: DefaultDBPrefix,
		},
	}
}

// Load creates a config from defaults, the YAML file, the environment and
// finally the flags, each layer overriding the previous one.
func Load(flags Flags) (*Config, error) {
	cfg := New()
	if flags.ProjectPath != "" {
		cfg.ProjectPath = flags.ProjectPath
	}

	path := flags.ConfigFile
	explicit := path != ""
	if !explicit {
		path = filepath.Join(cfg.ProjectPath, DefaultConfigFile)
	}
	if err := cfg.loadFile(path, explicit); err != nil {
		return nil, err
	}
	if flags.ProjectPath != "" {
		cfg.ProjectPath = flags.ProjectPath
	}

	cfg.loadEnv()
	cfg.applyFlags(flags)

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	return cfg, nil
}

// loadFile overlays the YAML file at path. A missing file is only an error
// when it was requested explicitly.
func (c *Config) loadFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse configuration file %s: %w", path, err)
	}
	return nil
}

// loadEnv applies .env from the project directory and process variables.
func (c *Config) loadEnv() {
	// .env file might not exist, that's okay - use environment variables
	_ = godotenv.Load(filepath.Join(c.ProjectPath, ".env"))

	setFromEnv(&c.OutputJSONDir, envPrefix+"OUTPUT_DIR")
	setFromEnv(&c.OutputJSONFile, envPrefix+"OUTPUT_FILE")
	setFromEnv(&c.HistoryDB, envPrefix+"HISTORY_DB")
	setFromEnv(&c.LogLevel, envPrefix+"LOG_LEVEL")
	setFromEnv(&c.ListenAddr, envPrefix+"LISTEN_ADDR")

	setFromEnv(&c.Database.Host, "DB_HOST")
	setFromEnv(&c.Database.Port, "DB_PORT")
	setFromEnv(&c.Database.User, "DB_USERNAME")
	setFromEnv(&c.Database.Password, "DB_PASSWORD")
	setFromEnv(&c.Database.Prefix, "DB_DATABASE_PREFIX")
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) applyFlags(flags Flags) {
	c.Flags = flags
	if flags.LogLevel != "" {
		c.LogLevel = flags.LogLevel
	}
	if flags.Listen != "" {
		c.ListenAddr = flags.Listen
	}
}

// GetOutputPath returns the full path to the output JSON file (under project so run and faills use the same file).
// Resolves to an absolute path so run and faills always read/write the same file regardless of cwd.
func (c *Config) GetOutputPath() string {
	return absUnder(c.ProjectPath, filepath.Join(c.OutputJSONDir, c.OutputJSONFile))
}

// GetHistoryPath returns the path of the run history database.
func (c *Config) GetHistoryPath() string {
	if c.HistoryDB == ":memory:" {
		return c.HistoryDB
	}
	return absUnder(c.ProjectPath, filepath.Join(c.OutputJSONDir, c.HistoryDB))
}

func absUnder(root, rel string) string {
	p := rel
	if !filepath.IsAbs(rel) {
		p = filepath.Join(root, rel)
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// Level returns the configured log level, falling back to the default.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		lvl, _ = logrus.ParseLevel(DefaultLogLevel)
	}
	return lvl
}

// DSN returns the MySQL server DSN, without a database name.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/", d.User, d.Password, d.Host, d.Port)
}

// NewLogger returns a JSON logger writing to w.
func NewLogger(w io.Writer, level logrus.Level) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(level)
	log.SetFormatter(&logrus.JSONFormatter{})
	return log
}
