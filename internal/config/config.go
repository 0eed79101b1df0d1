package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	DataDir         string
	DBPath          string
	UserTypeDir     string
	ProjectTypeDir  string
	TickInterval    time.Duration
	ActivationDelay time.Duration
	HistoryLimit    int
	Increment       int
	// BlockPolicy is "wait" or "fail".
	BlockPolicy string
}

func New() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	dataDir := getEnv("CADENCE_DATA_DIR", filepath.Join(homeDir, ".cadence"))

	c := &Config{
		DataDir:        dataDir,
		DBPath:         filepath.Join(dataDir, "cadence.db"),
		UserTypeDir:    filepath.Join(dataDir, "runtypes"),
		ProjectTypeDir: ".cadence/runtypes",
		BlockPolicy:    getEnv("CADENCE_BLOCK_POLICY", "wait"),
	}

	if c.TickInterval, err = getDuration("CADENCE_TICK_INTERVAL", 600*time.Millisecond); err != nil {
		return nil, err
	}
	if c.ActivationDelay, err = getDuration("CADENCE_ACTIVATION_DELAY", 250*time.Millisecond); err != nil {
		return nil, err
	}
	if c.HistoryLimit, err = getInt("CADENCE_HISTORY_LIMIT", 100); err != nil {
		return nil, err
	}
	if c.Increment, err = getInt("CADENCE_INCREMENT", 5); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.TickInterval)
	}
	if c.ActivationDelay < 0 {
		return fmt.Errorf("activation delay must not be negative, got %s", c.ActivationDelay)
	}
	if c.Increment <= 0 || c.Increment > 100 {
		return fmt.Errorf("increment must be between 1 and 100, got %d", c.Increment)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("history limit must not be negative, got %d", c.HistoryLimit)
	}
	switch c.BlockPolicy {
	case "wait", "fail":
	default:
		return fmt.Errorf("block policy must be wait or fail, got %q", c.BlockPolicy)
	}
	return nil
}

func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	if err := os.MkdirAll(c.UserTypeDir, 0755); err != nil {
		return err
	}
	return nil
}

// TypeDirs lists run type directories, project first.
func (c *Config) TypeDirs() []string {
	return []string{c.ProjectTypeDir, c.UserTypeDir}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
