package sendreminder

import (
	"fmt"
	"time"
)

type Config struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
	Sound   string        `mapstructure:"sound"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Timeout: 10 * time.Second,
		Sound:   "default",
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}
