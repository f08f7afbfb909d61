package conversational

import (
	"fmt"
	"time"
)

type Config struct {
	Rank      int            `mapstructure:"rank"`
	Assistant string         `mapstructure:"assistant"`
	Location  *time.Location `mapstructure:"-"`
}

func DefaultConfig() *Config {
	return &Config{
		Rank:      5,
		Assistant: "Orqon",
		Location:  time.UTC,
	}
}

func (c *Config) Validate() error {
	if c.Rank < 0 {
		return fmt.Errorf("rank must not be negative")
	}
	if c.Assistant == "" {
		return fmt.Errorf("assistant name is required")
	}
	return nil
}
