package records

import "fmt"

type Config struct {
	Rank    int `mapstructure:"rank"`
	MaxRows int `mapstructure:"max_rows"`
}

func DefaultConfig() *Config {
	return &Config{
		Rank:    40,
		MaxRows: 20,
	}
}

func (c *Config) Validate() error {
	if c.MaxRows <= 0 {
		return fmt.Errorf("max_rows must be positive")
	}
	return nil
}
