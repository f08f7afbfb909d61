package tradelog

import "fmt"

type Config struct {
	Rank             int    `mapstructure:"rank"`
	DefaultOrderType string `mapstructure:"default_order_type"`
	DefaultStage     string `mapstructure:"default_stage"`
	MaxTrades        int    `mapstructure:"max_trades"`
}

func DefaultConfig() *Config {
	return &Config{
		Rank:             10,
		DefaultOrderType: "Market",
		DefaultStage:     "Pending",
		MaxTrades:        25,
	}
}

func (c *Config) Validate() error {
	if c.MaxTrades <= 0 {
		return fmt.Errorf("max_trades must be positive")
	}
	return nil
}
