package quote

import "fmt"

type Config struct {
	Rank       int `mapstructure:"rank"`
	MaxCompare int `mapstructure:"max_compare"`
	TopTickers int `mapstructure:"top_tickers"`
}

func DefaultConfig() *Config {
	return &Config{
		Rank:       50,
		MaxCompare: 2,
		TopTickers: 5,
	}
}

func (c *Config) Validate() error {
	if c.MaxCompare < 2 {
		return fmt.Errorf("max_compare must be at least 2")
	}
	if c.TopTickers <= 0 {
		return fmt.Errorf("top_tickers must be positive")
	}
	return nil
}
