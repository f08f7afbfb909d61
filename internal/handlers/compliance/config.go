package compliance

import "fmt"

type Config struct {
	Rank          int `mapstructure:"rank"`
	SearchLimit   int `mapstructure:"search_limit"`
	RecentTurns   int `mapstructure:"recent_turns"`
	HighRiskScore int `mapstructure:"high_risk_score"`
	RecentTrades  int `mapstructure:"recent_trades"`
}

func DefaultConfig() *Config {
	return &Config{
		Rank:          60,
		SearchLimit:   3,
		RecentTurns:   5,
		HighRiskScore: 50,
		RecentTrades:  5,
	}
}

func (c *Config) Validate() error {
	if c.SearchLimit <= 0 {
		return fmt.Errorf("search_limit must be positive")
	}
	if c.HighRiskScore < 0 || c.HighRiskScore > maxScore {
		return fmt.Errorf("high_risk_score must be between 0 and %d", maxScore)
	}
	return nil
}
