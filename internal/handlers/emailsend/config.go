package emailsend

import "fmt"

type Config struct {
	Rank      int    `mapstructure:"rank"`
	Signature string `mapstructure:"signature"`
}

func DefaultConfig() *Config {
	return &Config{
		Rank:      30,
		Signature: "Best regards",
	}
}

func (c *Config) Validate() error {
	if c.Signature == "" {
		return fmt.Errorf("signature is required")
	}
	return nil
}
