package scheduling

import (
	"fmt"
	"time"
)

type Config struct {
	Rank           int            `mapstructure:"rank"`
	DefaultHour    int            `mapstructure:"default_hour"`
	MeetingLength  time.Duration  `mapstructure:"meeting_length"`
	ReminderLength time.Duration  `mapstructure:"reminder_length"`
	Location       *time.Location `mapstructure:"-"`
}

func DefaultConfig() *Config {
	return &Config{
		Rank:           20,
		DefaultHour:    9,
		MeetingLength:  30 * time.Minute,
		ReminderLength: 15 * time.Minute,
		Location:       time.UTC,
	}
}

func (c *Config) Validate() error {
	if c.DefaultHour < 0 || c.DefaultHour > 23 {
		return fmt.Errorf("default_hour must be between 0 and 23")
	}
	if c.MeetingLength <= 0 || c.ReminderLength <= 0 {
		return fmt.Errorf("event lengths must be positive")
	}
	return nil
}
