package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Channel is one preconfigured recording source.
type Channel struct {
	Name string `json:"Name"`
	Id   string `json:"Id"`
	// Manifest is the F4M manifest URL or local path for the channel.
	Manifest string `json:"Manifest"`
	// Bitrate caps media selection in kbps; zero picks the highest
	// variant the manifest offers.
	Bitrate int `json:"Bitrate"`
}

// Config holds the application configuration.
type Config struct {
	UserAgent string    `json:"UserAgent"`
	OutputDir string    `json:"OutputDir"`
	Channels  []Channel `json:"Channels"`
}

// LoadConfig reads and parses the configuration file from the given
// path and validates the channel list.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file at %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config JSON: %w", err)
	}

	seen := make(map[string]bool, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		if ch.Id == "" {
			return nil, fmt.Errorf("channel %d has no id", i)
		}
		if seen[ch.Id] {
			return nil, fmt.Errorf("duplicate channel id '%s'", ch.Id)
		}
		seen[ch.Id] = true
		if ch.Manifest == "" {
			return nil, fmt.Errorf("channel '%s' has no manifest", ch.Id)
		}
	}

	return &cfg, nil
}

// FindChannel returns the channel with the given id, or nil.
func (c *Config) FindChannel(id string) *Channel {
	for i := range c.Channels {
		if c.Channels[i].Id == id {
			return &c.Channels[i]
		}
	}
	return nil
}
