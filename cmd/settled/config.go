// config.go - Configuration management for the settlement daemon
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the application configuration
type Config struct {
	// Scenario settings
	ObligationCount  int    `json:"obligation_count"`
	ObligationAmount int64  `json:"obligation_amount"`
	IssueAmount      int64  `json:"issue_amount"`
	IssueUnits       int    `json:"issue_units"`
	Asset            string `json:"asset"`

	// Network
	IssuerAddr string `json:"issuer_addr"`
	HolderAddr string `json:"holder_addr"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`

	// Performance
	MaxInFlight    int `json:"max_in_flight"`
	Attempts       int `json:"attempts"`
	TimeoutSeconds int `json:"timeout_seconds"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		ObligationCount:  3,
		ObligationAmount: 40,
		IssueAmount:      50,
		IssueUnits:       4,
		Asset:            "USD",
		IssuerAddr:       "127.0.0.1:0",
		HolderAddr:       "127.0.0.1:0",
		LogLevel:         "info",
		LogFile:          "settled.log",
		MaxInFlight:      4,
		Attempts:         3,
		TimeoutSeconds:   30,
	}
}

// LoadConfig loads configuration from file or creates default
func LoadConfig(configPath string) (*Config, error) {
	// Try to load from file
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		var config Config
		if err := json.NewDecoder(file).Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}

		return &config, nil
	}

	// Create default config and save it
	config := DefaultConfig()
	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save default config: %w", err)
	}

	return config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, configPath string) error {
	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ObligationCount <= 0 {
		return fmt.Errorf("obligation_count must be positive")
	}
	if c.ObligationAmount <= 0 {
		return fmt.Errorf("obligation_amount must be positive")
	}
	if c.IssueAmount <= 0 {
		return fmt.Errorf("issue_amount must be positive")
	}
	if c.IssueUnits <= 0 {
		return fmt.Errorf("issue_units must be positive")
	}
	if c.Asset == "" {
		return fmt.Errorf("asset must be set")
	}
	if c.MaxInFlight <= 0 {
		return fmt.Errorf("max_in_flight must be positive")
	}
	if c.Attempts <= 0 {
		return fmt.Errorf("attempts must be positive")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive")
	}
	return nil
}
