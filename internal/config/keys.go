// Package config key access for the `gantry config get/set` commands.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// ErrUnknownKey is returned when a config key is not recognized.
var ErrUnknownKey = errors.New("unknown config key")

// Keys returns the settable configuration keys in sorted order.
func Keys() []string {
	keys := []string{
		"review.max_iterations",
		"review.timeout",
		"dispatch.max_per_domain",
		"memory.enabled",
		"debug.enabled",
		"hooks.implement",
		"hooks.verify",
		"hooks.review",
	}
	sort.Strings(keys)
	return keys
}

// Get returns the display value for a dotted config key.
func Get(cfg *Config, key string) (string, error) {
	switch key {
	case "review.max_iterations":
		return strconv.Itoa(cfg.Review.MaxIterations), nil
	case "review.timeout":
		return cfg.Review.Timeout.String(), nil
	case "dispatch.max_per_domain":
		return strconv.Itoa(cfg.Dispatch.MaxPerDomain), nil
	case "memory.enabled":
		return strconv.FormatBool(cfg.Memory.Enabled), nil
	case "debug.enabled":
		return strconv.FormatBool(cfg.Debug.Enabled), nil
	case "hooks.implement":
		return cfg.Hooks.Implement, nil
	case "hooks.verify":
		return cfg.Hooks.Verify, nil
	case "hooks.review":
		return cfg.Hooks.Review, nil
	default:
		return "", fmt.Errorf("%s: %w", key, ErrUnknownKey)
	}
}

// Set parses and applies a value for a dotted config key.
func Set(cfg *Config, key, value string) error {
	switch key {
	case "review.max_iterations":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("review.max_iterations must be a positive integer")
		}
		cfg.Review.MaxIterations = n
	case "review.timeout":
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return fmt.Errorf("review.timeout must be a positive duration")
		}
		cfg.Review.Timeout = d
	case "dispatch.max_per_domain":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("dispatch.max_per_domain must be a positive integer")
		}
		cfg.Dispatch.MaxPerDomain = n
	case "memory.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("memory.enabled must be a boolean")
		}
		cfg.Memory.Enabled = b
	case "debug.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("debug.enabled must be a boolean")
		}
		cfg.Debug.Enabled = b
	case "hooks.implement":
		cfg.Hooks.Implement = value
	case "hooks.verify":
		cfg.Hooks.Verify = value
	case "hooks.review":
		cfg.Hooks.Review = value
	default:
		return fmt.Errorf("%s: %w", key, ErrUnknownKey)
	}
	return nil
}
