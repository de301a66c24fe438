package cache

import "time"

// Config holds subscription cache configuration
type Config struct {
	// LocalSize is the maximum number of entries in the in-process cache
	LocalSize int
	// LocalTTL bounds how long another instance's plan change can stay invisible here
	LocalTTL time.Duration
	// RedisTTL is the expiry of entries in the shared redis cache
	RedisTTL time.Duration
	// KeyPrefix namespaces redis keys
	KeyPrefix string
}

// DefaultConfig returns the default cache configuration
func DefaultConfig() Config {
	return Config{
		LocalSize: 10000,
		LocalTTL:  30 * time.Second,
		RedisTTL:  15 * time.Minute,
		KeyPrefix: "pricebulk:subscription:",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.LocalSize <= 0 {
		c.LocalSize = d.LocalSize
	}
	if c.LocalTTL <= 0 {
		c.LocalTTL = d.LocalTTL
	}
	if c.RedisTTL <= 0 {
		c.RedisTTL = d.RedisTTL
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = d.KeyPrefix
	}
	return c
}
