package redis

import "time"

// Config holds Redis connection and listing settings.
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string

	PoolSize     int
	MinIdleConns int

	// ListingTTL expires a listing that is not refreshed, so rooms of a
	// crashed node drop out of the directory.
	ListingTTL time.Duration
}

// DefaultConfig returns local defaults.
func DefaultConfig() Config {
	return Config{
		URL:          "redis://localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		ListingTTL:   time.Minute,
	}
}
