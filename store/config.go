package store

// Config holds configuration for the Store.
type Config struct {
	// Table is the DynamoDB table holding every entity kind.
	// Default: "storefront_entities"
	Table string

	// ConsistentReads makes Get and List use strongly consistent reads.
	// Default: true. Checkout re-reads products right before snapshotting
	// their price, so stale reads widen the oversell window.
	ConsistentReads bool

	// PageSize bounds the number of rows fetched per List page.
	// Default: 100
	// Max: 1000
	PageSize int32
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Table:           "storefront_entities",
		ConsistentReads: true,
		PageSize:        100,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Table == "" {
		c.Table = "storefront_entities"
	}
	if c.PageSize < 1 {
		c.PageSize = 100
	}
	if c.PageSize > 1000 {
		c.PageSize = 1000
	}
}
