package driven

// ConfigStore provides persistent key-value configuration.
type ConfigStore interface {
	// Get retrieves a raw value by key.
	Get(key string) (any, bool)

	// GetString retrieves a string value, or "" if not set.
	GetString(key string) string

	// GetInt retrieves an integer value, or 0 if not set.
	GetInt(key string) int

	// GetBool retrieves a boolean value, or false if not set.
	GetBool(key string) bool

	// GetStringSlice retrieves a string slice value, or nil if not set.
	GetStringSlice(key string) []string

	// Set stores a value and persists immediately.
	Set(key string, value any) error
}
