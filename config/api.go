package config

// APIConfig defines the driver action API settings.
type APIConfig struct {
	// Addr is the listen address of the HTTP API.
	Addr string `json:"addr"`
}

// SetDefaults applies sane defaults.
func (c *APIConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}
