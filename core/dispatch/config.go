package dispatch

// Config defines coordinator-related settings.
type Config struct {
	// UrgentFillThreshold is the fill percentage above which an overflow
	// transition triggers emergency dispatch.
	UrgentFillThreshold int `json:"urgent_fill_threshold"`
	// PerBinWeightKg is the fixed weight estimate added per collected bin.
	PerBinWeightKg float64 `json:"per_bin_weight_kg"`
	// ServiceTimeMinutes and TravelBufferMinutes parameterize the naive
	// fill-level optimizer.
	ServiceTimeMinutes  int `json:"service_time_minutes"`
	TravelBufferMinutes int `json:"travel_buffer_minutes"`
	// QueueSize bounds the intake queue.
	QueueSize int `json:"queue_size"`
	// Drivers lists the driver identifiers eligible for emergency
	// auto-dispatch.
	Drivers []string `json:"drivers"`
	// RetryAttempts and RetryBackoffMS bound persistence retries.
	RetryAttempts  int `json:"retry_attempts"`
	RetryBackoffMS int `json:"retry_backoff_ms"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.UrgentFillThreshold <= 0 {
		c.UrgentFillThreshold = 85
	}
	if c.PerBinWeightKg <= 0 {
		c.PerBinWeightKg = 50
	}
	if c.ServiceTimeMinutes <= 0 {
		c.ServiceTimeMinutes = 15
	}
	if c.TravelBufferMinutes <= 0 {
		c.TravelBufferMinutes = 10
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBackoffMS <= 0 {
		c.RetryBackoffMS = 100
	}
}
