package config

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Storage: StorageConfig{
			ProfileDir:  "~/.config/seer",
			DBFile:      "seer.sqlite",
			Synchronous: "OFF",
		},
		Network: NetworkConfig{
			ConnectTimeoutSeconds: 10,
			ResolveTimeoutSeconds: 5,
		},
		Daemon: DaemonConfig{
			Host:           "127.0.0.1",
			Port:           8731,
			MaxRequestSize: 65536,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
		},
	}
}
