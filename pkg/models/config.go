package models

// Config is the gateway's top-level configuration, loaded from a JSON file
// and overridden by environment variables (see pkg/config).
type Config struct {
	// HomebaseAllowedIPs restricts which addresses Ensure() will start a
	// Link for. Empty means unrestricted.
	HomebaseAllowedIPs []string `json:"homebase_allowed_ips"`

	SubscribeEveryDefault int `json:"subscribe_every_default"`
	BrowserPort           int `json:"browser_port"`

	HeartbeatIntervalMs int `json:"heartbeat_interval_ms"`
	HeartbeatTimeoutMs  int `json:"heartbeat_timeout_ms"`
	StaleMs             int `json:"stale_ms"`
	ConnectTimeoutMs    int `json:"connect_timeout_ms"`

	RequestDefaultTimeoutMs int `json:"request_default_timeout_ms"`
	MaxInFlight             int `json:"max_in_flight"`
	MaxQueue                int `json:"max_queue"`

	FastRetryWindowMs int `json:"fast_retry_window_ms"`
	FastRetryBaseMs   int `json:"fast_retry_base_ms"`
	FastRetryJitterMs int `json:"fast_retry_jitter_ms"`

	SlowBaseBackoffMs int `json:"slow_base_backoff_ms"`
	SlowMaxBackoffMs  int `json:"slow_max_backoff_ms"`
	SlowJitterMs      int `json:"slow_jitter_ms"`

	ProbeIntervalMs int     `json:"probe_interval_ms"`
	ProbeTimeoutS   float64 `json:"probe_timeout_s"`
	ProbeWindow     int     `json:"probe_window"`

	// Database is the DSN-equivalent connection settings for the pgx pool,
	// in the teacher's CNPG-style field set.
	Database DatabaseConfig `json:"database"`

	// KVNatsURL, when set, enables watching a NATS JetStream KV bucket for
	// hot-reloadable overrides of the allow-list and subscription catalog.
	KVNatsURL    string `json:"kv_nats_url,omitempty"`
	KVNatsBucket string `json:"kv_nats_bucket,omitempty"`

	// ExtraSubscribeKeys are appended to every Link's fixed subscribe/touch
	// catalog (pkg/homebase's catalog var), normally empty and populated by
	// a KV override rather than the static config file.
	ExtraSubscribeKeys []string `json:"extra_subscribe_keys,omitempty"`

	Logging LoggingConfig `json:"logging"`
}

type DatabaseConfig struct {
	Host               string            `json:"host"`
	Port               int               `json:"port"`
	Database           string            `json:"database"`
	Username           string            `json:"username"`
	Password           string            `json:"password"`
	SSLMode            string            `json:"ssl_mode"`
	ApplicationName    string            `json:"application_name"`
	ExtraRuntimeParams map[string]string `json:"extra_runtime_params,omitempty"`
	MaxConnections     int32             `json:"max_connections"`
	MinConnections     int32             `json:"min_connections"`
}

type LoggingConfig struct {
	Level string `json:"level"`
	Debug bool   `json:"debug"`
}

// DefaultConfig returns the configuration defaults named in spec.md §6.
func DefaultConfig() Config {
	return Config{
		SubscribeEveryDefault:   1,
		BrowserPort:             8080,
		HeartbeatIntervalMs:     10000,
		HeartbeatTimeoutMs:      5000,
		StaleMs:                 30000,
		ConnectTimeoutMs:        8000,
		RequestDefaultTimeoutMs: 10000,
		MaxInFlight:             8,
		MaxQueue:                200,
		FastRetryWindowMs:       300000,
		FastRetryBaseMs:         2000,
		FastRetryJitterMs:       1000,
		SlowBaseBackoffMs:       15000,
		SlowMaxBackoffMs:        120000,
		SlowJitterMs:            2000,
		ProbeIntervalMs:         10000,
		ProbeTimeoutS:           0.5,
		ProbeWindow:             100,
	}
}
