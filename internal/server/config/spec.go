package config

import "time"

// ServerConfig is the root configuration for sigmesh-server.
type ServerConfig struct {
	Server   ServerSection   `koanf:"server"`
	Storage  StorageSection  `koanf:"storage"`
	Relay    RelaySection    `koanf:"relay"`
	Security SecuritySection `koanf:"security"`
	Log      LogSection      `koanf:"log"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP HTTPConfig `koanf:"http"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr        string `koanf:"addr"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	// CORSAllowedOrigins lists allowed origins; empty allows all.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// RateLimit is the per-IP request budget per second; 0 disables it.
	RateLimit int `koanf:"rate_limit"`

	// EnableAudit turns on per-request audit logging.
	EnableAudit bool `koanf:"enable_audit"`
}

// StorageSection configures storage behavior.
type StorageSection struct {
	// Backend selects the store: "badger" or "memory".
	Backend string `koanf:"backend"`

	// DataDir is the badger database directory.
	DataDir string `koanf:"data_dir"`

	// GCInterval is how often the badger value log is garbage collected.
	GCInterval time.Duration `koanf:"gc_interval"`

	// SyncWrites makes every write fsync before acknowledging.
	SyncWrites bool `koanf:"sync_writes"`
}

// RelaySection configures the relay and sync engine.
type RelaySection struct {
	// IdleTTL is how long a community with no connections stays in
	// memory before eviction.
	IdleTTL time.Duration `koanf:"idle_ttl"`

	// MaxMessageSize is the transport's hard message cap in bytes.
	MaxMessageSize int `koanf:"max_message_size"`

	// ByteBudgetFraction of MaxMessageSize is usable for entry payloads
	// in one pull response.
	ByteBudgetFraction float64 `koanf:"byte_budget_fraction"`

	// QueueSize bounds each transport session's pending frame queue.
	QueueSize int `koanf:"queue_size"`

	// SubmitRate and SubmitBurst cap submissions per connection.
	SubmitRate  float64 `koanf:"submit_rate"`
	SubmitBurst int     `koanf:"submit_burst"`
}

// SecuritySection configures the key-material vault.
type SecuritySection struct {
	// VaultKey is the raw vault key, hex or plain (32 bytes recommended).
	VaultKey string `koanf:"vault_key"`

	// VaultPassphrase derives the vault key via Argon2id when VaultKey
	// is empty.
	VaultPassphrase string `koanf:"vault_passphrase"`

	// VaultAlgorithm selects the AEAD: "aes-gcm", "chacha20-poly1305",
	// or empty for hardware-adaptive selection.
	VaultAlgorithm string `koanf:"vault_algorithm"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
