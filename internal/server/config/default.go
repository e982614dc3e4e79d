package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr  = "127.0.0.1:5080"
	DefaultHTTPSAddr = "127.0.0.1:5443"

	DefaultStorageBackend = "badger"
	DefaultDataDir        = "/var/lib/sigmesh-server/data"
	DefaultGCInterval     = 5 * time.Minute

	DefaultIdleTTL            = 300_000 * time.Millisecond
	DefaultMaxMessageSize     = 1_000_000
	DefaultByteBudgetFraction = 0.8
	DefaultQueueSize          = 64
	DefaultSubmitRate         = 50
	DefaultSubmitBurst        = 100

	DefaultRateLimit = 1000

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:        DefaultHTTPAddr,
				RateLimit:   DefaultRateLimit,
				EnableAudit: true,
			},
		},
		Storage: StorageSection{
			Backend:    DefaultStorageBackend,
			DataDir:    DefaultDataDir,
			GCInterval: DefaultGCInterval,
			SyncWrites: true,
		},
		Relay: RelaySection{
			IdleTTL:            DefaultIdleTTL,
			MaxMessageSize:     DefaultMaxMessageSize,
			ByteBudgetFraction: DefaultByteBudgetFraction,
			QueueSize:          DefaultQueueSize,
			SubmitRate:         DefaultSubmitRate,
			SubmitBurst:        DefaultSubmitBurst,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
