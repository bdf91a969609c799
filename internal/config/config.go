// Package config assembles the engine configuration from flags, environment
// variables and an optional JSON file, merged in that priority order.
package config

import "time"

// StructuredConfig is the merged configuration shape shared by all sources.
// Field tags drive both env parsing (caarlos0/env) and the JSON file format.
type StructuredConfig struct {
	// App contains application-level settings.
	App AppConfig `json:"app" envPrefix:"APP_"`
	// Adapter contains remote API transport settings.
	Adapter AdapterConfig `json:"adapter" envPrefix:"ADAPTER_"`
	// Storage contains local database settings.
	Storage StorageConfig `json:"storage" envPrefix:"STORAGE_"`
	// Sync contains pipeline and upload queue tuning.
	Sync SyncConfig `json:"sync" envPrefix:"SYNC_"`

	// jsonFilePath is carried by the flags source only; it points the builder
	// at the optional JSON config file.
	jsonFilePath string
}

// AppConfig holds application-level settings.
type AppConfig struct {
	// LogPath is an optional log file; empty means stdout.
	LogPath string `json:"log_path" env:"LOG_PATH"`
}

// AdapterConfig holds network settings for the remote field-service API.
type AdapterConfig struct {
	// HTTPAddress is the base URL of the remote API.
	HTTPAddress string `json:"http_address" env:"HTTP_ADDRESS"`
	// RequestTimeout bounds every outbound request.
	RequestTimeout time.Duration `json:"request_timeout" env:"REQUEST_TIMEOUT"`
	// Token is the bearer token issued by the auth layer (external to the
	// engine); its subject claim identifies the technician scope.
	Token string `json:"token" env:"TOKEN"`
}

// StorageConfig holds local database settings.
type StorageConfig struct {
	// DSN is the SQLite file path (":memory:" for tests).
	DSN string `json:"dsn" env:"DSN"`
}

// SyncConfig holds pipeline and upload queue tuning knobs.
type SyncConfig struct {
	// Interval is the periodic auto-sync interval while foregrounded.
	Interval time.Duration `json:"interval" env:"INTERVAL"`
	// BatchSize caps records per pull page and per push batch unless a
	// descriptor overrides it.
	BatchSize int `json:"batch_size" env:"BATCH_SIZE"`
	// UploadBatchSize caps attachments attempted per queue pass.
	UploadBatchSize int `json:"upload_batch_size" env:"UPLOAD_BATCH_SIZE"`
	// UploadMaxAttempts is the terminal attempt budget per queue item.
	UploadMaxAttempts int `json:"upload_max_attempts" env:"UPLOAD_MAX_ATTEMPTS"`
	// UploadBackoffBase is the first retry delay; doubled per attempt.
	UploadBackoffBase time.Duration `json:"upload_backoff_base" env:"UPLOAD_BACKOFF_BASE"`
	// UploadBackoffCap bounds the retry delay growth.
	UploadBackoffCap time.Duration `json:"upload_backoff_cap" env:"UPLOAD_BACKOFF_CAP"`
}

// defaults returns the baseline configuration merged in last.
func defaults() *StructuredConfig {
	return &StructuredConfig{
		Adapter: AdapterConfig{
			RequestTimeout: 15 * time.Second,
		},
		Storage: StorageConfig{
			DSN: "fieldsync.db",
		},
		Sync: SyncConfig{
			Interval:          5 * time.Minute,
			BatchSize:         100,
			UploadBatchSize:   10,
			UploadMaxAttempts: 8,
			UploadBackoffBase: time.Second,
			UploadBackoffCap:  time.Minute,
		},
	}
}

// GetStructuredConfig builds the merged configuration from all sources.
func GetStructuredConfig() (*StructuredConfig, error) {
	return newConfigBuilder().
		withFlags().
		withEnv().
		withJSON().
		withDefaults().
		build()
}
