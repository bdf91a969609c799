package config

import (
	"errors"
	"fmt"
)

// ClientConfig is the validated view consumed by the sync engine wiring.
type ClientConfig struct {
	// App contains application-level settings.
	App AppConfig
	// Adapter contains remote API transport settings.
	Adapter AdapterConfig
	// Storage contains local database settings.
	Storage StorageConfig
	// Sync contains pipeline and upload queue tuning.
	Sync SyncConfig
}

// GetClientConfig builds and validates the client configuration from the
// merged structured configuration.
func GetClientConfig() (*ClientConfig, error) {
	cfg, err := GetStructuredConfig()
	if err != nil {
		return nil, fmt.Errorf("error get structured config: %w", err)
	}

	clientCfg := &ClientConfig{
		App:     cfg.App,
		Adapter: cfg.Adapter,
		Storage: cfg.Storage,
		Sync:    cfg.Sync,
	}

	return clientCfg, clientCfg.validate()
}

func (c *ClientConfig) validate() error {
	var errs []error

	if c.Adapter.HTTPAddress == "" {
		errs = append(errs, errors.New("adapter http address is required"))
	}
	if c.Adapter.RequestTimeout <= 0 {
		errs = append(errs, errors.New("adapter request timeout must be positive"))
	}
	if c.Storage.DSN == "" {
		errs = append(errs, errors.New("storage dsn is required"))
	}
	if c.Sync.BatchSize <= 0 {
		errs = append(errs, errors.New("sync batch size must be positive"))
	}
	if c.Sync.UploadMaxAttempts <= 0 {
		errs = append(errs, errors.New("upload max attempts must be positive"))
	}
	if c.Sync.UploadBackoffBase <= 0 || c.Sync.UploadBackoffCap < c.Sync.UploadBackoffBase {
		errs = append(errs, errors.New("upload backoff base/cap are inconsistent"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid client config: %w", errors.Join(errs...))
	}
	return nil
}
