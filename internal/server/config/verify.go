package config

import (
	"errors"
	"os"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyRelay(&cfg.Relay); err != nil {
		return err
	}
	return verifySecurity(&cfg.Security)
}

func verifyServer(cfg *ServerSection) error {
	if cfg.HTTP.Addr == "" {
		return errors.New("server.http.addr is required")
	}
	if (cfg.HTTP.TLSCertFile == "") != (cfg.HTTP.TLSKeyFile == "") {
		return errors.New("server.http.tls_cert_file and tls_key_file must be set together")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	switch cfg.Backend {
	case "memory":
		return nil
	case "badger", "":
	default:
		return errors.New("storage.backend must be badger or memory")
	}

	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return errors.New("cannot create data directory: " + err.Error())
	}
	return nil
}

func verifyRelay(cfg *RelaySection) error {
	if cfg.IdleTTL < 0 {
		return errors.New("relay.idle_ttl must not be negative")
	}
	if cfg.MaxMessageSize < 0 {
		return errors.New("relay.max_message_size must not be negative")
	}
	if cfg.ByteBudgetFraction < 0 || cfg.ByteBudgetFraction > 1 {
		return errors.New("relay.byte_budget_fraction must be between 0 and 1")
	}
	return nil
}

func verifySecurity(cfg *SecuritySection) error {
	if cfg.VaultKey == "" && cfg.VaultPassphrase == "" {
		return errors.New("security.vault_key or security.vault_passphrase is required")
	}
	if cfg.VaultKey != "" && cfg.VaultPassphrase != "" {
		return errors.New("security.vault_key and vault_passphrase are mutually exclusive")
	}
	return nil
}
