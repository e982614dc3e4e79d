package secrets

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/argon2"

	"github.com/sigmesh/sigmesh-go/internal/core/domain"
	"github.com/sigmesh/sigmesh-go/internal/storage"
	"github.com/sigmesh/sigmesh-go/pkg/crypto/adaptive"
)

// Vault errors.
var (
	ErrKeyTooShort       = errors.New("secrets: vault key too short (minimum 16 bytes)")
	ErrPassphraseTooWeak = errors.New("secrets: passphrase too weak (minimum 8 characters)")
)

const (
	// MinKeyLength is the minimum vault key length.
	MinKeyLength = 16

	// MinPassphraseLength is the minimum passphrase length.
	MinPassphraseLength = 8

	// SaltLength is the salt length used in key derivation.
	SaltLength = 16

	// Argon2id parameters for passphrase derivation.
	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32

	// Store key names. The salt lives next to the sealed values so a
	// restart derives the same vault key.
	saltName          = "vault/salt"
	materialKeyPrefix = "keymat/"
)

// Config configures the vault key. Exactly one of Key or Passphrase must
// be set.
type Config struct {
	// Key is the raw vault key (32 bytes recommended).
	Key []byte

	// Passphrase derives the vault key via Argon2id when Key is empty.
	Passphrase []byte

	// Algorithm selects the AEAD: "aes-gcm", "chacha20-poly1305", or
	// empty for hardware-adaptive selection.
	Algorithm string
}

// Vault seals and unseals community key material against a SecretStore.
type Vault struct {
	store  storage.SecretStore
	cipher adaptive.Cipher
	logger *slog.Logger
}

// NewVault opens the vault, deriving the key and loading or creating the
// salt as needed.
func NewVault(ctx context.Context, store storage.SecretStore, cfg Config, logger *slog.Logger) (*Vault, error) {
	if logger == nil {
		logger = slog.Default()
	}

	key, err := vaultKey(ctx, store, cfg)
	if err != nil {
		return nil, err
	}
	defer ZeroKey(key)

	var c adaptive.Cipher
	if cfg.Algorithm == "" {
		c, err = adaptive.New(key)
	} else {
		c, err = adaptive.NewWithType(key, adaptive.CipherType(cfg.Algorithm))
	}
	if err != nil {
		return nil, fmt.Errorf("secrets: init cipher: %w", err)
	}

	logger.Info("secrets vault opened", "cipher", c.Type())
	return &Vault{store: store, cipher: c, logger: logger}, nil
}

// vaultKey resolves the vault key from the config, persisting a fresh salt
// on first passphrase use.
func vaultKey(ctx context.Context, store storage.SecretStore, cfg Config) ([]byte, error) {
	if len(cfg.Key) > 0 {
		if len(cfg.Key) < MinKeyLength {
			return nil, ErrKeyTooShort
		}
		key := make([]byte, len(cfg.Key))
		copy(key, cfg.Key)
		return key, nil
	}

	if len(cfg.Passphrase) == 0 {
		return nil, errors.New("secrets: key or passphrase is required")
	}
	if len(cfg.Passphrase) < MinPassphraseLength {
		return nil, ErrPassphraseTooWeak
	}

	salt, err := store.GetSecret(ctx, saltName)
	if errors.Is(err, storage.ErrNotFound) {
		salt = make([]byte, SaltLength)
		if _, rerr := rand.Read(salt); rerr != nil {
			return nil, fmt.Errorf("secrets: generate salt: %w", rerr)
		}
		if perr := store.PutSecret(ctx, saltName, salt); perr != nil {
			return nil, perr
		}
	} else if err != nil {
		return nil, err
	}

	return argon2.IDKey(cfg.Passphrase, salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen), nil
}

// Seal encrypts key material for a community and persists it. The team ID
// is bound as additional data so sealed values cannot be swapped between
// communities.
func (v *Vault) Seal(ctx context.Context, teamID string, material []byte) error {
	if len(material) == 0 {
		return domain.ErrKeyMaterialInvalid.WithDetails("empty key material")
	}

	sealed, err := v.cipher.Encrypt(material, []byte(teamID))
	if err != nil {
		return domain.ErrInternalServer.WithCause(err)
	}
	return v.store.PutSecret(ctx, materialKeyPrefix+teamID, sealed)
}

// Unseal returns the decrypted key material for a community.
func (v *Vault) Unseal(ctx context.Context, teamID string) ([]byte, error) {
	sealed, err := v.store.GetSecret(ctx, materialKeyPrefix+teamID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.ErrKeyMaterialNotFound.WithDetails("team_id=" + teamID)
	}
	if err != nil {
		return nil, err
	}

	material, err := v.cipher.Decrypt(sealed, []byte(teamID))
	if err != nil {
		return nil, domain.ErrKeyMaterialInvalid.WithCause(err)
	}
	return material, nil
}

// GenerateKey generates a random key of the specified length.
func GenerateKey(length int) ([]byte, error) {
	if length < MinKeyLength {
		return nil, ErrKeyTooShort
	}
	key := make([]byte, length)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("secrets: generate key: %w", err)
	}
	return key, nil
}

// ZeroKey securely zeros a key in memory.
func ZeroKey(key []byte) {
	for i := range key {
		key[i] = 0
	}
}
