package repository

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"gocloud.dev/secrets"

	apperrors "github.com/rentora/apiguard/internal/errors"
	signingDomain "github.com/rentora/apiguard/internal/signing/domain"
	"github.com/rentora/apiguard/internal/storage"
)

// DefaultChainKey is the storage key holding the serialized secret chain.
const DefaultChainKey = "signing_secret_chain"

// storedSecret is the persisted form of a signing secret. Key material is
// hex-encoded; the whole document may additionally be keeper-encrypted.
type storedSecret struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
}

// StorageSecretRepository persists the secret chain in the shared key-value
// store. With a keeper configured the serialized chain is encrypted at rest,
// so a compromised store does not leak signing keys.
type StorageSecretRepository struct {
	store  storage.Store
	keeper *secrets.Keeper
	key    string
}

// NewStorageSecretRepository creates a repository on top of the given store.
// keeper may be nil, in which case the chain is stored as plaintext JSON.
func NewStorageSecretRepository(store storage.Store, keeper *secrets.Keeper, key string) *StorageSecretRepository {
	if key == "" {
		key = DefaultChainKey
	}
	return &StorageSecretRepository{
		store:  store,
		keeper: keeper,
		key:    key,
	}
}

// Save serializes and persists the full chain, replacing the previous one.
func (s *StorageSecretRepository) Save(ctx context.Context, chain []*signingDomain.Secret) error {
	stored := make([]storedSecret, 0, len(chain))
	for _, secret := range chain {
		stored = append(stored, storedSecret{
			ID:        secret.ID,
			Key:       hex.EncodeToString(secret.Key),
			CreatedAt: secret.CreatedAt,
			Active:    secret.Active,
		})
	}

	payload, err := json.Marshal(stored)
	if err != nil {
		return apperrors.Wrap(err, "failed to serialize secret chain")
	}

	if s.keeper != nil {
		encrypted, err := s.keeper.Encrypt(ctx, payload)
		signingDomain.Zero(payload)
		if err != nil {
			return apperrors.Wrap(err, "failed to encrypt secret chain")
		}
		payload = encrypted
	}

	if err := s.store.Set(ctx, s.key, payload, 0); err != nil {
		return apperrors.Wrap(err, "failed to persist secret chain")
	}
	return nil
}

// Load reads and deserializes the chain. A missing key yields an empty chain,
// letting the manager bootstrap the first secret.
func (s *StorageSecretRepository) Load(ctx context.Context) ([]*signingDomain.Secret, error) {
	payload, err := s.store.Get(ctx, s.key)
	if err != nil {
		if apperrors.Is(err, storage.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, "failed to load secret chain")
	}

	if s.keeper != nil {
		decrypted, err := s.keeper.Decrypt(ctx, payload)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to decrypt secret chain")
		}
		payload = decrypted
	}

	var stored []storedSecret
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, apperrors.Wrap(err, "failed to deserialize secret chain")
	}
	signingDomain.Zero(payload)

	chain := make([]*signingDomain.Secret, 0, len(stored))
	for _, record := range stored {
		key, err := hex.DecodeString(record.Key)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to decode secret key material")
		}
		chain = append(chain, &signingDomain.Secret{
			ID:        record.ID,
			Key:       key,
			CreatedAt: record.CreatedAt,
			Active:    record.Active,
		})
	}
	return chain, nil
}
