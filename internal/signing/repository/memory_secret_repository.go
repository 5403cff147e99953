// Package repository implements persistence for signing secret chains.
// Standalone clients keep the chain in process memory; deployments that share
// secrets across processes persist the chain in the key-value store, encrypted
// at rest through a KMS keeper when one is configured.
package repository

import (
	"context"
	"sync"

	signingDomain "github.com/rentora/apiguard/internal/signing/domain"
)

// MemorySecretRepository keeps the secret chain in process memory.
// Useful for tests and clients that regenerate secrets on startup.
type MemorySecretRepository struct {
	mu      sync.RWMutex
	secrets []*signingDomain.Secret
}

// NewMemorySecretRepository creates an empty in-memory repository.
func NewMemorySecretRepository() *MemorySecretRepository {
	return &MemorySecretRepository{}
}

// Save replaces the stored chain with a deep copy of the given secrets.
func (m *MemorySecretRepository) Save(ctx context.Context, secrets []*signingDomain.Secret) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]*signingDomain.Secret, 0, len(secrets))
	for _, secret := range secrets {
		stored = append(stored, secret.Clone())
	}
	m.secrets = stored
	return nil
}

// Load returns a deep copy of the stored chain. An empty repository returns
// an empty slice and no error; bootstrap is the manager's decision.
func (m *MemorySecretRepository) Load(ctx context.Context) ([]*signingDomain.Secret, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	loaded := make([]*signingDomain.Secret, 0, len(m.secrets))
	for _, secret := range m.secrets {
		loaded = append(loaded, secret.Clone())
	}
	return loaded, nil
}
