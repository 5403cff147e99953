package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/rentora/apiguard/internal/errors"
	signingDomain "github.com/rentora/apiguard/internal/signing/domain"
)

// ManagerConfig controls rotation cadence and retention depth.
type ManagerConfig struct {
	RotationInterval time.Duration
	RetainedSecrets  int
}

// secretManager implements SecretManager over a SecretRepository.
type secretManager struct {
	repo   SecretRepository
	cfg    ManagerConfig
	logger *slog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	chain *signingDomain.Chain
}

// NewSecretManager loads the persisted chain and bootstraps the first secret
// when the repository is empty. Rotation state survives restarts through the
// repository.
func NewSecretManager(
	ctx context.Context,
	repo SecretRepository,
	cfg ManagerConfig,
	logger *slog.Logger,
) (SecretManager, error) {
	if cfg.RotationInterval <= 0 {
		cfg.RotationInterval = signingDomain.DefaultRotationInterval
	}
	if cfg.RetainedSecrets <= 0 {
		cfg.RetainedSecrets = signingDomain.DefaultRetainedSecrets
	}

	manager := &secretManager{
		repo:   repo,
		cfg:    cfg,
		logger: logger.With("component", "secret_manager"),
		now:    func() time.Time { return time.Now().UTC() },
	}

	secrets, err := repo.Load(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to load signing secrets")
	}

	if len(secrets) == 0 {
		manager.chain = signingDomain.NewChain(nil)
		if _, err := manager.Rotate(ctx); err != nil {
			return nil, apperrors.Wrap(err, "failed to bootstrap signing secret")
		}
		return manager, nil
	}

	manager.chain = signingDomain.NewChain(secrets)
	manager.logger.Info("signing secrets loaded",
		"retained", manager.chain.Len(),
		"active_id", idPrefix(manager.chain.ActiveID()),
	)
	return manager, nil
}

// Active returns the secret that signs new requests.
func (m *secretManager) Active(ctx context.Context) (*signingDomain.Secret, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	secret, ok := m.chain.Active()
	if !ok {
		return nil, signingDomain.ErrNoActiveSecret
	}
	return secret, nil
}

// Lookup returns any retained secret by id.
func (m *secretManager) Lookup(ctx context.Context, id string) (*signingDomain.Secret, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	secret, ok := m.chain.Get(id)
	if !ok {
		return nil, signingDomain.ErrUnknownSecret
	}
	return secret, nil
}

// All returns the retained secrets ordered newest first.
func (m *secretManager) All(ctx context.Context) ([]*signingDomain.Secret, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.chain.All(), nil
}

// RotateIfNeeded rotates when the active secret is older than the rotation
// interval. Signing callers invoke this before every signature, so rotation
// needs no scheduler in client deployments.
func (m *secretManager) RotateIfNeeded(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if active, ok := m.chain.Active(); ok {
		if m.now().Sub(active.CreatedAt) < m.cfg.RotationInterval {
			return false, nil
		}
	}

	if _, err := m.rotateLocked(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Rotate generates a fresh active secret, deactivates the previous ones and
// trims retention, persisting the new chain before it takes effect.
func (m *secretManager) Rotate(ctx context.Context) (*signingDomain.Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rotateLocked(ctx)
}

func (m *secretManager) rotateLocked(ctx context.Context) (*signingDomain.Secret, error) {
	fresh, err := signingDomain.NewSecret(m.now())
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to generate signing secret")
	}

	updated := []*signingDomain.Secret{fresh}
	for _, secret := range m.chain.All() {
		retained := secret.Clone()
		retained.Active = false
		updated = append(updated, retained)
	}

	var evicted []*signingDomain.Secret
	if len(updated) > m.cfg.RetainedSecrets {
		evicted = updated[m.cfg.RetainedSecrets:]
		updated = updated[:m.cfg.RetainedSecrets]
	}

	if err := m.repo.Save(ctx, updated); err != nil {
		signingDomain.Zero(fresh.Key)
		return nil, apperrors.Wrap(err, "failed to persist rotated secrets")
	}

	for _, secret := range evicted {
		signingDomain.Zero(secret.Key)
	}

	m.chain = signingDomain.NewChain(updated)
	m.logger.Info("signing secret rotated",
		"active_id", idPrefix(fresh.ID),
		"retained", len(updated),
		"evicted", len(evicted),
	)
	return fresh, nil
}

// Close zeroes retained key material.
func (m *secretManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chain.Close()
}

// idPrefix truncates a secret id for log output.
func idPrefix(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
