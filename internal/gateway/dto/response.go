// Package dto provides data transfer objects for the gateway admin API.
package dto

import (
	"time"

	breakerDomain "github.com/rentora/apiguard/internal/breaker/domain"
	signingDomain "github.com/rentora/apiguard/internal/signing/domain"
)

// secretIDPrefixLen is how many identifier characters responses expose.
// Enough to correlate with logs, useless for forging requests.
const secretIDPrefixLen = 8

// ListBreakersResponse represents the registered circuit breakers in API responses.
type ListBreakersResponse struct {
	Data []breakerDomain.Snapshot `json:"data"`
}

// MapSnapshotsToListResponse converts breaker snapshots to a list response.
func MapSnapshotsToListResponse(snapshots []breakerDomain.Snapshot) ListBreakersResponse {
	if snapshots == nil {
		snapshots = []breakerDomain.Snapshot{}
	}
	return ListBreakersResponse{Data: snapshots}
}

// ResetBreakersResponse reports how many breakers were reset.
type ResetBreakersResponse struct {
	Reset int `json:"reset"`
}

// SecretResponse represents one signing secret generation in API responses.
// SECURITY: key material never leaves the secret manager; only a short
// identifier prefix is exposed.
type SecretResponse struct {
	IDPrefix  string    `json:"id_prefix"`
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
}

// ListSecretsResponse represents the retained signing secrets in API responses.
type ListSecretsResponse struct {
	Data []SecretResponse `json:"data"`
}

// MapSecretsToListResponse converts retained domain secrets to a metadata-only
// list response.
func MapSecretsToListResponse(secrets []*signingDomain.Secret) ListSecretsResponse {
	data := make([]SecretResponse, 0, len(secrets))
	for _, secret := range secrets {
		data = append(data, SecretResponse{
			IDPrefix:  secretIDPrefix(secret.ID),
			CreatedAt: secret.CreatedAt,
			Active:    secret.Active,
		})
	}
	return ListSecretsResponse{Data: data}
}

// MapSecretToRotateResponse converts a freshly rotated secret to a response.
func MapSecretToRotateResponse(secret *signingDomain.Secret) SecretResponse {
	return SecretResponse{
		IDPrefix:  secretIDPrefix(secret.ID),
		CreatedAt: secret.CreatedAt,
		Active:    secret.Active,
	}
}

// NonceStatsResponse represents the replay-protection registry state.
type NonceStatsResponse struct {
	Tracked int `json:"tracked"`
}

// PurgeNoncesResponse reports how many expired nonce records were evicted.
type PurgeNoncesResponse struct {
	Purged int `json:"purged"`
}

func secretIDPrefix(id string) string {
	if len(id) <= secretIDPrefixLen {
		return id
	}
	return id[:secretIDPrefixLen]
}
