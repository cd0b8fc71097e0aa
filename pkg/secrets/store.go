package secrets

import (
	"context"
	"time"
)

// DynamicCredential is a lease-backed credential issued by the secret
// store's database or aws secrets engine.
type DynamicCredential struct {
	LeaseID  string
	TTL      time.Duration
	Data     map[string]string // e.g. {"username": ..., "password": ...} or {"access_key": ..., "secret_key": ...}
}

// SecretStore is the narrow contract against the external secret store
// (§6): static KV read/write under services/<id>/<name>, dynamic credential
// issuance under database/creds/<role> and aws/creds/<role>, and lease
// renew/revoke.
type SecretStore interface {
	// ReadKV reads the single-key JSON value at path. It returns a NotFound
	// wferrors.Error if the key does not exist.
	ReadKV(ctx context.Context, path string) (string, error)

	// WriteKV writes value at path.
	WriteKV(ctx context.Context, path, value string) error

	// DeletePrefix deletes every key under prefix (a service's
	// services/<id>/* namespace on deletion).
	DeletePrefix(ctx context.Context, prefix string) error

	// IssueDynamic requests dynamic credentials at rolePath
	// (database/creds/<role> or aws/creds/<role>).
	IssueDynamic(ctx context.Context, rolePath string) (*DynamicCredential, error)

	// RenewLease extends leaseID's TTL and returns the new TTL.
	RenewLease(ctx context.Context, leaseID string) (time.Duration, error)

	// RevokeLease revokes leaseID. Idempotent: revoking an already-expired
	// or unknown lease is not an error.
	RevokeLease(ctx context.Context, leaseID string) error
}
