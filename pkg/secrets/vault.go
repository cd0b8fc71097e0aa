package secrets

import (
	"context"
	"fmt"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/cuemby/wafflemaker/pkg/wferrors"
)

// VaultStore implements SecretStore against HashiCorp Vault.
type VaultStore struct {
	client *vaultapi.Client
}

// NewVaultStore builds a VaultStore from an address and token.
func NewVaultStore(address, token string) (*VaultStore, error) {
	cfg := vaultapi.DefaultConfig()
	cfg.Address = address

	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("build vault client: %w", err)
	}
	client.SetToken(token)

	return &VaultStore{client: client}, nil
}

const kvValueKey = "value"

func (v *VaultStore) ReadKV(ctx context.Context, path string) (string, error) {
	secret, err := v.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return "", wferrors.Wrap(wferrors.KindUpstream, fmt.Sprintf("read %s", path), err)
	}
	if secret == nil || secret.Data == nil {
		return "", wferrors.New(wferrors.KindNotFound, fmt.Sprintf("secret %s not found", path))
	}
	value, ok := secret.Data[kvValueKey].(string)
	if !ok {
		return "", wferrors.New(wferrors.KindNotFound, fmt.Sprintf("secret %s missing %q key", path, kvValueKey))
	}
	return value, nil
}

func (v *VaultStore) WriteKV(ctx context.Context, path, value string) error {
	_, err := v.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		kvValueKey: value,
	})
	if err != nil {
		return wferrors.Wrap(wferrors.KindUpstream, fmt.Sprintf("write %s", path), err)
	}
	return nil
}

func (v *VaultStore) DeletePrefix(ctx context.Context, prefix string) error {
	secret, err := v.client.Logical().ListWithContext(ctx, prefix)
	if err != nil {
		return wferrors.Wrap(wferrors.KindUpstream, fmt.Sprintf("list %s", prefix), err)
	}
	if secret == nil || secret.Data == nil {
		return nil
	}
	keys, _ := secret.Data["keys"].([]interface{})
	for _, k := range keys {
		name, ok := k.(string)
		if !ok {
			continue
		}
		if _, err := v.client.Logical().DeleteWithContext(ctx, prefix+name); err != nil {
			return wferrors.Wrap(wferrors.KindUpstream, fmt.Sprintf("delete %s%s", prefix, name), err)
		}
	}
	return nil
}

func (v *VaultStore) IssueDynamic(ctx context.Context, rolePath string) (*DynamicCredential, error) {
	secret, err := v.client.Logical().ReadWithContext(ctx, rolePath)
	if err != nil {
		return nil, wferrors.Wrap(wferrors.KindUpstream, fmt.Sprintf("issue %s", rolePath), err)
	}
	if secret == nil {
		return nil, wferrors.New(wferrors.KindNotFound, fmt.Sprintf("role %s not found", rolePath))
	}

	data := make(map[string]string, len(secret.Data))
	for k, raw := range secret.Data {
		if s, ok := raw.(string); ok {
			data[k] = s
		}
	}

	return &DynamicCredential{
		LeaseID: secret.LeaseID,
		TTL:     time.Duration(secret.LeaseDuration) * time.Second,
		Data:    data,
	}, nil
}

func (v *VaultStore) RenewLease(ctx context.Context, leaseID string) (time.Duration, error) {
	secret, err := v.client.Sys().RenewWithContext(ctx, leaseID, 0)
	if err != nil {
		return 0, wferrors.Wrap(wferrors.KindUpstream, fmt.Sprintf("renew lease %s", leaseID), err)
	}
	return time.Duration(secret.LeaseDuration) * time.Second, nil
}

func (v *VaultStore) RevokeLease(ctx context.Context, leaseID string) error {
	if err := v.client.Sys().RevokeWithContext(ctx, leaseID); err != nil {
		return wferrors.Wrap(wferrors.KindUpstream, fmt.Sprintf("revoke lease %s", leaseID), err)
	}
	return nil
}
