package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

// VaultConfig configures the HashiCorp Vault KV v2 backend.
type VaultConfig struct {
	Address string
	Token   string
	Mount   string
}

type vaultProvider struct {
	client *vault.Client
	mount  string
}

func newVaultProvider(cfg VaultConfig) (provider, error) {
	if cfg.Address == "" || cfg.Token == "" {
		return nil, fmt.Errorf("secrets: vault provider requires address and token")
	}
	mount := strings.Trim(cfg.Mount, "/")
	if mount == "" {
		mount = "secret"
	}

	clientCfg := vault.DefaultConfig()
	clientCfg.Address = cfg.Address

	client, err := vault.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("secrets: failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &vaultProvider{client: client, mount: mount}, nil
}

func (v *vaultProvider) Name() ProviderType { return ProviderVault }

func (v *vaultProvider) Close() error {
	// The vault client holds no connection to close.
	return nil
}

func (v *vaultProvider) Fetch(ctx context.Context, ref Reference) (Secret, error) {
	path := strings.Trim(ref.Path, "/")
	if path == "" {
		return Secret{}, ErrInvalidReference
	}

	kvSecret, err := v.client.KVv2(v.mount).Get(ctx, path)
	if err != nil {
		var respErr *vault.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return Secret{}, fmt.Errorf("secrets: vault path %s not found", path)
		}
		return Secret{}, err
	}

	payload := make(map[string]string, len(kvSecret.Data))
	for k, raw := range kvSecret.Data {
		payload[k] = fmt.Sprint(raw)
	}

	secret := Secret{Data: payload}
	if kvSecret.VersionMetadata != nil {
		secret.Version = fmt.Sprintf("%d", kvSecret.VersionMetadata.Version)
	}
	return secret, nil
}
