package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/craftlink/sentinel/pkg/logger"
)

// ProviderType selects the secret backend.
type ProviderType string

const (
	ProviderNone       ProviderType = ""
	ProviderVault      ProviderType = "vault"
	ProviderAWS        ProviderType = "aws"
	ProviderGCP        ProviderType = "gcp"
	ProviderKubernetes ProviderType = "kubernetes"
)

// SecretType classifies a secret for logging. The engine resolves
// exactly these three at startup.
type SecretType string

const (
	SecretDatabase SecretType = "database_credentials"
	SecretJWTKeys  SecretType = "jwt_signing_keys"
	SecretTwilio   SecretType = "twilio_credentials"
)

var (
	ErrProviderNotConfigured = errors.New("secrets: provider not configured")
	ErrInvalidReference      = errors.New("secrets: invalid reference")
	ErrKeyNotFound           = errors.New("secrets: key not found")
)

// Reference names one secret in the configured backend. Path is the
// backend location; Key selects one entry within the payload.
type Reference struct {
	Name string
	Path string
	Key  string
	Type SecretType
}

// Secret is a resolved payload. Providers that store flat values
// expose them under the "value" key.
type Secret struct {
	Data        map[string]string
	Version     string
	RetrievedAt time.Time
}

// Value returns one non-empty entry from the payload.
func (s Secret) Value(key string) (string, bool) {
	val, ok := s.Data[key]
	return val, ok && val != ""
}

// Config selects and configures a backend.
type Config struct {
	Provider   ProviderType
	CacheTTL   time.Duration
	Vault      VaultConfig
	AWS        AWSConfig
	GCP        GCPConfig
	Kubernetes KubernetesConfig
}

// Manager resolves secrets with a short-lived in-process cache so
// startup overlays do not hammer the backend.
type Manager interface {
	GetSecret(ctx context.Context, ref Reference) (Secret, error)
	GetString(ctx context.Context, ref Reference) (string, error)
	Close() error
}

type provider interface {
	Name() ProviderType
	Fetch(ctx context.Context, ref Reference) (Secret, error)
	Close() error
}

type manager struct {
	provider provider
	cacheTTL time.Duration

	mu    sync.RWMutex
	cache map[string]cachedSecret
}

type cachedSecret struct {
	secret    Secret
	expiresAt time.Time
}

func NewManager(cfg Config) (Manager, error) {
	if cfg.Provider == ProviderNone {
		return nil, ErrProviderNotConfigured
	}

	var prov provider
	var err error
	ctx := context.Background()

	switch cfg.Provider {
	case ProviderVault:
		prov, err = newVaultProvider(cfg.Vault)
	case ProviderAWS:
		prov, err = newAWSProvider(ctx, cfg.AWS)
	case ProviderGCP:
		prov, err = newGCPProvider(ctx, cfg.GCP)
	case ProviderKubernetes:
		prov, err = newKubernetesProvider(cfg.Kubernetes)
	default:
		err = fmt.Errorf("secrets: unsupported provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	return &manager{
		provider: prov,
		cacheTTL: cfg.CacheTTL,
		cache:    make(map[string]cachedSecret),
	}, nil
}

func (m *manager) Close() error {
	return m.provider.Close()
}

// GetSecret resolves the full payload for a reference, serving
// repeated lookups of the same path from cache.
func (m *manager) GetSecret(ctx context.Context, ref Reference) (Secret, error) {
	if ref.Path == "" {
		return Secret{}, ErrInvalidReference
	}

	if secret, ok := m.fromCache(ref.Path); ok {
		return secret, nil
	}

	secret, err := m.provider.Fetch(ctx, ref)
	if err != nil {
		logger.Warn("secret fetch failed",
			zap.String("secret_name", ref.Name),
			zap.String("secret_type", string(ref.Type)),
			zap.String("provider", string(m.provider.Name())),
			zap.Error(err))
		return Secret{}, err
	}
	secret.RetrievedAt = time.Now().UTC()

	m.store(ref.Path, secret)
	return secret, nil
}

// GetString returns the single entry the reference's Key selects.
func (m *manager) GetString(ctx context.Context, ref Reference) (string, error) {
	if ref.Key == "" {
		return "", fmt.Errorf("%w: reference %q has no key", ErrKeyNotFound, ref.Name)
	}

	secret, err := m.GetSecret(ctx, ref)
	if err != nil {
		return "", err
	}
	if value, ok := secret.Value(ref.Key); ok {
		return value, nil
	}
	return "", fmt.Errorf("%w: %s", ErrKeyNotFound, ref.Key)
}

func (m *manager) fromCache(path string) (Secret, bool) {
	m.mu.RLock()
	entry, ok := m.cache[path]
	m.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return Secret{}, false
	}
	return cloneSecret(entry.secret), true
}

func (m *manager) store(path string, secret Secret) {
	m.mu.Lock()
	m.cache[path] = cachedSecret{
		secret:    cloneSecret(secret),
		expiresAt: time.Now().Add(m.cacheTTL),
	}
	m.mu.Unlock()
}

// cloneSecret keeps cached payloads isolated from caller mutation.
func cloneSecret(src Secret) Secret {
	dst := src
	dst.Data = make(map[string]string, len(src.Data))
	for k, v := range src.Data {
		dst.Data[k] = v
	}
	return dst
}
