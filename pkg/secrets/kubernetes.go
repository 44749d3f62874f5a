package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// KubernetesConfig points at the directory a secret volume is
// mounted on. Each secret path is a subdirectory; each key a file.
type KubernetesConfig struct {
	BasePath string
}

type kubernetesProvider struct {
	basePath string
}

func newKubernetesProvider(cfg KubernetesConfig) (provider, error) {
	base := cfg.BasePath
	if base == "" {
		base = "/var/run/secrets"
	}

	info, err := os.Stat(base)
	if err != nil {
		return nil, fmt.Errorf("secrets: mount %s not accessible: %w", base, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("secrets: mount %s is not a directory", base)
	}

	return &kubernetesProvider{basePath: base}, nil
}

func (k *kubernetesProvider) Name() ProviderType { return ProviderKubernetes }

func (k *kubernetesProvider) Close() error { return nil }

func (k *kubernetesProvider) Fetch(ctx context.Context, ref Reference) (Secret, error) {
	dir := filepath.Join(k.basePath, filepath.FromSlash(strings.Trim(ref.Path, "/")))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Secret{}, fmt.Errorf("secrets: path %s not found: %w", dir, err)
	}

	payload := make(map[string]string, len(entries))
	for _, entry := range entries {
		// Kubelet materializes keys through ..data symlinks.
		if entry.IsDir() || strings.HasPrefix(entry.Name(), "..") {
			continue
		}
		content, readErr := os.ReadFile(filepath.Join(dir, entry.Name()))
		if readErr != nil {
			return Secret{}, readErr
		}
		payload[entry.Name()] = strings.TrimSpace(string(content))
	}

	return Secret{Data: payload}, nil
}
