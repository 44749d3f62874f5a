package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// GCPConfig configures Google Secret Manager access.
type GCPConfig struct {
	ProjectID       string
	CredentialsFile string
}

type gcpProvider struct {
	client  *secretmanager.Client
	project string
}

func newGCPProvider(ctx context.Context, cfg GCPConfig) (provider, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("secrets: gcp provider requires project id")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("secrets: failed to create gcp secret manager client: %w", err)
	}

	return &gcpProvider{client: client, project: cfg.ProjectID}, nil
}

func (g *gcpProvider) Name() ProviderType { return ProviderGCP }

func (g *gcpProvider) Close() error { return g.client.Close() }

func (g *gcpProvider) Fetch(ctx context.Context, ref Reference) (Secret, error) {
	// Slashes are not valid in GCP secret IDs, so paths like
	// "sentinel/database" flatten to "sentinel-database".
	secretID := strings.ReplaceAll(strings.Trim(ref.Path, "/"), "/", "-")
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", g.project, secretID)

	resp, err := g.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return Secret{}, fmt.Errorf("secrets: gcp fetch failed for %s: %w", ref.Path, err)
	}

	payload := make(map[string]string)
	if resp.Payload != nil {
		var asMap map[string]string
		if err := json.Unmarshal(resp.Payload.Data, &asMap); err == nil {
			payload = asMap
		} else {
			payload["value"] = string(resp.Payload.Data)
		}
	}

	return Secret{Data: payload, Version: resp.Name}, nil
}
