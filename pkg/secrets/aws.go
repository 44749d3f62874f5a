package secrets

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// AWSConfig configures the AWS Secrets Manager backend. Credentials
// come from the default chain (env, shared config, instance role).
type AWSConfig struct {
	Region string
}

type awsProvider struct {
	client *secretsmanager.Client
}

func newAWSProvider(ctx context.Context, cfg AWSConfig) (provider, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("secrets: aws provider requires region")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("secrets: failed to load aws config: %w", err)
	}

	return &awsProvider{client: secretsmanager.NewFromConfig(awsCfg)}, nil
}

func (a *awsProvider) Name() ProviderType { return ProviderAWS }

func (a *awsProvider) Close() error { return nil }

func (a *awsProvider) Fetch(ctx context.Context, ref Reference) (Secret, error) {
	result, err := a.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(ref.Path),
	})
	if err != nil {
		return Secret{}, fmt.Errorf("secrets: aws fetch failed for %s: %w", ref.Path, err)
	}

	payload := make(map[string]string)
	if result.SecretString != nil {
		// JSON-object secrets map directly; anything else lands
		// under "value".
		var asMap map[string]string
		if err := json.Unmarshal([]byte(*result.SecretString), &asMap); err == nil {
			payload = asMap
		} else {
			payload["value"] = *result.SecretString
		}
	}
	if result.SecretBinary != nil {
		payload["binary"] = base64.StdEncoding.EncodeToString(result.SecretBinary)
	}

	secret := Secret{Data: payload}
	if result.VersionId != nil {
		secret.Version = *result.VersionId
	}
	return secret, nil
}
