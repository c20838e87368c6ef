package billing

import (
	"context"
	"fmt"
	"sync"

	"app/internal/config"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// Credentials are the resolved Stripe credentials for this process.
type Credentials struct {
	SecretKey     string
	WebhookSecret string
}

var (
	initOnce  sync.Once
	initCreds Credentials
	initErr   error
)

// Init resolves Stripe credentials exactly once per process, walking an
// ordered list of sources: environment config first, then Secret Manager for
// any value still missing. Subsequent calls return the first result.
func Init(ctx context.Context, cfg *config.Config, opts ...option.ClientOption) (Credentials, error) {
	initOnce.Do(func() {
		initCreds, initErr = resolveCredentials(ctx, cfg, opts...)
	})
	return initCreds, initErr
}

func resolveCredentials(ctx context.Context, cfg *config.Config, opts ...option.ClientOption) (Credentials, error) {
	creds := Credentials{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
	}
	if creds.SecretKey != "" && creds.WebhookSecret != "" {
		return creds, nil
	}

	if cfg.GCPProjectID == "" {
		return Credentials{}, fmt.Errorf("stripe credentials missing from environment and GCP_PROJECT_ID is not set")
	}

	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}
	defer client.Close()

	if creds.SecretKey == "" {
		creds.SecretKey, err = accessSecret(ctx, client, cfg.GCPProjectID, cfg.StripeSecretKeySecretID)
		if err != nil {
			return Credentials{}, err
		}
	}
	if creds.WebhookSecret == "" {
		creds.WebhookSecret, err = accessSecret(ctx, client, cfg.GCPProjectID, cfg.StripeWebhookSecretSecretID)
		if err != nil {
			return Credentials{}, err
		}
	}
	return creds, nil
}

func accessSecret(ctx context.Context, client *secretmanager.Client, projectID, secretID string) (string, error) {
	resourceName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectID, secretID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: resourceName,
	})
	if err != nil {
		return "", fmt.Errorf("failed to access secret version %s: %w", resourceName, err)
	}

	return string(result.Payload.Data), nil
}
