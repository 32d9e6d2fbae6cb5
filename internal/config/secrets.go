package config

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsAPI is the slice of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type slackSecret struct {
	BotToken  string `json:"bot_token"`
	UserToken string `json:"user_token"`
}

// LoadSecrets fetches the Slack tokens from the Secrets Manager secret named
// by cfg.SecretsID and merges them into cfg. Values already present in the
// environment win. A no-op when SecretsID is empty.
func LoadSecrets(ctx context.Context, cfg *Config) error {
	if cfg.SecretsID == "" {
		return nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}
	return MergeSecrets(ctx, cfg, secretsmanager.NewFromConfig(awsCfg))
}

// MergeSecrets is LoadSecrets with an injectable client, used by tests.
func MergeSecrets(ctx context.Context, cfg *Config, client SecretsAPI) error {
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &cfg.SecretsID,
	})
	if err != nil {
		return fmt.Errorf("get secret %s: %w", cfg.SecretsID, err)
	}
	if out.SecretString == nil {
		return fmt.Errorf("secret %s has no string payload", cfg.SecretsID)
	}

	var secret slackSecret
	if err := json.Unmarshal([]byte(*out.SecretString), &secret); err != nil {
		return fmt.Errorf("decode secret %s: %w", cfg.SecretsID, err)
	}

	if cfg.BotToken == "" {
		cfg.BotToken = secret.BotToken
	}
	if cfg.UserToken == "" {
		cfg.UserToken = secret.UserToken
	}
	return nil
}
