package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretGetter is the subset of the Secrets Manager client used to resolve credentials.
type SecretGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// electricSecret is the JSON document stored under ELECTRIC_SECRET_ID.
type electricSecret struct {
	Token      string `json:"token"`
	DatabaseID string `json:"database_id"`
}

// NewSecretsClient builds a Secrets Manager client from the default AWS credential chain.
func NewSecretsClient(ctx context.Context) (SecretGetter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return secretsmanager.NewFromConfig(awsCfg), nil
}

// ResolveElectricCredentials fills ElectricToken and ElectricDatabaseID from
// the configured secret. Values already present in cfg take precedence.
func ResolveElectricCredentials(ctx context.Context, cfg Config, getter SecretGetter) (Config, error) {
	if cfg.ElectricSecretID == "" {
		return cfg, nil
	}
	if cfg.ElectricToken != "" && cfg.ElectricDatabaseID != "" {
		return cfg, nil
	}
	if getter == nil {
		return cfg, errors.New("secrets: client is required when ELECTRIC_SECRET_ID is set")
	}

	out, err := getter.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(cfg.ElectricSecretID),
	})
	if err != nil {
		return cfg, fmt.Errorf("secrets: get %s: %w", cfg.ElectricSecretID, err)
	}
	if out.SecretString == nil {
		return cfg, fmt.Errorf("secrets: %s has no string value", cfg.ElectricSecretID)
	}

	var secret electricSecret
	if err := json.Unmarshal([]byte(*out.SecretString), &secret); err != nil {
		return cfg, fmt.Errorf("secrets: decode %s: %w", cfg.ElectricSecretID, err)
	}

	if cfg.ElectricToken == "" {
		cfg.ElectricToken = secret.Token
	}
	if cfg.ElectricDatabaseID == "" {
		cfg.ElectricDatabaseID = secret.DatabaseID
	}
	return cfg, nil
}
