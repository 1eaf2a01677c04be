// Package storage provides the DynamoDB row stores (approval summaries,
// tenants, email templates) and the S3 blob store backing the watchdog.
package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/msapprovals/watchdog/internal/config"
)

// Client bundles the AWS service clients used by the row and blob stores.
type Client struct {
	DynamoDB *dynamodb.Client
	S3       *s3.Client
	region   string
}

// NewClient creates the AWS clients from the storage configuration.
func NewClient(ctx context.Context, cfg appconfig.StorageConfig) (*Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.Profile != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithSharedConfigProfile(cfg.Profile),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &Client{
		DynamoDB: dynamodb.NewFromConfig(awsCfg),
		S3:       s3.NewFromConfig(awsCfg),
		region:   cfg.Region,
	}, nil
}
