package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/msapprovals/watchdog/internal/approval"
)

const tenantPartition = "TENANT"

// TenantStore reads tenant configuration rows. The watchdog treats tenant
// info as read-only.
type TenantStore struct {
	db    *dynamodb.Client
	table string
}

// NewTenantStore creates a tenant store over the given table.
func NewTenantStore(client *Client, table string) *TenantStore {
	return &TenantStore{db: client.DynamoDB, table: table}
}

// ListTenants returns every onboarded tenant.
func (s *TenantStore) ListTenants(ctx context.Context) ([]approval.TenantInfo, error) {
	result, err := s.db.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: tenantPartition},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying tenants: %w", err)
	}

	var tenants []approval.TenantInfo
	for _, item := range result.Items {
		var ti approval.TenantInfo
		if err := attributevalue.UnmarshalMap(item, &ti); err != nil {
			continue
		}
		tenants = append(tenants, ti)
	}
	return tenants, nil
}
