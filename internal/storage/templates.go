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

// TemplateStore reads per-tenant email template rows. Template key
// resolution happens client-side against the returned set.
type TemplateStore struct {
	db    *dynamodb.Client
	table string
}

// NewTemplateStore creates a template store over the given table.
func NewTemplateStore(client *Client, table string) *TemplateStore {
	return &TemplateStore{db: client.DynamoDB, table: table}
}

// GetTemplates returns all email templates for a tenant.
func (s *TemplateStore) GetTemplates(ctx context.Context, tenantID int) ([]approval.EmailTemplate, error) {
	result, err := s.db.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: fmt.Sprintf("TEMPLATE#%d", tenantID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying templates for tenant %d: %w", tenantID, err)
	}

	var templates []approval.EmailTemplate
	for _, item := range result.Items {
		var tpl approval.EmailTemplate
		if err := attributevalue.UnmarshalMap(item, &tpl); err != nil {
			continue
		}
		templates = append(templates, tpl)
	}
	return templates, nil
}
