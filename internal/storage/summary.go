package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/msapprovals/watchdog/internal/approval"
)

const timeKeyFormat = "2006-01-02T15:04:05Z"

// SummaryStore reads and writes approval summary rows in DynamoDB.
// Replace is last-write-wins; the store exposes no versioning.
type SummaryStore struct {
	db    *dynamodb.Client
	table string
}

// NewSummaryStore creates a summary store over the given table.
func NewSummaryStore(client *Client, table string) *SummaryStore {
	return &SummaryStore{db: client.DynamoDB, table: table}
}

// QueryByReminderWindow returns every row whose NextReminderTime falls in
// [now-lookbackDays, now]. Results are fully materialized; callers must not
// assume any ordering.
func (s *SummaryStore) QueryByReminderWindow(ctx context.Context, now time.Time, lookbackDays int) ([]approval.SummaryRow, error) {
	from := now.AddDate(0, 0, -lookbackDays)

	var rows []approval.SummaryRow
	paginator := dynamodb.NewScanPaginator(s.db, &dynamodb.ScanInput{
		TableName:        aws.String(s.table),
		FilterExpression: aws.String("NextReminderTime BETWEEN :from AND :to"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":from": &types.AttributeValueMemberS{Value: from.UTC().Format(timeKeyFormat)},
			":to":   &types.AttributeValueMemberS{Value: now.UTC().Format(timeKeyFormat)},
		},
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scanning summary table: %w", err)
		}
		for _, item := range page.Items {
			var row approval.SummaryRow
			if err := attributevalue.UnmarshalMap(item, &row); err != nil {
				continue
			}
			rows = append(rows, row)
		}
	}

	return rows, nil
}

// GetByKey fetches a single row by (partition, row) key. Returns nil when
// the row does not exist.
func (s *SummaryStore) GetByKey(ctx context.Context, partition, row string) (*approval.SummaryRow, error) {
	result, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: partition},
			"SK": &types.AttributeValueMemberS{Value: row},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting summary row %s/%s: %w", partition, row, err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var sr approval.SummaryRow
	if err := attributevalue.UnmarshalMap(result.Item, &sr); err != nil {
		return nil, fmt.Errorf("unmarshaling summary row: %w", err)
	}
	return &sr, nil
}

// Replace writes the full row back, overwriting whatever is stored.
func (s *SummaryStore) Replace(ctx context.Context, row *approval.SummaryRow) error {
	av, err := attributevalue.MarshalMap(row)
	if err != nil {
		return fmt.Errorf("marshaling summary row: %w", err)
	}

	// NextReminderTime is the window-query key, so it is stored as a sortable
	// string rather than the attributevalue default.
	if row.NextReminderTime != nil {
		av["NextReminderTime"] = &types.AttributeValueMemberS{
			Value: row.NextReminderTime.UTC().Format(timeKeyFormat),
		}
	}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting summary row %s/%s: %w", row.PartitionKey, row.RowKey, err)
	}
	return nil
}
