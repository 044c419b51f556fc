package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// RowStore is the entity store contract shared by the DynamoDB and in-memory implementations.
type RowStore interface {
	// Get returns the live row for (kind, key), or ErrNotFound.
	Get(ctx context.Context, kind Kind, key string) (*Row, error)

	// Put writes the row and returns its new version token.
	// An empty expectedVersion writes unconditionally. Otherwise the write is
	// rejected with ErrConcurrencyConflict when the stored token differs, and
	// with ErrNotFound when the row is gone.
	Put(ctx context.Context, row *Row, expectedVersion string) (string, error)

	// Delete marks the row deleted, guarded like Put.
	Delete(ctx context.Context, kind Kind, key, expectedVersion string) error

	// List streams the live rows of a partition. Rows written while the
	// sequence is consumed may or may not appear.
	List(ctx context.Context, kind Kind, opts ...ListOption) iter.Seq2[*Row, error]
}

// API is the subset of the DynamoDB client used by Store.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Store provides DynamoDB row operations with optimistic concurrency.
type Store struct {
	client API
	config Config
	now    func() time.Time
}

var _ RowStore = (*Store)(nil)

// New creates a new Store instance.
func New(client API, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
		now:    time.Now,
	}
}

// Config returns the effective configuration.
func (s *Store) Config() Config {
	return s.config
}

// Get retrieves a row by key, returning ErrNotFound if deleted or missing.
func (s *Store) Get(ctx context.Context, kind Kind, key string) (*Row, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.Table),
		Key:            rowKey(kind, key),
		ConsistentRead: aws.Bool(s.config.ConsistentReads),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", kind, key, err)
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}

	// Check if row is deleted (has expired TTL)
	if IsDeleted(result.Item) {
		return nil, ErrNotFound
	}

	return s.unmarshalRow(result.Item), nil
}

// Put writes a row, assigning a fresh version token.
func (s *Store) Put(ctx context.Context, row *Row, expectedVersion string) (string, error) {
	if row == nil || row.Kind == "" || row.Key == "" {
		return "", ErrInvalidRow
	}
	now := s.now()
	version := uuid.New().String()

	item := cloneAttrs(row.Attrs)
	item[attrPartition] = &types.AttributeValueMemberS{Value: string(row.Kind)}
	item[attrRow] = &types.AttributeValueMemberS{Value: row.Key}
	item[attrVersion] = &types.AttributeValueMemberS{Value: version}
	item[attrUpdatedAt] = &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.config.Table),
		Item:      item,
	}

	// Fast path: unconditional create/overwrite
	if expectedVersion != "" {
		input.ConditionExpression = aws.String(LiveRowCondition() + " AND #version = :expected_version")
		input.ExpressionAttributeNames = map[string]string{
			"#rk":      attrRow,
			"#ttl":     attrTTL,
			"#version": attrVersion,
		}
		input.ExpressionAttributeValues = mergeExprValues(TTLFilterValues(now), map[string]types.AttributeValue{
			":expected_version": &types.AttributeValueMemberS{Value: expectedVersion},
		})
		input.ReturnValuesOnConditionCheckFailure = types.ReturnValuesOnConditionCheckFailureAllOld
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		return "", s.mapConditionError(err, row.Kind, row.Key)
	}
	return version, nil
}

// Delete marks a row for deletion by setting its TTL to now.
// This also replaces the version to fail concurrent updates.
func (s *Store) Delete(ctx context.Context, kind Kind, key, expectedVersion string) error {
	now := s.now()

	condExpr := LiveRowCondition()
	exprValues := mergeExprValues(TTLFilterValues(now), map[string]types.AttributeValue{
		":next_version": &types.AttributeValueMemberS{Value: uuid.New().String()},
		":updated_at":   &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
	})
	if expectedVersion != "" {
		condExpr += " AND #version = :expected_version"
		exprValues[":expected_version"] = &types.AttributeValueMemberS{Value: expectedVersion}
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.config.Table),
		Key:                 rowKey(kind, key),
		UpdateExpression:    aws.String("SET #ttl = :now, #version = :next_version, #updated_at = :updated_at"),
		ConditionExpression: aws.String(condExpr),
		ExpressionAttributeNames: map[string]string{
			"#rk":         attrRow,
			"#ttl":        attrTTL,
			"#version":    attrVersion,
			"#updated_at": attrUpdatedAt,
		},
		ExpressionAttributeValues:           exprValues,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		return s.mapConditionError(err, kind, key)
	}
	return nil
}

// List streams the live rows of a partition, one DynamoDB page at a time.
func (s *Store) List(ctx context.Context, kind Kind, opts ...ListOption) iter.Seq2[*Row, error] {
	return func(yield func(*Row, error) bool) {
		paginator := dynamodb.NewQueryPaginator(s.client, s.queryInput(kind, buildListOptions(opts)))
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield(nil, fmt.Errorf("list %s: %w", kind, err))
				return
			}
			for _, raw := range page.Items {
				if !yield(s.unmarshalRow(raw), nil) {
					return
				}
			}
		}
	}
}

// queryInput builds the partition query with TTL and equality filters merged.
func (s *Store) queryInput(kind Kind, o listOptions) *dynamodb.QueryInput {
	filterExpr := TTLFilterExpr()
	names := []map[string]string{{"#pk": attrPartition}, TTLFilterNames()}
	values := []map[string]types.AttributeValue{
		{":pk": &types.AttributeValueMemberS{Value: string(kind)}},
		TTLFilterValues(s.now()),
	}

	for i, eq := range o.equals {
		nameKey := fmt.Sprintf("#attr%d", i)
		valueKey := fmt.Sprintf(":val%d", i)
		filterExpr = fmt.Sprintf("(%s) AND %s = %s", filterExpr, nameKey, valueKey)
		names = append(names, map[string]string{nameKey: eq.attr})
		values = append(values, map[string]types.AttributeValue{
			valueKey: &types.AttributeValueMemberS{Value: eq.value},
		})
	}

	return &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.Table),
		KeyConditionExpression:    aws.String("#pk = :pk"),
		FilterExpression:          aws.String(filterExpr),
		ExpressionAttributeNames:  mergeExprNames(names...),
		ExpressionAttributeValues: mergeExprValues(values...),
		ConsistentRead:            aws.Bool(s.config.ConsistentReads),
		Limit:                     aws.Int32(s.config.PageSize),
	}
}

// mapConditionError maps a failed conditional write to ErrNotFound or ErrConcurrencyConflict.
func (s *Store) mapConditionError(err error, kind Kind, key string) error {
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		if condErr.Item == nil || IsDeleted(condErr.Item) {
			return ErrNotFound
		}
		return ErrConcurrencyConflict
	}
	return fmt.Errorf("write %s %s: %w", kind, key, err)
}

// unmarshalRow converts a DynamoDB item to a Row.
func (s *Store) unmarshalRow(raw map[string]types.AttributeValue) *Row {
	row := &Row{Attrs: cloneAttrs(raw)}

	if v, ok := raw[attrPartition].(*types.AttributeValueMemberS); ok {
		row.Kind = Kind(v.Value)
	}
	if v, ok := raw[attrRow].(*types.AttributeValueMemberS); ok {
		row.Key = v.Value
	}
	if v, ok := raw[attrVersion].(*types.AttributeValueMemberS); ok {
		row.Version = v.Value
	}
	if v, ok := raw[attrUpdatedAt].(*types.AttributeValueMemberS); ok {
		row.UpdatedAt = v.Value
	}

	return row
}

// rowKey builds the DynamoDB primary key for (kind, key).
func rowKey(kind Kind, key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPartition: &types.AttributeValueMemberS{Value: string(kind)},
		attrRow:       &types.AttributeValueMemberS{Value: key},
	}
}

// ttlValue renders a Unix timestamp as a DynamoDB number.
func ttlValue(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(t.Unix(), 10)}
}
