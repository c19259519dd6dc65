package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/spectra-gallery/spectra-playground/store"
)

const sweepThrottle = 50 * time.Millisecond

func newDynamoDBClient(ctx context.Context, devMode bool, dynamodbEndpoint string) (*dynamodb.Client, error) {
	if devMode {
		// Dummy credentials and region for DynamoDB Local
		cfg, err := config.LoadDefaultConfig(ctx,
			config.WithRegion("us-east-1"),
			config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider("dummy", "dummy", ""),
			),
		)
		if err != nil {
			return nil, err
		}

		return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			if dynamodbEndpoint != "" {
				o.BaseEndpoint = aws.String(dynamodbEndpoint)
			}
		}), nil
	}

	// Production: default config chain (task role, AWS endpoints)
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}

	return dynamodb.NewFromConfig(cfg), nil
}

func getTables(client *dynamodb.Client, ctx context.Context) ([]string, error) {
	var tables []string
	paginator := dynamodb.NewListTablesPaginator(client, &dynamodb.ListTablesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		tables = append(tables, page.TableNames...)
	}
	return tables, nil
}

func itemKey(pk, sk types.AttributeValue) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"PK": pk, "SK": sk}
}

// getItem retrieves an item of type T by PK and SK
func getItem[T any](dynamoStore *DynamoPlaygroundStore, ctx context.Context, pk string, sk string, consistentRead bool) (T, error) {
	var zero T

	resp, err := dynamoStore.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(dynamoStore.tableName),
		Key: itemKey(
			&types.AttributeValueMemberS{Value: pk},
			&types.AttributeValueMemberS{Value: sk},
		),
		ConsistentRead: aws.Bool(consistentRead),
	})
	if err != nil {
		return zero, fmt.Errorf("GetItem failed: %w", err)
	}
	if resp.Item == nil {
		return zero, store.ErrItemNotFound
	}

	var item T
	if err := attributevalue.UnmarshalMap(resp.Item, &item); err != nil {
		return zero, fmt.Errorf("failed to unmarshal item: %w", err)
	}

	return item, nil
}

func marshalKeyed(item any) (map[string]types.AttributeValue, error) {
	avMap, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, fmt.Errorf("marshal error: %w", err)
	}
	if _, ok := avMap["PK"]; !ok {
		return nil, errors.New("struct missing PK field")
	}
	if _, ok := avMap["SK"]; !ok {
		return nil, errors.New("struct missing SK field")
	}
	return avMap, nil
}

// ensureItem inserts item only if its PK+SK does not exist yet. When it
// already exists the stored item is returned with created=false.
func ensureItem[T any](dynamoStore *DynamoPlaygroundStore, ctx context.Context, item T) (T, bool, error) {
	var zero T

	avMap, err := marshalKeyed(item)
	if err != nil {
		return zero, false, err
	}

	_, err = dynamoStore.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(dynamoStore.tableName),
		Item:                avMap,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err == nil {
		return item, true, nil
	}

	var cce *types.ConditionalCheckFailedException
	if !errors.As(err, &cce) {
		return zero, false, fmt.Errorf("failed to put item: %w", err)
	}

	getResp, err := dynamoStore.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(dynamoStore.tableName),
		Key:       itemKey(avMap["PK"], avMap["SK"]),
	})
	if err != nil {
		return zero, false, fmt.Errorf("failed to get existing item: %w", err)
	}
	if getResp.Item == nil {
		return zero, false, errors.New("item supposedly exists but GetItem returned nothing")
	}

	var existing T
	if err := attributevalue.UnmarshalMap(getResp.Item, &existing); err != nil {
		return zero, false, fmt.Errorf("failed to unmarshal existing item: %w", err)
	}
	return existing, false, nil
}

// replaceItemIf overwrites item when condition holds. A failed condition is
// reported as ErrItemNotFound if the item is gone and ErrConditionFailed
// otherwise.
func replaceItemIf[T any](
	dynamoStore *DynamoPlaygroundStore,
	ctx context.Context,
	item T,
	condition string,
	names map[string]string,
	values map[string]types.AttributeValue,
) (T, error) {
	var zero T

	avMap, err := marshalKeyed(item)
	if err != nil {
		return zero, err
	}

	_, err = dynamoStore.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(dynamoStore.tableName),
		Item:                      avMap,
		ConditionExpression:       aws.String(condition),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err == nil {
		return item, nil
	}

	var cce *types.ConditionalCheckFailedException
	if !errors.As(err, &cce) {
		return zero, fmt.Errorf("conditional put failed: %w", err)
	}

	getResp, getErr := dynamoStore.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(dynamoStore.tableName),
		Key:                  itemKey(avMap["PK"], avMap["SK"]),
		ProjectionExpression: aws.String("PK"),
		ConsistentRead:       aws.Bool(true),
	})
	if getErr != nil {
		return zero, fmt.Errorf("conditional put failed, and GetItem check also failed: %w", getErr)
	}
	if getResp.Item == nil {
		return zero, store.ErrItemNotFound
	}
	return zero, store.ErrConditionFailed
}

type indexQuery struct {
	indexName string
	keyCond   string
	names     map[string]string
	values    map[string]types.AttributeValue
}

func (q indexQuery) input(tableName string) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:                 aws.String(tableName),
		IndexName:                 aws.String(q.indexName),
		KeyConditionExpression:    aws.String(q.keyCond),
		ExpressionAttributeNames:  q.names,
		ExpressionAttributeValues: q.values,
	}
}

// queryAllByIndex returns every item of a GSI query. The index must project
// all attributes.
func queryAllByIndex[T any](dynamoStore *DynamoPlaygroundStore, ctx context.Context, q indexQuery) ([]T, error) {
	var results []T

	paginator := dynamodb.NewQueryPaginator(dynamoStore.client, q.input(dynamoStore.tableName))
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query GSI failed: %w", err)
		}

		var pageItems []T
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &pageItems); err != nil {
			return nil, fmt.Errorf("failed to unmarshal page items: %w", err)
		}
		results = append(results, pageItems...)
	}

	return results, nil
}

// writeBatchRequests handles batch writes (Put or Delete) with retries.
// Returns any unprocessed items as []T
func writeBatchRequests[T any](dynamoStore *DynamoPlaygroundStore, ctx context.Context, requests []types.WriteRequest) ([]T, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	backoff := 50 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return unmarshalUnprocessed[T](requests), ctx.Err()
		default:
		}

		resp, err := dynamoStore.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				dynamoStore.tableName: requests,
			},
		})
		if err != nil {
			return unmarshalUnprocessed[T](requests), fmt.Errorf("BatchWriteItem failed: %w", err)
		}

		unprocessed := resp.UnprocessedItems[dynamoStore.tableName]
		if len(unprocessed) == 0 {
			return nil, nil
		}

		requests = unprocessed

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return unmarshalUnprocessed[T](requests), ctx.Err()
		case <-timer.C:
		}

		if backoff < time.Second {
			backoff *= 2
		}
	}
}

func unmarshalUnprocessed[T any](reqs []types.WriteRequest) []T {
	failed := make([]T, 0, len(reqs))
	for _, wr := range reqs {
		var src map[string]types.AttributeValue
		switch {
		case wr.PutRequest != nil:
			src = wr.PutRequest.Item
		case wr.DeleteRequest != nil:
			src = wr.DeleteRequest.Key
		default:
			continue
		}
		var item T
		if err := attributevalue.UnmarshalMap(src, &item); err == nil {
			failed = append(failed, item)
		}
	}
	return failed
}

// batchDeleteByIndex deletes everything a GSI query matches in throttled
// 25-item batches and returns the PKs it removed. On error the PKs removed
// so far are returned alongside it.
func batchDeleteByIndex(dynamoStore *DynamoPlaygroundStore, ctx context.Context, q indexQuery, throttle time.Duration) ([]string, error) {
	const queryPageSize int32 = 200

	var deleted []string
	var lastEvaluatedKey map[string]types.AttributeValue

	for {
		input := q.input(dynamoStore.tableName)
		input.Limit = aws.Int32(queryPageSize)
		input.ExclusiveStartKey = lastEvaluatedKey

		resp, err := dynamoStore.client.Query(ctx, input)
		if err != nil {
			return deleted, fmt.Errorf("query GSI failed: %w", err)
		}

		delRequests := make([]types.WriteRequest, 0, len(resp.Items))
		pks := make([]string, 0, len(resp.Items))
		for _, item := range resp.Items {
			pkAttr, okPK := item["PK"].(*types.AttributeValueMemberS)
			skAttr, okSK := item["SK"]
			if !okPK || !okSK {
				continue
			}
			delRequests = append(delRequests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: itemKey(pkAttr, skAttr)},
			})
			pks = append(pks, pkAttr.Value)
		}

		for i := 0; i < len(delRequests); i += 25 {
			end := min(i+25, len(delRequests))
			startTime := time.Now()

			if _, err := writeBatchRequests[map[string]types.AttributeValue](dynamoStore, ctx, delRequests[i:end]); err != nil {
				return deleted, fmt.Errorf("batch delete failed: %w", err)
			}
			deleted = append(deleted, pks[i:end]...)

			if elapsed := time.Since(startTime); elapsed < throttle {
				select {
				case <-ctx.Done():
					return deleted, ctx.Err()
				case <-time.After(throttle - elapsed):
				}
			}
		}

		lastEvaluatedKey = resp.LastEvaluatedKey
		if lastEvaluatedKey == nil {
			return deleted, nil
		}
	}
}
