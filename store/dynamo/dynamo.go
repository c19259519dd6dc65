package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/gofrs/uuid/v5"

	"github.com/spectra-gallery/spectra-playground/models"
	"github.com/spectra-gallery/spectra-playground/store"
)

type DynamoPlaygroundStore struct {
	client    *dynamodb.Client
	tableName string
}

func NewDynamoPlaygroundStore(ctx context.Context, devMode bool, dynamodbEndpoint string, tableName string) (*DynamoPlaygroundStore, error) {
	client, err := newDynamoDBClient(ctx, devMode, dynamodbEndpoint)
	if err != nil {
		return nil, err
	}

	tables, err := getTables(client, ctx)
	if err != nil {
		return nil, err
	}

	foundTable := false
	for _, table := range tables {
		if table == tableName {
			foundTable = true
			break
		}
	}
	if !foundTable {
		return nil, fmt.Errorf("given table name '%s' not found in dynamodb", tableName)
	}

	return &DynamoPlaygroundStore{client: client, tableName: tableName}, nil
}

func (dynamoStore *DynamoPlaygroundStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	if user.Id == "" {
		userId, err := uuid.NewV4()
		if err != nil {
			return models.User{}, err
		}
		user.Id = userId.String()
	}

	du, created, err := ensureItem(dynamoStore, ctx, userToDynamo(user))
	if err != nil {
		return models.User{}, err
	}
	if !created {
		return models.User{}, store.ErrItemExists
	}

	return userFromDynamo(du), nil
}

func (dynamoStore *DynamoPlaygroundStore) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	du, err := getItem[dynamoUser](dynamoStore, ctx, userKey(username), userSK, false)
	if err != nil {
		return models.User{}, err
	}
	return userFromDynamo(du), nil
}

func (dynamoStore *DynamoPlaygroundStore) CreateResource(ctx context.Context, resource models.Resource) (models.Resource, error) {
	dr, created, err := ensureItem(dynamoStore, ctx, resourceToDynamo(resource))
	if err != nil {
		return models.Resource{}, err
	}
	if !created {
		return models.Resource{}, store.ErrItemExists
	}
	return resourceFromDynamo(dr), nil
}

func (dynamoStore *DynamoPlaygroundStore) GetResource(ctx context.Context, id string) (models.Resource, error) {
	// Strongly consistent so a retry after a revision conflict sees the winner.
	dr, err := getItem[dynamoResource](dynamoStore, ctx, resourcePrefix+id, resourceSK, true)
	if err != nil {
		return models.Resource{}, err
	}
	return resourceFromDynamo(dr), nil
}

func (dynamoStore *DynamoPlaygroundStore) UpdateResource(ctx context.Context, resource models.Resource, expectedRevision int) (models.Resource, error) {
	resource.Revision = expectedRevision + 1

	dr, err := replaceItemIf(dynamoStore, ctx, resourceToDynamo(resource), "attribute_exists(PK) AND #rev = :expected",
		map[string]string{"#rev": "Revision"},
		map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.Itoa(expectedRevision)},
		},
	)
	if err != nil {
		return models.Resource{}, err
	}
	return resourceFromDynamo(dr), nil
}

func (dynamoStore *DynamoPlaygroundStore) PutShare(ctx context.Context, share models.ShareEntry) error {
	_, created, err := ensureItem(dynamoStore, ctx, shareToDynamo(share))
	if err != nil {
		return err
	}
	if !created {
		return store.ErrItemExists
	}
	return nil
}

func (dynamoStore *DynamoPlaygroundStore) GetShare(ctx context.Context, token string) (models.ShareEntry, error) {
	ds, err := getItem[dynamoShare](dynamoStore, ctx, sharePrefix+token, shareSK, false)
	if err != nil {
		return models.ShareEntry{}, err
	}
	return shareFromDynamo(ds), nil
}

func (dynamoStore *DynamoPlaygroundStore) ListShares(ctx context.Context, resourceId string) ([]models.ShareEntry, error) {
	items, err := queryAllByIndex[dynamoShare](dynamoStore, ctx, indexQuery{
		indexName: resourceSharesIndex,
		keyCond:   "#pk = :pk",
		names:     map[string]string{"#pk": "ResourceId"},
		values: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: resourceId},
		},
	})
	if err != nil {
		return nil, err
	}

	shares := make([]models.ShareEntry, 0, len(items))
	for _, ds := range items {
		shares = append(shares, shareFromDynamo(ds))
	}
	return shares, nil
}

func (dynamoStore *DynamoPlaygroundStore) DeleteExpiredShares(ctx context.Context, resourceId string, now int64) ([]string, error) {
	pks, err := batchDeleteByIndex(dynamoStore, ctx, indexQuery{
		indexName: resourceSharesIndex,
		keyCond:   "#pk = :pk AND #exp < :now",
		names:     map[string]string{"#pk": "ResourceId", "#exp": "ExpiresAt"},
		values: map[string]types.AttributeValue{
			":pk":  &types.AttributeValueMemberS{Value: resourceId},
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now, 10)},
		},
	}, sweepThrottle)
	if err != nil && !errors.Is(err, context.Canceled) {
		return nil, err
	}

	tokens := make([]string, 0, len(pks))
	for _, pk := range pks {
		if strings.HasPrefix(pk, sharePrefix) {
			tokens = append(tokens, pk[len(sharePrefix):])
		}
	}
	return tokens, err
}
