package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/Amadou-dot/restockd/internal/aws"
)

// Repository persists products. Get returns (nil, nil) when the product is missing.
type Repository interface {
	Create(ctx context.Context, p Product) error
	Get(ctx context.Context, id string) (*Product, error)
	GetMany(ctx context.Context, ids []string) (map[string]Product, error)
	Update(ctx context.Context, p Product) error
	Delete(ctx context.Context, id string) error
	// List returns products newest first, optionally restricted to an owner.
	List(ctx context.Context, ownerID string) ([]Product, error)
}

type productItem struct {
	ProductID   string      `dynamodbav:"product_id"`
	Name        string      `dynamodbav:"name"`
	Description string      `dynamodbav:"description"`
	Price       aws.Decimal `dynamodbav:"price"`
	Image       string      `dynamodbav:"image"`
	UserID      string      `dynamodbav:"user_id"`
	CreatedAt   time.Time   `dynamodbav:"created_at"`
	UpdatedAt   time.Time   `dynamodbav:"updated_at"`
}

func toItem(p Product) productItem {
	return productItem{
		ProductID:   p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       aws.NewDecimal(p.Price),
		Image:       p.Image,
		UserID:      p.UserID,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (it productItem) product() Product {
	return Product{
		ID:          it.ProductID,
		Name:        it.Name,
		Description: it.Description,
		Price:       it.Price.Value(),
		Image:       it.Image,
		UserID:      it.UserID,
		CreatedAt:   it.CreatedAt,
		UpdatedAt:   it.UpdatedAt,
	}
}

const (
	// batchGetLimit is the DynamoDB BatchGetItem key limit per request.
	batchGetLimit = 100
	// batchGetRounds caps the requests spent on one batch's unprocessed keys.
	batchGetRounds = 5
)

// ErrUnprocessedKeys is returned when DynamoDB keeps deferring keys after
// batchGetRounds attempts.
var ErrUnprocessedKeys = errors.New("products still unprocessed after retries")

// DynamoRepository stores products in a DynamoDB table keyed by product_id.
type DynamoRepository struct {
	client    aws.DynamoDBAPI
	tableName string
	backoff   retry.BackoffDelayer
}

var _ Repository = (*DynamoRepository)(nil)

func NewDynamoRepository(client aws.DynamoDBAPI, tableName string) *DynamoRepository {
	return &DynamoRepository{
		client:    client,
		tableName: tableName,
		backoff:   retry.NewExponentialJitterBackoff(2 * time.Second),
	}
}

func (r *DynamoRepository) key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"product_id": &types.AttributeValueMemberS{Value: id},
	}
}

func (r *DynamoRepository) Create(ctx context.Context, p Product) error {
	item, err := attributevalue.MarshalMap(toItem(p))
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &r.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(product_id)"),
	})
	if err != nil {
		return fmt.Errorf("put product: %w", err)
	}
	return nil
}

func (r *DynamoRepository) Get(ctx context.Context, id string) (*Product, error) {
	out, err := r.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &r.tableName,
		Key:       r.key(id),
	})
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var it productItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	p := it.product()
	return &p, nil
}

// GetMany loads the given ids in batches; missing ids are absent from the result.
func (r *DynamoRepository) GetMany(ctx context.Context, ids []string) (map[string]Product, error) {
	found := make(map[string]Product, len(ids))
	pending := dedupe(ids)
	for len(pending) > 0 {
		n := min(len(pending), batchGetLimit)
		keys := make([]map[string]types.AttributeValue, 0, n)
		for _, id := range pending[:n] {
			keys = append(keys, r.key(id))
		}
		pending = pending[n:]

		request := map[string]types.KeysAndAttributes{r.tableName: {Keys: keys}}
		for round := 0; len(request) > 0; round++ {
			if round == batchGetRounds {
				return nil, fmt.Errorf("batch get products: %w", ErrUnprocessedKeys)
			}
			if round > 0 {
				if err := r.wait(ctx, round); err != nil {
					return nil, err
				}
			}
			out, err := r.client.BatchGetItem(ctx, &dyn.BatchGetItemInput{RequestItems: request})
			if err != nil {
				return nil, fmt.Errorf("batch get products: %w", err)
			}
			for _, raw := range out.Responses[r.tableName] {
				var it productItem
				if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
					return nil, fmt.Errorf("unmarshal product: %w", err)
				}
				found[it.ProductID] = it.product()
			}
			request = out.UnprocessedKeys
		}
	}
	return found, nil
}

// wait sleeps the jittered backoff for a retry round, or until ctx is done.
func (r *DynamoRepository) wait(ctx context.Context, round int) error {
	d, err := r.backoff.BackoffDelay(round-1, ErrUnprocessedKeys)
	if err != nil {
		return fmt.Errorf("batch get backoff: %w", err)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *DynamoRepository) Update(ctx context.Context, p Product) error {
	_, err := r.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &r.tableName,
		Key:              r.key(p.ID),
		UpdateExpression: awsString("SET #n = :name, description = :desc, price = :price, image = :img, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#n": "name",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":name":  &types.AttributeValueMemberS{Value: p.Name},
			":desc":  &types.AttributeValueMemberS{Value: p.Description},
			":price": &types.AttributeValueMemberN{Value: p.Price.String()},
			":img":   &types.AttributeValueMemberS{Value: p.Image},
			":ua":    &types.AttributeValueMemberS{Value: p.UpdatedAt.Format(time.RFC3339Nano)},
		},
		ConditionExpression: awsString("attribute_exists(product_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrProductNotFound
		}
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (r *DynamoRepository) Delete(ctx context.Context, id string) error {
	_, err := r.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           &r.tableName,
		Key:                 r.key(id),
		ConditionExpression: awsString("attribute_exists(product_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrProductNotFound
		}
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}

// List scans the whole table and sorts in memory by created_at, then id.
func (r *DynamoRepository) List(ctx context.Context, ownerID string) ([]Product, error) {
	input := &dyn.ScanInput{TableName: &r.tableName}
	if ownerID != "" {
		input.FilterExpression = awsString("user_id = :uid")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: ownerID},
		}
	}

	var products []Product
	for {
		out, err := r.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan products: %w", err)
		}
		var items []productItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal products: %w", err)
		}
		for _, it := range items {
			products = append(products, it.product())
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	sort.SliceStable(products, func(i, j int) bool {
		if !products[i].CreatedAt.Equal(products[j].CreatedAt) {
			return products[i].CreatedAt.After(products[j].CreatedAt)
		}
		return products[i].ID > products[j].ID
	})
	return products, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func awsString(s string) *string { return &s }
