package cart

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/Amadou-dot/restockd/internal/aws"
)

// Repository loads and saves whole carts. Get returns (nil, nil) when the
// user has no cart yet.
type Repository interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
}

type lineItem struct {
	ProductID string    `dynamodbav:"product_id"`
	Quantity  int       `dynamodbav:"quantity"`
	AddedAt   time.Time `dynamodbav:"added_at"`
}

type cartItem struct {
	UserID        string      `dynamodbav:"user_id"`
	Items         []lineItem  `dynamodbav:"items"`
	TotalQuantity int         `dynamodbav:"total_quantity"`
	TotalPrice    aws.Decimal `dynamodbav:"total_price"`
	LastUpdated   time.Time   `dynamodbav:"last_updated"`
	CreatedAt     time.Time   `dynamodbav:"created_at"`
	Version       int64       `dynamodbav:"version"`
}

// DynamoRepository stores one item per user in the carts table.
type DynamoRepository struct {
	client    aws.DynamoDBAPI
	tableName string
}

var _ Repository = (*DynamoRepository)(nil)

func NewDynamoRepository(client aws.DynamoDBAPI, tableName string) *DynamoRepository {
	return &DynamoRepository{client: client, tableName: tableName}
}

func (r *DynamoRepository) Get(ctx context.Context, userID string) (*Cart, error) {
	out, err := r.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &r.tableName,
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var it cartItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}

	c := &Cart{
		UserID:        it.UserID,
		Items:         make([]Item, 0, len(it.Items)),
		TotalQuantity: it.TotalQuantity,
		TotalPrice:    it.TotalPrice.Value(),
		LastUpdated:   it.LastUpdated,
		CreatedAt:     it.CreatedAt,
		Version:       it.Version,
	}
	for _, li := range it.Items {
		c.Items = append(c.Items, Item{ProductID: li.ProductID, Quantity: li.Quantity, AddedAt: li.AddedAt})
	}
	return c, nil
}

// Save writes the whole cart if nobody else saved it since it was loaded,
// and advances c.Version. A lost race returns ErrConcurrentUpdate.
func (r *DynamoRepository) Save(ctx context.Context, c *Cart) error {
	it := cartItem{
		UserID:        c.UserID,
		Items:         make([]lineItem, 0, len(c.Items)),
		TotalQuantity: c.TotalQuantity,
		TotalPrice:    aws.NewDecimal(c.TotalPrice),
		LastUpdated:   c.LastUpdated,
		CreatedAt:     c.CreatedAt,
		Version:       c.Version + 1,
	}
	for _, li := range c.Items {
		it.Items = append(it.Items, lineItem{ProductID: li.ProductID, Quantity: li.Quantity, AddedAt: li.AddedAt})
	}
	item, err := attributevalue.MarshalMap(it)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	input := &dyn.PutItemInput{
		TableName: &r.tableName,
		Item:      item,
	}
	if c.Version == 0 {
		input.ConditionExpression = awsString("attribute_not_exists(user_id)")
	} else {
		input.ConditionExpression = awsString("version = :expected")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(c.Version, 10)},
		}
	}

	if _, err := r.client.PutItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrConcurrentUpdate
		}
		return fmt.Errorf("put cart: %w", err)
	}
	c.Version++
	return nil
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
