package awstest

import (
	"context"
	"errors"
	"testing"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func s(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }
func n(v string) types.AttributeValue { return &types.AttributeValueMemberN{Value: v} }

func TestDynamo_ConditionalPutAndUpdate(t *testing.T) {
	ctx := context.Background()
	d := NewDynamo().CreateTable("carts", "user_id")

	put := &dyn.PutItemInput{
		TableName:           sdkaws.String("carts"),
		Item:                map[string]types.AttributeValue{"user_id": s("u1"), "version": n("1")},
		ConditionExpression: sdkaws.String("attribute_not_exists(user_id)"),
	}
	_, err := d.PutItem(ctx, put)
	require.NoError(t, err)

	_, err = d.PutItem(ctx, put)
	var ccf *types.ConditionalCheckFailedException
	require.True(t, errors.As(err, &ccf))

	_, err = d.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 sdkaws.String("carts"),
		Key:                       map[string]types.AttributeValue{"user_id": s("u1")},
		UpdateExpression:          sdkaws.String("SET attempts = if_not_exists(attempts, :zero) + :inc, #v = :next"),
		ConditionExpression:       sdkaws.String("#v = :expected"),
		ExpressionAttributeNames:  map[string]string{"#v": "version"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":zero": n("0"), ":inc": n("1"), ":expected": n("1"), ":next": n("2")},
	})
	require.NoError(t, err)

	item := d.Item("carts", "u1")
	assert.Equal(t, "1", item["attempts"].(*types.AttributeValueMemberN).Value)
	assert.Equal(t, "2", item["version"].(*types.AttributeValueMemberN).Value)
}

func TestDynamo_QueryIndexNewestFirst(t *testing.T) {
	ctx := context.Background()
	d := NewDynamo().CreateTable("orders", "order_id").CreateIndex("orders", "by-user", "user_id", "created_at")
	d.Seed("orders", map[string]types.AttributeValue{"order_id": s("a"), "user_id": s("u1"), "created_at": s("2024-01-01T00:00:00Z")})
	d.Seed("orders", map[string]types.AttributeValue{"order_id": s("b"), "user_id": s("u1"), "created_at": s("2024-03-01T00:00:00Z")})
	d.Seed("orders", map[string]types.AttributeValue{"order_id": s("c"), "user_id": s("u2"), "created_at": s("2024-02-01T00:00:00Z")})

	out, err := d.Query(ctx, &dyn.QueryInput{
		TableName:                 sdkaws.String("orders"),
		IndexName:                 sdkaws.String("by-user"),
		KeyConditionExpression:    sdkaws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":uid": s("u1")},
		ScanIndexForward:          sdkaws.Bool(false),
	})
	require.NoError(t, err)
	require.Len(t, out.Items, 2)
	assert.Equal(t, "b", out.Items[0]["order_id"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "a", out.Items[1]["order_id"].(*types.AttributeValueMemberS).Value)
}

func TestDynamo_TransactionIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	d := NewDynamo().CreateTable("idem", "idempotency_key").CreateTable("orders", "order_id")
	d.Seed("idem", map[string]types.AttributeValue{"idempotency_key": s("k1")})

	_, err := d.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: []types.TransactWriteItem{
		{Put: &types.Put{TableName: sdkaws.String("idem"), Item: map[string]types.AttributeValue{"idempotency_key": s("k1")}, ConditionExpression: sdkaws.String("attribute_not_exists(idempotency_key)")}},
		{Put: &types.Put{TableName: sdkaws.String("orders"), Item: map[string]types.AttributeValue{"order_id": s("o1")}}},
	}})
	var tce *types.TransactionCanceledException
	require.True(t, errors.As(err, &tce))
	assert.Equal(t, 0, d.Len("orders"))
}
