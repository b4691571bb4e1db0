package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amadou-dot/restockd/internal/aws/awstest"
	"github.com/Amadou-dot/restockd/internal/events"
)

func TestLoadAWSConfig(t *testing.T) {
	t.Setenv("AWS_PROFILE", "")
	ctx := context.Background()

	cfg, err := LoadAWSConfig(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, defaultRegion, cfg.Region)
	assert.Nil(t, cfg.BaseEndpoint)

	cfg, err = LoadAWSConfig(ctx, "eu-west-1", "http://localhost:4566")
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", cfg.Region)
	require.NotNil(t, cfg.BaseEndpoint)
	assert.Equal(t, "http://localhost:4566", *cfg.BaseEndpoint)
}

type priced struct {
	Price Decimal `dynamodbav:"price"`
}

func TestDecimal_StoredAsNumber(t *testing.T) {
	item, err := attributevalue.MarshalMap(priced{Price: NewDecimal(decimal.RequireFromString("19.99"))})
	require.NoError(t, err)
	n, ok := item["price"].(*types.AttributeValueMemberN)
	require.True(t, ok)
	assert.Equal(t, "19.99", n.Value)

	var back priced
	require.NoError(t, attributevalue.UnmarshalMap(item, &back))
	assert.True(t, back.Price.Value().Equal(decimal.RequireFromString("19.99")))
}

func TestDecimal_Unmarshal(t *testing.T) {
	var d Decimal
	require.NoError(t, d.UnmarshalDynamoDBAttributeValue(&types.AttributeValueMemberS{Value: "0.10"}))
	assert.True(t, d.Value().Equal(decimal.RequireFromString("0.1")))

	require.NoError(t, d.UnmarshalDynamoDBAttributeValue(&types.AttributeValueMemberNULL{Value: true}))
	assert.True(t, d.Value().IsZero())

	assert.Error(t, d.UnmarshalDynamoDBAttributeValue(&types.AttributeValueMemberN{Value: "abc"}))
	assert.Error(t, d.UnmarshalDynamoDBAttributeValue(&types.AttributeValueMemberBOOL{Value: true}))
}

func TestPublisher_Publish(t *testing.T) {
	q := &awstest.SQS{}
	p := NewPublisher(q, "https://sqs/orders")

	evt := events.OrderEvent{
		Type:          events.TypeOrderCompleted,
		OrderID:       "o1",
		UserID:        "u1",
		CorrelationID: "req-1",
		OccurredAt:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.Publish(context.Background(), evt))

	require.Len(t, q.Sent, 1)
	sent := q.Sent[0]
	assert.Equal(t, "https://sqs/orders", *sent.QueueUrl)
	assert.Equal(t, "order.completed", *sent.MessageAttributes["event_type"].StringValue)
	assert.Equal(t, "o1", *sent.MessageAttributes["order_id"].StringValue)
	assert.Equal(t, "req-1", *sent.MessageAttributes["correlation_id"].StringValue)

	got, err := events.Decode([]byte(*sent.MessageBody))
	require.NoError(t, err)
	assert.Equal(t, evt, got)
}

func TestPublisher_SendError(t *testing.T) {
	q := &awstest.SQS{Err: errors.New("throttled")}
	p := NewPublisher(q, "https://sqs/orders")

	err := p.Publish(context.Background(), events.OrderEvent{Type: events.TypeOrderCompleted, OrderID: "o1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}
