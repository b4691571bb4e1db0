package aws

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

// Decimal stores a decimal.Decimal as a DynamoDB number.
type Decimal decimal.Decimal

// NewDecimal wraps d for marshaling.
func NewDecimal(d decimal.Decimal) Decimal { return Decimal(d) }

// Value returns the wrapped decimal.
func (d Decimal) Value() decimal.Decimal { return decimal.Decimal(d) }

func (d Decimal) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return &types.AttributeValueMemberN{Value: decimal.Decimal(d).String()}, nil
}

func (d *Decimal) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	var raw string
	switch v := av.(type) {
	case *types.AttributeValueMemberN:
		raw = v.Value
	case *types.AttributeValueMemberS:
		raw = v.Value
	case *types.AttributeValueMemberNULL:
		*d = Decimal(decimal.Zero)
		return nil
	default:
		return fmt.Errorf("decimal: unsupported attribute type %T", av)
	}
	parsed, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("decimal: parse %q: %w", raw, err)
	}
	*d = Decimal(parsed)
	return nil
}
